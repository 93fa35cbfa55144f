package service

import (
	"exam_prep_backend/internal/model"
	"strings"
)

// gradeAnswer 客观题按标准答案精确匹配（两端去空白，区分大小写）。
// 未作答视为答错。
func gradeAnswer(q *model.TestQuestion, given string, answered bool) bool {
	if !answered {
		return false
	}
	return normalizeAnswer(given) == normalizeAnswer(q.Answer)
}

func normalizeAnswer(s string) string {
	return strings.TrimSpace(s)
}

// GradeFor 百分制分数对应的等级
func GradeFor(scorePercent float64) string {
	switch {
	case scorePercent >= 90:
		return "A"
	case scorePercent >= 80:
		return "B"
	case scorePercent >= 70:
		return "C"
	case scorePercent >= 60:
		return "D"
	default:
		return "F"
	}
}
