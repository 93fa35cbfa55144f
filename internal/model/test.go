package model

import (
	"gorm.io/datatypes"
)

const (
	QuestionTypeSingleChoice   = "single_choice"
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeTrueFalse      = "true_false"
	QuestionTypeOpen           = "open"
	QuestionTypeEssay          = "essay"
)

// Test 一套练习/考试
// swagger:model Test
type Test struct {
	UUIDBase
	Title       string         `gorm:"size:255;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	IsPublished bool           `gorm:"not null;default:false" json:"isPublished"`
	Questions   []TestQuestion `gorm:"foreignKey:TestID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

func (Test) TableName() string {
	return "tests"
}

// TestQuestion 题目。AttemptCount/CorrectCount 为全体学生共享的计数，只增不减。
// swagger:model TestQuestion
type TestQuestion struct {
	UUIDBase
	TestID       string         `gorm:"index;type:varchar(36);not null" json:"testId"`
	QuestionType string         `gorm:"size:50;not null" json:"questionType"`
	Content      string         `gorm:"type:text;not null" json:"content"`
	Options      datatypes.JSON `json:"options,omitempty"`
	Answer       string         `gorm:"type:text" json:"-"` // 标准答案，不对学生暴露
	Topic        string         `gorm:"size:100;index" json:"topic,omitempty"`
	Difficulty   float64        `gorm:"default:0" json:"difficulty"`
	AttemptCount int            `gorm:"default:0;not null" json:"attemptCount"`
	CorrectCount int            `gorm:"default:0;not null" json:"correctCount"`
	SortOrder    int            `gorm:"column:sort_order;default:0" json:"sortOrder"`
}

func (TestQuestion) TableName() string {
	return "test_questions"
}

// Gradable 客观题参与计分，开放题不参与
func (q *TestQuestion) Gradable() bool {
	return IsGradableType(q.QuestionType)
}

func IsGradableType(t string) bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultipleChoice, QuestionTypeTrueFalse:
		return true
	}
	return false
}

// GradableTypes 用于查询条件
func GradableTypes() []string {
	return []string{QuestionTypeSingleChoice, QuestionTypeMultipleChoice, QuestionTypeTrueFalse}
}
