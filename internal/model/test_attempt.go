package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// TestAttempt 一次提交的不可变记录，主键即幂等键。
// 诊断作答每题一条，SessionID 相同；Items 只含本题，
// Score/CorrectCount/GradedCount/Grade 为会话截至本题的累计值。
// swagger:model TestAttempt
type TestAttempt struct {
	ID            string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	StudentID     uint           `gorm:"index;not null" json:"studentId"`
	TestID        string         `gorm:"index;type:varchar(36);not null" json:"testId"`
	SessionID     string         `gorm:"index;type:varchar(64)" json:"sessionId,omitempty"`
	Items         datatypes.JSON `json:"items"`
	Score         float64        `json:"score"` // [0,1]
	CorrectCount  int            `json:"correctCount"`
	GradedCount   int            `json:"gradedCount"`
	Grade         string         `gorm:"size:2" json:"grade"`
	AbilityBefore float64        `json:"abilityBefore"`
	AbilityAfter  float64        `json:"abilityAfter"`
	CreatedAt     time.Time      `gorm:"index" json:"createdAt"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}

// AttemptItemResult 单题作答结果，按试卷顺序保存
type AttemptItemResult struct {
	QuestionID  string  `json:"questionId"`
	Topic       string  `json:"topic,omitempty"`
	Gradable    bool    `json:"gradable"`
	Correct     bool    `json:"correct"`
	GivenAnswer string  `json:"givenAnswer"`
	Difficulty  float64 `json:"difficulty"` // 作答时的难度
}

func (a *TestAttempt) SetItems(items []AttemptItemResult) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	a.Items = datatypes.JSON(raw)
	return nil
}

// Answered 该记录是否已包含这道题
func (a *TestAttempt) Answered(questionID string) (bool, error) {
	items, err := a.GetItems()
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.QuestionID == questionID {
			return true, nil
		}
	}
	return false, nil
}

func (a *TestAttempt) GetItems() ([]AttemptItemResult, error) {
	if len(a.Items) == 0 {
		return nil, nil
	}
	var items []AttemptItemResult
	if err := json.Unmarshal(a.Items, &items); err != nil {
		return nil, err
	}
	return items, nil
}
