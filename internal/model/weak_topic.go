package model

import "time"

// WeakTopic 薄弱知识点，(student_id, topic) 唯一，错题数只增不减
// swagger:model WeakTopic
type WeakTopic struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID    uint      `gorm:"not null;uniqueIndex:idx_weak_topic_student_topic" json:"studentId"`
	Topic        string    `gorm:"size:100;not null;uniqueIndex:idx_weak_topic_student_topic" json:"topic"`
	MistakeCount int       `gorm:"not null;default:0" json:"mistakeCount"`
	LastSeen     time.Time `json:"lastSeen"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (WeakTopic) TableName() string {
	return "weak_topics"
}
