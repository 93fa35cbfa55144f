package model

// StudentProfile 学生画像，每个用户唯一一份。能力值只由评分流程写入。
// swagger:model StudentProfile
type StudentProfile struct {
	BaseModel
	UserID              uint        `gorm:"uniqueIndex;not null" json:"userId"`
	Ability             float64     `gorm:"default:0" json:"ability"` // logit，限制在 [-4, 4]
	TotalTestsTaken     int         `gorm:"default:0" json:"totalTestsTaken"`
	AverageScorePercent float64     `gorm:"default:0" json:"averageScorePercent"`
	Version             int         `gorm:"default:0;not null" json:"-"` // 乐观锁
	WeakTopics          []WeakTopic `gorm:"foreignKey:StudentID;references:UserID;constraint:OnDelete:CASCADE" json:"weakTopics,omitempty"`
}

func (StudentProfile) TableName() string {
	return "student_profiles"
}
