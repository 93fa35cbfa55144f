package model

import "time"

// 以下为评分流程一次提交的写集合，由持久层在同一事务中落库

type ProfileUpdate struct {
	StudentID           uint
	ExpectedVersion     int
	Ability             float64
	TotalTestsTaken     int
	AverageScorePercent float64
}

// QuestionUpdate 题目计数的增量写。Expected* 是流程读取时的计数，
// 持久层据此做 CAS；计数已变化时在最新值上重新加一并重算难度。
type QuestionUpdate struct {
	QuestionID           string
	Correct              bool
	ExpectedAttemptCount int
	ExpectedCorrectCount int
	ExpectedDifficulty   float64
	AttemptCount         int
	CorrectCount         int
	Difficulty           float64
}

type WeakTopicUpdate struct {
	StudentID uint
	Topic     string
	Misses    int
	SeenAt    time.Time
}

// CalibrateFunc 根据 (当前难度, 新作答数, 新答对数) 计算新难度
type CalibrateFunc func(current float64, attempts, correct int) float64

type ScoringWrite struct {
	Profile    ProfileUpdate
	Questions  []QuestionUpdate
	WeakTopics []WeakTopicUpdate
	Attempt    *TestAttempt
	Calibrate  CalibrateFunc
}

// QuestionStats 题目当前的统计量
type QuestionStats struct {
	QuestionID   string
	Difficulty   float64
	AttemptCount int
	CorrectCount int
}
