package repository

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WeakTopicRepository struct {
	DB *gorm.DB
}

func NewWeakTopicRepository(db *gorm.DB) *WeakTopicRepository {
	return &WeakTopicRepository{DB: db}
}

// WithTx 返回绑定到事务的仓储
func (r *WeakTopicRepository) WithTx(tx *gorm.DB) *WeakTopicRepository {
	return &WeakTopicRepository{DB: tx}
}

// RecordMiss 记录 u.Misses 次错题（至少一次）。依赖 (student_id, topic) 唯一索引原子地插入或累加，
// 并发的同一知识点错题不会丢失
func (r *WeakTopicRepository) RecordMiss(ctx context.Context, u model.WeakTopicUpdate) error {
	topic := strings.TrimSpace(u.Topic)
	if u.StudentID == 0 || topic == "" {
		return fmt.Errorf("%w: student and topic are required", util.ErrInvalidSubmission)
	}
	if u.Misses < 1 {
		u.Misses = 1
	}
	row := model.WeakTopic{
		StudentID:    u.StudentID,
		Topic:        topic,
		MistakeCount: u.Misses,
		LastSeen:     u.SeenAt,
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "student_id"}, {Name: "topic"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"mistake_count": gorm.Expr("weak_topics.mistake_count + ?", u.Misses),
			"last_seen":     u.SeenAt,
		}),
	}).Create(&row).Error
}

func (r *WeakTopicRepository) ListByStudent(ctx context.Context, studentID uint) ([]model.WeakTopic, error) {
	var topics []model.WeakTopic
	err := r.DB.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("mistake_count desc").
		Order("last_seen desc").
		Find(&topics).Error
	return topics, err
}
