package repository

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"

	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// FindByID 不存在时返回 (nil, nil)
func (r *AttemptRepository) FindByID(ctx context.Context, id string) (*model.TestAttempt, error) {
	var a model.TestAttempt
	err := r.DB.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListByStudent 按时间倒序分页，用于能力变化曲线
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID uint, page, limit int) ([]model.TestAttempt, int64, error) {
	var total int64
	query := r.DB.WithContext(ctx).Model(&model.TestAttempt{}).Where("student_id = ?", studentID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	var attempts []model.TestAttempt
	err := r.DB.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at desc").
		Order("id asc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&attempts).Error
	return attempts, total, err
}

// ListBySession 诊断会话的全部作答，按时间顺序
func (r *AttemptRepository) ListBySession(ctx context.Context, studentID uint, sessionID string) ([]model.TestAttempt, error) {
	var attempts []model.TestAttempt
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND session_id = ?", studentID, sessionID).
		Order("created_at asc").
		Order("id asc").
		Find(&attempts).Error
	return attempts, err
}
