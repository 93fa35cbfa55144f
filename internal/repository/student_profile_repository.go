package repository

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"

	"gorm.io/gorm"
)

type StudentProfileRepository struct {
	DB *gorm.DB
}

func NewStudentProfileRepository(db *gorm.DB) *StudentProfileRepository {
	return &StudentProfileRepository{DB: db}
}

func (r *StudentProfileRepository) Create(ctx context.Context, p *model.StudentProfile) error {
	err := r.DB.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return util.ErrProfileExists
	}
	return err
}

func (r *StudentProfileRepository) FindByUserID(ctx context.Context, userID uint) (*model.StudentProfile, error) {
	var p model.StudentProfile
	err := r.DB.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.NewNotFound("student profile", userID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete 随账号注销删除画像及其薄弱知识点；作答记录保留用于审计
func (r *StudentProfileRepository) Delete(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("student_id = ?", userID).Delete(&model.WeakTopic{}).Error; err != nil {
			return err
		}
		res := tx.Unscoped().Where("user_id = ?", userID).Delete(&model.StudentProfile{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.NewNotFound("student profile", userID)
		}
		return nil
	})
}
