package repository

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TestRepository struct {
	DB    *gorm.DB
	Cache *TestCache // 可为 nil
}

func NewTestRepository(db *gorm.DB, cache *TestCache) *TestRepository {
	return &TestRepository{DB: db, Cache: cache}
}

func (r *TestRepository) Create(ctx context.Context, test *model.Test) error {
	if err := r.DB.WithContext(ctx).Create(test).Error; err != nil {
		return err
	}
	r.Cache.Invalidate(ctx, test.ID)
	return nil
}

// FindWithQuestions 读取试卷及题目（按 sort_order）。先查缓存。
// 缓存只用于题目结构和答案，计数与难度以 QuestionStats 为准。
func (r *TestRepository) FindWithQuestions(ctx context.Context, id string) (*model.Test, error) {
	if test, ok := r.Cache.Get(ctx, id); ok {
		return test, nil
	}

	var test model.Test
	err := r.DB.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order asc").Order("created_at asc")
		}).
		First(&test, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.NewNotFound("test", id)
	}
	if err != nil {
		return nil, err
	}

	r.Cache.Set(ctx, &test)
	return &test, nil
}

// FindStats 读取题目当前的难度与计数，不走缓存
func (r *TestRepository) FindStats(ctx context.Context, questionIDs []string) (map[string]model.QuestionStats, error) {
	stats := make(map[string]model.QuestionStats, len(questionIDs))
	if len(questionIDs) == 0 {
		return stats, nil
	}

	var rows []model.TestQuestion
	err := r.DB.WithContext(ctx).
		Select("id", "difficulty", "attempt_count", "correct_count").
		Where("id IN ?", questionIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, q := range rows {
		stats[q.ID] = model.QuestionStats{
			QuestionID:   q.ID,
			Difficulty:   q.Difficulty,
			AttemptCount: q.AttemptCount,
			CorrectCount: q.CorrectCount,
		}
	}
	return stats, nil
}

// FindNearestDifficulty 返回已发布试卷中难度最接近 target 的客观题
func (r *TestRepository) FindNearestDifficulty(ctx context.Context, target float64, limit int) ([]model.TestQuestion, error) {
	var qs []model.TestQuestion
	err := r.DB.WithContext(ctx).
		Joins("JOIN tests ON tests.id = test_questions.test_id AND tests.deleted_at IS NULL AND tests.is_published = ?", true).
		Where("test_questions.question_type IN ?", model.GradableTypes()).
		Order(clause.OrderBy{Expression: clause.Expr{SQL: "ABS(test_questions.difficulty - ?)", Vars: []interface{}{target}}}).
		Order("test_questions.id asc").
		Limit(limit).
		Find(&qs).Error
	return qs, err
}
