package service

import (
	"context"
	"exam_prep_backend/internal/irt"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type TestService struct {
	Repo *repository.TestRepository
}

func NewTestService(repo *repository.TestRepository) *TestService {
	return &TestService{Repo: repo}
}

type QuestionInput struct {
	QuestionType string         `json:"questionType" binding:"required"`
	Content      string         `json:"content" binding:"required"`
	Options      datatypes.JSON `json:"options"`
	Answer       string         `json:"answer"`
	Topic        string         `json:"topic"`
	Difficulty   float64        `json:"difficulty"`
}

type CreateTestInput struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	IsPublished bool            `json:"isPublished"`
	Questions   []QuestionInput `json:"questions" binding:"required,min=1,dive"`
}

// CreateTest 教师录入试卷。客观题必须带标准答案，初始难度限制在能力区间内。
func (s *TestService) CreateTest(ctx context.Context, in CreateTestInput) (*model.Test, error) {
	test := &model.Test{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		IsPublished: in.IsPublished,
	}
	if test.Title == "" {
		return nil, fmt.Errorf("%w: title is required", util.ErrInvalidSubmission)
	}
	for i, q := range in.Questions {
		switch {
		case !model.IsGradableType(q.QuestionType) && q.QuestionType != model.QuestionTypeOpen && q.QuestionType != model.QuestionTypeEssay:
			return nil, fmt.Errorf("%w: question %d has unknown type %q", util.ErrInvalidSubmission, i+1, q.QuestionType)
		case model.IsGradableType(q.QuestionType) && strings.TrimSpace(q.Answer) == "":
			return nil, fmt.Errorf("%w: question %d needs an answer", util.ErrInvalidSubmission, i+1)
		case q.Difficulty < irt.MinAbility || q.Difficulty > irt.MaxAbility:
			return nil, fmt.Errorf("%w: question %d difficulty out of range", util.ErrInvalidSubmission, i+1)
		}
		test.Questions = append(test.Questions, model.TestQuestion{
			QuestionType: q.QuestionType,
			Content:      q.Content,
			Options:      q.Options,
			Answer:       q.Answer,
			Topic:        strings.TrimSpace(q.Topic),
			Difficulty:   q.Difficulty,
			SortOrder:    i,
		})
	}

	if err := s.Repo.Create(ctx, test); err != nil {
		return nil, err
	}
	logger.Log.Info("Test created", zap.String("testId", test.ID), zap.Int("questions", len(test.Questions)))
	return test, nil
}

// GetTest 学生端取卷，未发布的试卷视为不存在
func (s *TestService) GetTest(ctx context.Context, id string) (*model.Test, error) {
	test, err := s.Repo.FindWithQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	if !test.IsPublished {
		return nil, util.NewNotFound("test", id)
	}
	return test, nil
}
