package service

import (
	"context"
	"errors"
	"exam_prep_backend/internal/irt"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"

	"go.uber.org/zap"
)

type StudentProfileService struct {
	Repo *repository.StudentProfileRepository
}

func NewStudentProfileService(repo *repository.StudentProfileRepository) *StudentProfileService {
	return &StudentProfileService{Repo: repo}
}

type ProfileSummary struct {
	*model.StudentProfile
	Band irt.Band `json:"band"`
}

// Onboard 建档，初始能力为总体均值 0。已存在时直接返回，created 为 false。
func (s *StudentProfileService) Onboard(ctx context.Context, userID uint) (*ProfileSummary, bool, error) {
	if userID == 0 {
		return nil, false, util.ErrInvalidSubmission
	}
	existing, err := s.Repo.FindByUserID(ctx, userID)
	if err == nil {
		return summarize(existing), false, nil
	}
	if !errors.Is(err, util.ErrNotFound) {
		return nil, false, err
	}

	p := &model.StudentProfile{UserID: userID, Ability: 0}
	if err := s.Repo.Create(ctx, p); err != nil {
		if errors.Is(err, util.ErrProfileExists) {
			// 并发建档，读取胜出的那一份
			existing, err := s.Repo.FindByUserID(ctx, userID)
			if err != nil {
				return nil, false, err
			}
			return summarize(existing), false, nil
		}
		return nil, false, err
	}

	logger.Log.Info("Student profile created", zap.Uint("studentId", userID))
	return summarize(p), true, nil
}

func (s *StudentProfileService) Get(ctx context.Context, userID uint) (*ProfileSummary, error) {
	p, err := s.Repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return summarize(p), nil
}

func summarize(p *model.StudentProfile) *ProfileSummary {
	return &ProfileSummary{StudentProfile: p, Band: irt.BandFor(p.Ability)}
}

// Delete 注销时删除画像和薄弱知识点，作答记录保留
func (s *StudentProfileService) Delete(ctx context.Context, userID uint) error {
	if err := s.Repo.Delete(ctx, userID); err != nil {
		return err
	}
	logger.Log.Info("Student profile deleted", zap.Uint("studentId", userID))
	return nil
}
