package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/repository"
)

// WeakTopicService 薄弱知识点只记录错题，不做衰减或“已掌握”判定。
// 错题由评分事务通过 WeakTopicRepository.RecordMiss 写入，这里只读
type WeakTopicService struct {
	Repo *repository.WeakTopicRepository
}

func NewWeakTopicService(repo *repository.WeakTopicRepository) *WeakTopicService {
	return &WeakTopicService{Repo: repo}
}

func (s *WeakTopicService) List(ctx context.Context, studentID uint) ([]model.WeakTopic, error) {
	return s.Repo.ListByStudent(ctx, studentID)
}
