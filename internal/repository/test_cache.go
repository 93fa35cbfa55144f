package repository

import (
	"context"
	"encoding/json"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/pkg/logger"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// TestCache 试卷结构缓存。方法对 nil 接收者安全，未启用 Redis 时直接穿透。
type TestCache struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewTestCache(rdb *redis.Client, ttl time.Duration) *TestCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TestCache{Redis: rdb, TTL: ttl}
}

// 题目的 Answer 不参与对外 JSON，缓存使用单独的结构
type cachedQuestion struct {
	ID           string         `json:"id"`
	QuestionType string         `json:"questionType"`
	Content      string         `json:"content"`
	Options      datatypes.JSON `json:"options,omitempty"`
	Answer       string         `json:"answer"`
	Topic        string         `json:"topic,omitempty"`
	Difficulty   float64        `json:"difficulty"`
	SortOrder    int            `json:"sortOrder"`
}

type cachedTest struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	IsPublished bool             `json:"isPublished"`
	Questions   []cachedQuestion `json:"questions"`
}

func testCacheKey(id string) string {
	return fmt.Sprintf("exam:test:%s", id)
}

func (c *TestCache) Get(ctx context.Context, id string) (*model.Test, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.Redis.Get(ctx, testCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Log.Warn("Test cache read failed", zap.String("testId", id), zap.Error(err))
		}
		return nil, false
	}
	var ct cachedTest
	if err := json.Unmarshal(raw, &ct); err != nil {
		logger.Log.Warn("Test cache entry corrupt", zap.String("testId", id), zap.Error(err))
		c.Invalidate(ctx, id)
		return nil, false
	}

	test := &model.Test{
		Title:       ct.Title,
		Description: ct.Description,
		IsPublished: ct.IsPublished,
		Questions:   make([]model.TestQuestion, 0, len(ct.Questions)),
	}
	test.ID = ct.ID
	for _, cq := range ct.Questions {
		q := model.TestQuestion{
			TestID:       ct.ID,
			QuestionType: cq.QuestionType,
			Content:      cq.Content,
			Options:      cq.Options,
			Answer:       cq.Answer,
			Topic:        cq.Topic,
			Difficulty:   cq.Difficulty,
			SortOrder:    cq.SortOrder,
		}
		q.ID = cq.ID
		test.Questions = append(test.Questions, q)
	}
	return test, true
}

func (c *TestCache) Set(ctx context.Context, test *model.Test) {
	if c == nil {
		return
	}
	ct := cachedTest{
		ID:          test.ID,
		Title:       test.Title,
		Description: test.Description,
		IsPublished: test.IsPublished,
		Questions:   make([]cachedQuestion, 0, len(test.Questions)),
	}
	for _, q := range test.Questions {
		ct.Questions = append(ct.Questions, cachedQuestion{
			ID:           q.ID,
			QuestionType: q.QuestionType,
			Content:      q.Content,
			Options:      q.Options,
			Answer:       q.Answer,
			Topic:        q.Topic,
			Difficulty:   q.Difficulty,
			SortOrder:    q.SortOrder,
		})
	}
	raw, err := json.Marshal(ct)
	if err != nil {
		return
	}
	if err := c.Redis.Set(ctx, testCacheKey(test.ID), raw, c.TTL).Err(); err != nil {
		logger.Log.Warn("Test cache write failed", zap.String("testId", test.ID), zap.Error(err))
	}
}

func (c *TestCache) Invalidate(ctx context.Context, id string) {
	if c == nil {
		return
	}
	c.Redis.Del(ctx, testCacheKey(id))
}
