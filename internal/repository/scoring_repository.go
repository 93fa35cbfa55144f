package repository

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"exam_prep_backend/pkg/tracing"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	mysqldrv "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// 题目计数在读取与写入之间被其他事务修改
	errQuestionConflict = errors.New("question counters changed concurrently")
	// 画像版本号不匹配，说明同一学生有并发提交绕过了学生锁
	errProfileVersionConflict = errors.New("student profile version changed concurrently")
)

const defaultMaxSaveRetries = 5

// ScoringRepository 评分流程的持久化协作者。
// 题目计数只在这里写，所有写入在一个事务中提交；冲突时按指数退避重试整个事务。
type ScoringRepository struct {
	DB         *gorm.DB
	Tests      *TestRepository
	Attempts   *AttemptRepository
	Topics     *WeakTopicRepository
	maxRetries uint
	newBackOff func() backoff.BackOff
}

func NewScoringRepository(db *gorm.DB, tests *TestRepository, attempts *AttemptRepository, topics *WeakTopicRepository, maxRetries int) *ScoringRepository {
	if maxRetries <= 0 {
		maxRetries = defaultMaxSaveRetries
	}
	return &ScoringRepository{
		DB:         db,
		Tests:      tests,
		Attempts:   attempts,
		Topics:     topics,
		maxRetries: uint(maxRetries),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
	}
}

func (r *ScoringRepository) LoadTest(ctx context.Context, testID string) (*model.Test, error) {
	return r.Tests.FindWithQuestions(ctx, testID)
}

func (r *ScoringRepository) LoadStudentProfile(ctx context.Context, studentID uint) (*model.StudentProfile, error) {
	var p model.StudentProfile
	err := r.DB.WithContext(ctx).First(&p, "user_id = ?", studentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.NewNotFound("student profile", studentID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ScoringRepository) LoadQuestionStats(ctx context.Context, questionIDs []string) (map[string]model.QuestionStats, error) {
	return r.Tests.FindStats(ctx, questionIDs)
}

func (r *ScoringRepository) FindAttempt(ctx context.Context, attemptID string) (*model.TestAttempt, error) {
	return r.Attempts.FindByID(ctx, attemptID)
}

func (r *ScoringRepository) LoadSession(ctx context.Context, studentID uint, sessionID string) ([]model.TestAttempt, error) {
	return r.Attempts.ListBySession(ctx, studentID, sessionID)
}

// SaveScoringResult 在一个事务内写入画像、题目计数、薄弱知识点和作答记录。
// 失败时什么都不提交；返回的 *util.PersistenceError 表明调用方能否用同一幂等键重试。
func (r *ScoringRepository) SaveScoringResult(ctx context.Context, w *model.ScoringWrite) (err error) {
	ctx, span := tracing.Start(ctx, "ScoringRepository.SaveScoringResult",
		attribute.String("attempt.id", w.Attempt.ID),
		attribute.Int("questions", len(w.Questions)),
	)
	defer func() { tracing.End(span, err) }()

	start := time.Now()
	defer func() { monitoring.SaveDuration.Observe(time.Since(start).Seconds()) }()

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		txErr := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return r.applyScoringWrite(tx, w)
		})
		if txErr == nil || isTransient(txErr) {
			return struct{}{}, txErr
		}
		return struct{}{}, backoff.Permanent(txErr)
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			monitoring.SaveRetries.Inc()
			logger.Log.Warn("Retrying scoring transaction",
				zap.String("attemptId", w.Attempt.ID),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	if err == nil {
		return nil
	}

	// 已存在的幂等键和缺失实体直接交给上层判断
	var nf *util.NotFoundError
	if errors.Is(err, util.ErrAttemptConflict) || errors.As(err, &nf) {
		return unwrapPermanent(err)
	}
	return &util.PersistenceError{
		Op:        "save scoring result",
		Err:       unwrapPermanent(err),
		Transient: isTransient(err) || errors.Is(err, errProfileVersionConflict) || errors.Is(err, context.DeadlineExceeded),
	}
}

func (r *ScoringRepository) applyScoringWrite(tx *gorm.DB, w *model.ScoringWrite) error {
	// 1. 幂等：同一 attempt id 已提交过则整体放弃
	var exists int64
	if err := tx.Model(&model.TestAttempt{}).Where("id = ?", w.Attempt.ID).Count(&exists).Error; err != nil {
		return err
	}
	if exists > 0 {
		return util.ErrAttemptConflict
	}

	// 2. 画像，乐观锁
	p := w.Profile
	res := tx.Model(&model.StudentProfile{}).
		Where("user_id = ? AND version = ?", p.StudentID, p.ExpectedVersion).
		Updates(map[string]interface{}{
			"ability":               p.Ability,
			"total_tests_taken":     p.TotalTestsTaken,
			"average_score_percent": p.AverageScorePercent,
			"version":               gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errProfileVersionConflict
	}

	// 3. 题目计数，按 id 排序加锁避免死锁
	questions := make([]model.QuestionUpdate, len(w.Questions))
	copy(questions, w.Questions)
	sort.Slice(questions, func(i, j int) bool { return questions[i].QuestionID < questions[j].QuestionID })
	for _, u := range questions {
		if err := r.applyQuestionUpdate(tx, u, w.Calibrate); err != nil {
			return err
		}
	}

	// 4. 薄弱知识点
	topics := make([]model.WeakTopicUpdate, len(w.WeakTopics))
	copy(topics, w.WeakTopics)
	sort.Slice(topics, func(i, j int) bool { return topics[i].Topic < topics[j].Topic })
	weak := r.Topics.WithTx(tx)
	for _, u := range topics {
		if err := weak.RecordMiss(tx.Statement.Context, u); err != nil {
			return err
		}
	}

	// 5. 作答记录，主键冲突同样视为重复提交
	if err := tx.Create(w.Attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return util.ErrAttemptConflict
		}
		return err
	}
	return nil
}

// applyQuestionUpdate 读取已提交的计数；与流程读取时一致则直接写入提议值，
// 否则在最新计数上重新加一并重算难度（rebase）。写入带 CAS 条件。
func (r *ScoringRepository) applyQuestionUpdate(tx *gorm.DB, u model.QuestionUpdate, calibrate model.CalibrateFunc) error {
	query := tx.Select("id", "difficulty", "attempt_count", "correct_count")
	if tx.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row model.TestQuestion
	if err := query.First(&row, "id = ?", u.QuestionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.NewNotFound("question", u.QuestionID)
		}
		return err
	}

	attempts, correct, difficulty := u.AttemptCount, u.CorrectCount, u.Difficulty
	if row.AttemptCount != u.ExpectedAttemptCount || row.CorrectCount != u.ExpectedCorrectCount || row.Difficulty != u.ExpectedDifficulty {
		attempts = row.AttemptCount + 1
		correct = row.CorrectCount
		if u.Correct {
			correct++
		}
		difficulty = row.Difficulty
		if calibrate != nil {
			difficulty = calibrate(row.Difficulty, attempts, correct)
		}
		monitoring.QuestionRebases.Inc()
	}

	res := tx.Model(&model.TestQuestion{}).
		Where("id = ? AND attempt_count = ? AND correct_count = ?", row.ID, row.AttemptCount, row.CorrectCount).
		Updates(map[string]interface{}{
			"attempt_count": attempts,
			"correct_count": correct,
			"difficulty":    difficulty,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errQuestionConflict
	}
	return nil
}

// isTransient 可在新事务中重试的错误：CAS 冲突、死锁、锁等待超时、SQLite 忙
func isTransient(err error) bool {
	if errors.Is(err, errQuestionConflict) {
		return true
	}
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1213 || me.Number == 1205
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}
