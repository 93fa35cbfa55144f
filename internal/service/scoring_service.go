package service

import (
	"context"
	"errors"
	"exam_prep_backend/internal/irt"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"exam_prep_backend/pkg/tracing"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ScoringStore 评分流程依赖的持久化协作者
type ScoringStore interface {
	LoadTest(ctx context.Context, testID string) (*model.Test, error)
	LoadStudentProfile(ctx context.Context, studentID uint) (*model.StudentProfile, error)
	LoadQuestionStats(ctx context.Context, questionIDs []string) (map[string]model.QuestionStats, error)
	FindAttempt(ctx context.Context, attemptID string) (*model.TestAttempt, error)
	LoadSession(ctx context.Context, studentID uint, sessionID string) ([]model.TestAttempt, error)
	SaveScoringResult(ctx context.Context, w *model.ScoringWrite) error
}

// StudentLocker 按学生串行化提交
type StudentLocker interface {
	Lock(ctx context.Context, studentID uint) (unlock func(), err error)
}

// Submission 一次提交。AttemptID 为幂等键，为空时由服务端生成。
// QuestionIDs 非空时只评这些题。SessionID 非空表示诊断会话的一次作答：
// 能力与得分按整个会话计算，画像只计一次测试。
type Submission struct {
	StudentID   uint
	TestID      string
	AttemptID   string
	SessionID   string
	Answers     map[string]string
	QuestionIDs []string
}

type ItemResult struct {
	QuestionID string `json:"questionId"`
	Topic      string `json:"topic,omitempty"`
	Gradable   bool   `json:"gradable"`
	Correct    bool   `json:"correct"`
}

type ScoringResult struct {
	AttemptID     string       `json:"attemptId"`
	SessionID     string       `json:"sessionId,omitempty"`
	TestID        string       `json:"testId"`
	Score         float64      `json:"score"`
	ScorePercent  float64      `json:"scorePercent"`
	CorrectCount  int          `json:"correctCount"`
	GradedCount   int          `json:"gradedCount"`
	Grade         string       `json:"grade"`
	AbilityBefore float64      `json:"abilityBefore"`
	NewAbility    float64      `json:"newAbility"`
	Band          irt.Band     `json:"band"`
	Items         []ItemResult `json:"items"`
	Replayed      bool         `json:"replayed"`
	SubmittedAt   time.Time    `json:"submittedAt"`
}

type ScoringService struct {
	Store  ScoringStore
	Locker StudentLocker // 可为 nil，此时只依赖画像版本号

	mu         sync.RWMutex
	estimator  *irt.Estimator
	calibrator *irt.Calibrator

	now   func() time.Time
	newID func() string
}

func NewScoringService(store ScoringStore, locker StudentLocker, settings irt.Settings) *ScoringService {
	s := &ScoringService{
		Store:  store,
		Locker: locker,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	s.UpdateSettings(settings)
	return s
}

// UpdateSettings 热更新估计器与校准器参数，进行中的提交继续使用旧参数
func (s *ScoringService) UpdateSettings(settings irt.Settings) {
	est := irt.NewEstimator(settings)
	cal := irt.NewCalibrator(est.Settings().SmoothingAlpha)
	s.mu.Lock()
	s.estimator, s.calibrator = est, cal
	s.mu.Unlock()
}

func (s *ScoringService) Settings() irt.Settings {
	est, _ := s.engines()
	return est.Settings()
}

func (s *ScoringService) engines() (*irt.Estimator, *irt.Calibrator) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.estimator, s.calibrator
}

// ScoreSubmission 评分一次提交：评分、批量估计能力、逐题校准难度、记录薄弱知识点，
// 所有写入一个事务提交。同一 AttemptID 重复提交返回首次结果且不再写入。
func (s *ScoringService) ScoreSubmission(ctx context.Context, sub Submission) (result *ScoringResult, err error) {
	if sub.AttemptID == "" {
		sub.AttemptID = s.newID()
	}
	ctx, span := tracing.Start(ctx, "ScoringService.ScoreSubmission",
		attribute.Int64("student.id", int64(sub.StudentID)),
		attribute.String("test.id", sub.TestID),
		attribute.String("attempt.id", sub.AttemptID),
	)
	defer func() {
		tracing.End(span, err)
		monitoring.SubmissionCounter.WithLabelValues(outcomeOf(result, err)).Inc()
	}()

	if err := validateSubmission(&sub); err != nil {
		return nil, err
	}

	if s.Locker != nil {
		unlock, err := s.Locker.Lock(ctx, sub.StudentID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	// 幂等：在学生锁内检查，等待期间完成的同键请求也能命中
	if prior, err := s.Store.FindAttempt(ctx, sub.AttemptID); err != nil {
		return nil, err
	} else if prior != nil {
		return replay(prior, sub)
	}

	var session []model.TestAttempt
	if sub.SessionID != "" {
		if session, err = s.Store.LoadSession(ctx, sub.StudentID, sub.SessionID); err != nil {
			return nil, err
		}
		// 会话内已作答的题目返回当时的结果
		if answered, err := answeredInSession(session, sub); err != nil {
			return nil, err
		} else if answered != nil {
			return replay(answered, sub)
		}
	}

	test, err := s.Store.LoadTest(ctx, sub.TestID)
	if err != nil {
		return nil, err
	}
	if !test.IsPublished {
		return nil, util.NewNotFound("test", sub.TestID)
	}
	profile, err := s.Store.LoadStudentProfile(ctx, sub.StudentID)
	if err != nil {
		return nil, err
	}

	questions, err := selectQuestions(test, &sub)
	if err != nil {
		return nil, err
	}

	gradedIDs := make([]string, 0, len(questions))
	for i := range questions {
		if questions[i].Gradable() {
			gradedIDs = append(gradedIDs, questions[i].ID)
		}
	}
	stats, err := s.Store.LoadQuestionStats(ctx, gradedIDs)
	if err != nil {
		return nil, err
	}

	estimator, calibrator := s.engines()
	now := s.now()

	// 诊断会话之前的作答一并参与估计，得分按会话累计
	responses, prevCorrect, err := sessionResponses(session)
	if err != nil {
		return nil, err
	}
	prevGraded := len(responses)

	var (
		items         = make([]model.AttemptItemResult, 0, len(questions))
		qUpdates      = make([]model.QuestionUpdate, 0, len(gradedIDs))
		missesByTopic = make(map[string]int)
		correctCount  = prevCorrect
	)
	for i := range questions {
		q := &questions[i]
		given, answered := sub.Answers[q.ID]
		item := model.AttemptItemResult{
			QuestionID:  q.ID,
			Topic:       q.Topic,
			Gradable:    q.Gradable(),
			GivenAnswer: given,
			Difficulty:  q.Difficulty,
		}
		if !item.Gradable {
			items = append(items, item)
			continue
		}

		st, ok := stats[q.ID]
		if !ok {
			return nil, util.NewNotFound("question", q.ID)
		}
		item.Difficulty = st.Difficulty
		item.Correct = gradeAnswer(q, given, answered)

		responses = append(responses, irt.Response{Difficulty: st.Difficulty, Correct: item.Correct})
		qUpdates = append(qUpdates, proposeQuestionUpdate(calibrator, st, item.Correct))
		if item.Correct {
			correctCount++
		} else if topic := strings.TrimSpace(q.Topic); topic != "" {
			missesByTopic[topic]++
		}
		items = append(items, item)
	}

	// 一次批量估计，不逐题调用
	est, err := estimator.EstimateAbilityDetailed(profile.Ability, responses)
	if err != nil {
		return nil, err
	}
	if len(responses) > 0 {
		monitoring.EstimatorIterations.Observe(float64(est.Iterations))
	}
	newAbility := estimator.Clamp(est.Ability)

	graded := len(responses)
	score := 0.0
	if graded > 0 {
		score = float64(correctCount) / float64(graded)
	}
	scorePercent := round2(score * 100)
	grade := GradeFor(scorePercent)

	totalTests := profile.TotalTestsTaken + 1
	avg := round2((profile.AverageScorePercent*float64(profile.TotalTestsTaken) + scorePercent) / float64(totalTests))
	if len(session) > 0 {
		// 会话已计过一次测试，用新的会话得分替换旧的
		totalTests, avg = profile.TotalTestsTaken, profile.AverageScorePercent
		if totalTests > 0 {
			avg = round2(avg + (scorePercent-percentOf(prevCorrect, prevGraded))/float64(totalTests))
		}
	}

	attempt := &model.TestAttempt{
		ID:            sub.AttemptID,
		StudentID:     sub.StudentID,
		TestID:        sub.TestID,
		SessionID:     sub.SessionID,
		Score:         score,
		CorrectCount:  correctCount,
		GradedCount:   graded,
		Grade:         grade,
		AbilityBefore: profile.Ability,
		AbilityAfter:  newAbility,
		CreatedAt:     now,
	}
	if err := attempt.SetItems(items); err != nil {
		return nil, err
	}

	write := &model.ScoringWrite{
		Profile: model.ProfileUpdate{
			StudentID:           sub.StudentID,
			ExpectedVersion:     profile.Version,
			Ability:             newAbility,
			TotalTestsTaken:     totalTests,
			AverageScorePercent: avg,
		},
		Questions:  qUpdates,
		WeakTopics: weakTopicUpdates(sub.StudentID, missesByTopic, now),
		Attempt:    attempt,
		Calibrate:  calibrator.Recalibrate,
	}

	if err := s.Store.SaveScoringResult(ctx, write); err != nil {
		if errors.Is(err, util.ErrAttemptConflict) {
			// 同键请求先一步提交
			prior, findErr := s.Store.FindAttempt(ctx, sub.AttemptID)
			if findErr == nil && prior != nil {
				return replay(prior, sub)
			}
		}
		logger.Log.Error("Failed to save scoring result",
			zap.Uint("studentId", sub.StudentID),
			zap.String("attemptId", sub.AttemptID),
			zap.Bool("retryable", util.IsRetryable(err)),
			zap.Error(err))
		return nil, err
	}

	logger.Log.Info("Submission scored",
		zap.Uint("studentId", sub.StudentID),
		zap.String("testId", sub.TestID),
		zap.String("attemptId", sub.AttemptID),
		zap.String("sessionId", sub.SessionID),
		zap.Float64("score", score),
		zap.Float64("abilityBefore", profile.Ability),
		zap.Float64("abilityAfter", newAbility),
		zap.Int("iterations", est.Iterations),
		zap.Bool("converged", est.Converged))

	return resultFromAttempt(attempt, items, false), nil
}

// DiagnosticAnswer 诊断会话中的一次作答。SessionID 为空时开启新会话，
// AttemptID 为本次作答的幂等键，可为空。
type DiagnosticAnswer struct {
	StudentID  uint
	TestID     string
	SessionID  string
	AttemptID  string
	QuestionID string
	Answer     string
}

// ScoreDiagnosticAnswer 诊断会话逐题作答。会话第一题是一元素批量估计，
// 之后每题都按会话内全部作答重新估计；同一会话重复提交已作答的题目返回当时的结果。
func (s *ScoringService) ScoreDiagnosticAnswer(ctx context.Context, in DiagnosticAnswer) (*ScoringResult, error) {
	if strings.TrimSpace(in.QuestionID) == "" {
		return nil, fmt.Errorf("%w: questionId is required", util.ErrInvalidSubmission)
	}
	if in.SessionID == "" {
		in.SessionID = s.newID()
	}
	return s.ScoreSubmission(ctx, Submission{
		StudentID:   in.StudentID,
		TestID:      in.TestID,
		AttemptID:   in.AttemptID,
		SessionID:   in.SessionID,
		Answers:     map[string]string{in.QuestionID: in.Answer},
		QuestionIDs: []string{in.QuestionID},
	})
}

func validateSubmission(sub *Submission) error {
	switch {
	case sub.StudentID == 0:
		return fmt.Errorf("%w: student is required", util.ErrInvalidSubmission)
	case strings.TrimSpace(sub.TestID) == "":
		return fmt.Errorf("%w: testId is required", util.ErrInvalidSubmission)
	case len(sub.AttemptID) > util.MaxAttemptIDLength:
		return fmt.Errorf("%w: attempt id longer than %d characters", util.ErrInvalidSubmission, util.MaxAttemptIDLength)
	case len(sub.SessionID) > util.MaxAttemptIDLength:
		return fmt.Errorf("%w: session id longer than %d characters", util.ErrInvalidSubmission, util.MaxAttemptIDLength)
	case sub.SessionID != "" && len(sub.QuestionIDs) != 1:
		return fmt.Errorf("%w: a diagnostic answer covers exactly one question", util.ErrInvalidSubmission)
	}
	return nil
}

// selectQuestions 按试卷顺序返回参与本次提交的题目，并拒绝不属于试卷的题目 id
func selectQuestions(test *model.Test, sub *Submission) ([]model.TestQuestion, error) {
	byID := make(map[string]bool, len(test.Questions))
	for _, q := range test.Questions {
		byID[q.ID] = true
	}
	for id := range sub.Answers {
		if !byID[id] {
			return nil, fmt.Errorf("%w: question %s is not part of test %s", util.ErrInvalidSubmission, id, test.ID)
		}
	}
	if len(sub.QuestionIDs) == 0 {
		return test.Questions, nil
	}

	scope := make(map[string]bool, len(sub.QuestionIDs))
	for _, id := range sub.QuestionIDs {
		if !byID[id] {
			return nil, fmt.Errorf("%w: question %s is not part of test %s", util.ErrInvalidSubmission, id, test.ID)
		}
		scope[id] = true
	}
	selected := make([]model.TestQuestion, 0, len(scope))
	for _, q := range test.Questions {
		if scope[q.ID] {
			selected = append(selected, q)
		}
	}
	return selected, nil
}

// proposeQuestionUpdate 基于读取到的计数提出新值；持久层发现计数已变化会在最新值上重算
func proposeQuestionUpdate(cal *irt.Calibrator, st model.QuestionStats, correct bool) model.QuestionUpdate {
	attempts := st.AttemptCount + 1
	corrects := st.CorrectCount
	if correct {
		corrects++
	}
	return model.QuestionUpdate{
		QuestionID:           st.QuestionID,
		Correct:              correct,
		ExpectedAttemptCount: st.AttemptCount,
		ExpectedCorrectCount: st.CorrectCount,
		ExpectedDifficulty:   st.Difficulty,
		AttemptCount:         attempts,
		CorrectCount:         corrects,
		Difficulty:           cal.Recalibrate(st.Difficulty, attempts, corrects),
	}
}

// weakTopicUpdates 同一知识点的多次错题合并为一次累加
func weakTopicUpdates(studentID uint, misses map[string]int, at time.Time) []model.WeakTopicUpdate {
	updates := make([]model.WeakTopicUpdate, 0, len(misses))
	for topic, n := range misses {
		updates = append(updates, model.WeakTopicUpdate{StudentID: studentID, Topic: topic, Misses: n, SeenAt: at})
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].Topic < updates[j].Topic })
	return updates
}

// answeredInSession 返回会话中已包含这道题的作答；会话属于其他试卷时视为冲突
func answeredInSession(session []model.TestAttempt, sub Submission) (*model.TestAttempt, error) {
	for i := range session {
		if session[i].TestID != sub.TestID {
			return nil, util.ErrAttemptConflict
		}
		answered, err := session[i].Answered(sub.QuestionIDs[0])
		if err != nil {
			return nil, err
		}
		if answered {
			return &session[i], nil
		}
	}
	return nil, nil
}

// sessionResponses 会话内已评分作答及其中答对的题数
func sessionResponses(session []model.TestAttempt) ([]irt.Response, int, error) {
	var (
		responses []irt.Response
		correct   int
	)
	for i := range session {
		items, err := session[i].GetItems()
		if err != nil {
			return nil, 0, err
		}
		for _, it := range items {
			if !it.Gradable {
				continue
			}
			responses = append(responses, irt.Response{Difficulty: it.Difficulty, Correct: it.Correct})
			if it.Correct {
				correct++
			}
		}
	}
	return responses, correct, nil
}

// replay 返回已保存的结果；同一个键被用于不同学生、试卷或会话时视为冲突
func replay(prior *model.TestAttempt, sub Submission) (*ScoringResult, error) {
	if prior.StudentID != sub.StudentID || prior.TestID != sub.TestID || prior.SessionID != sub.SessionID {
		return nil, util.ErrAttemptConflict
	}
	items, err := prior.GetItems()
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Replaying stored attempt", zap.String("attemptId", prior.ID), zap.Uint("studentId", prior.StudentID))
	return resultFromAttempt(prior, items, true), nil
}

func resultFromAttempt(a *model.TestAttempt, items []model.AttemptItemResult, replayed bool) *ScoringResult {
	out := make([]ItemResult, 0, len(items))
	for _, it := range items {
		out = append(out, ItemResult{QuestionID: it.QuestionID, Topic: it.Topic, Gradable: it.Gradable, Correct: it.Correct})
	}
	return &ScoringResult{
		AttemptID:     a.ID,
		SessionID:     a.SessionID,
		TestID:        a.TestID,
		Score:         a.Score,
		ScorePercent:  round2(a.Score * 100),
		CorrectCount:  a.CorrectCount,
		GradedCount:   a.GradedCount,
		Grade:         a.Grade,
		AbilityBefore: a.AbilityBefore,
		NewAbility:    a.AbilityAfter,
		Band:          irt.BandFor(a.AbilityAfter),
		Items:         out,
		Replayed:      replayed,
		SubmittedAt:   a.CreatedAt,
	}
}

func outcomeOf(result *ScoringResult, err error) string {
	var nf *util.NotFoundError
	switch {
	case err == nil && result != nil && result.Replayed:
		return monitoring.OutcomeReplayed
	case err == nil:
		return monitoring.OutcomeScored
	case errors.As(err, &nf):
		return monitoring.OutcomeNotFound
	case errors.Is(err, util.ErrInvalidSubmission), errors.Is(err, util.ErrAttemptConflict):
		return monitoring.OutcomeInvalid
	case errors.Is(err, util.ErrStudentBusy):
		return monitoring.OutcomeBusy
	default:
		return monitoring.OutcomeFailed
	}
}

func percentOf(correct, graded int) float64 {
	if graded == 0 {
		return 0
	}
	return round2(float64(correct) / float64(graded) * 100)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
