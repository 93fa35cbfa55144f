package controller

import (
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"strings"

	"github.com/gin-gonic/gin"
)

type ScoringController struct {
	ScoringService *service.ScoringService
}

func NewScoringController(scoringService *service.ScoringService) *ScoringController {
	return &ScoringController{ScoringService: scoringService}
}

type submitTestRequest struct {
	AttemptID string            `json:"attemptId"`
	Answers   map[string]string `json:"answers"`
}

// SessionID 为空时开启新会话，响应里的 sessionId 用于后续作答
type diagnosticAnswerRequest struct {
	SessionID  string `json:"sessionId"`
	AttemptID  string `json:"attemptId"`
	QuestionID string `json:"questionId" binding:"required"`
	Answer     string `json:"answer"`
}

// @Summary 提交试卷
// @Description 评分、更新能力值与题目难度。携带相同的 Idempotency-Key 重试会返回首次结果
// @Tags 评分
// @Accept json
// @Produce json
// @Param id path string true "试卷ID"
// @Param Idempotency-Key header string false "幂等键"
// @Success 200 {object} util.Response
// @Router /api/tests/{id}/submit [post]
func (c *ScoringController) SubmitTest(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req submitTestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	attemptID, ok := resolveAttemptID(ctx, req.AttemptID)
	if !ok {
		return
	}

	result, err := c.ScoringService.ScoreSubmission(ctx.Request.Context(), service.Submission{
		StudentID: user.UserID,
		TestID:    ctx.Param("id"),
		AttemptID: attemptID,
		Answers:   req.Answers,
	})
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 诊断测试逐题作答
// @Tags 评分
// @Accept json
// @Produce json
// @Param id path string true "试卷ID"
// @Success 200 {object} util.Response
// @Router /api/tests/{id}/diagnostic [post]
func (c *ScoringController) SubmitDiagnostic(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req diagnosticAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	attemptID, ok := resolveAttemptID(ctx, req.AttemptID)
	if !ok {
		return
	}

	result, err := c.ScoringService.ScoreDiagnosticAnswer(ctx.Request.Context(), service.DiagnosticAnswer{
		StudentID:  user.UserID,
		TestID:     ctx.Param("id"),
		SessionID:  strings.TrimSpace(req.SessionID),
		AttemptID:  attemptID,
		QuestionID: req.QuestionID,
		Answer:     req.Answer,
	})
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// resolveAttemptID 请求头与请求体都带幂等键时必须一致
func resolveAttemptID(ctx *gin.Context, fromBody string) (string, bool) {
	header := strings.TrimSpace(ctx.GetHeader(util.HeaderIdempotencyKey))
	fromBody = strings.TrimSpace(fromBody)
	if header != "" && fromBody != "" && header != fromBody {
		util.BadRequest(ctx, "Idempotency-Key header and attemptId differ")
		return "", false
	}
	if header != "" {
		return header, true
	}
	return fromBody, true
}
