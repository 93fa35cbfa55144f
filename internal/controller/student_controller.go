package controller

import (
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type StudentController struct {
	ProfileService        *service.StudentProfileService
	WeakTopicService      *service.WeakTopicService
	AttemptService        *service.AttemptService
	RecommendationService *service.RecommendationService
}

func NewStudentController(
	profileService *service.StudentProfileService,
	weakTopicService *service.WeakTopicService,
	attemptService *service.AttemptService,
	recommendationService *service.RecommendationService,
) *StudentController {
	return &StudentController{
		ProfileService:        profileService,
		WeakTopicService:      weakTopicService,
		AttemptService:        attemptService,
		RecommendationService: recommendationService,
	}
}

// @Summary 建立能力画像
// @Description 首次调用创建画像（能力值 0），重复调用返回已有画像
// @Tags 学生
// @Produce json
// @Success 201 {object} util.Response
// @Router /api/students/me/profile [post]
func (c *StudentController) Onboard(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	profile, created, err := c.ProfileService.Onboard(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	if created {
		util.Created(ctx, profile)
		return
	}
	util.Success(ctx, profile)
}

// @Summary 获取能力画像
// @Tags 学生
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/students/me/profile [get]
func (c *StudentController) GetProfile(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	profile, err := c.ProfileService.Get(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, profile)
}

// @Summary 薄弱知识点
// @Tags 学生
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/students/me/weak-topics [get]
func (c *StudentController) WeakTopics(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	topics, err := c.WeakTopicService.List(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, topics)
}

// @Summary 作答记录
// @Tags 学生
// @Produce json
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response
// @Router /api/students/me/attempts [get]
func (c *StudentController) Attempts(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	page, err := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit := util.ParseLimit(ctx.Query("limit"), util.DefaultPageLimit, util.MaxPageLimit)

	list, total, err := c.AttemptService.List(ctx.Request.Context(), user.UserID, page, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: list, Total: total, Page: page, Limit: limit})
}

// @Summary 推荐题目
// @Description 推荐难度与当前能力最接近的题目
// @Tags 学生
// @Produce json
// @Param limit query int false "数量" default(5)
// @Success 200 {object} util.Response
// @Router /api/students/me/recommendation [get]
func (c *StudentController) Recommendation(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	limit, _ := strconv.Atoi(ctx.Query("limit"))
	rec, err := c.RecommendationService.Recommend(ctx.Request.Context(), user.UserID, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, rec)
}

// @Summary 删除学生画像（账号注销）
// @Tags 管理员
// @Produce json
// @Param id path int true "学生ID"
// @Success 204
// @Router /api/admin/students/{id}/profile [delete]
func (c *StudentController) DeleteProfile(ctx *gin.Context) {
	studentID := util.MustParseUint(ctx.Param("id"))
	if studentID == 0 {
		util.BadRequest(ctx, "invalid student id")
		return
	}

	if err := c.ProfileService.Delete(ctx.Request.Context(), studentID); err != nil {
		util.RespondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
