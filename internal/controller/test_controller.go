package controller

import (
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type TestController struct {
	TestService *service.TestService
}

func NewTestController(testService *service.TestService) *TestController {
	return &TestController{TestService: testService}
}

// @Summary 获取试卷
// @Description 返回已发布试卷及题目，不含标准答案
// @Tags 试卷
// @Produce json
// @Param id path string true "试卷ID"
// @Success 200 {object} util.Response
// @Router /api/tests/{id} [get]
func (c *TestController) GetTest(ctx *gin.Context) {
	test, err := c.TestService.GetTest(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

// @Summary 创建试卷
// @Tags 教师
// @Accept json
// @Produce json
// @Param body body service.CreateTestInput true "试卷"
// @Success 201 {object} util.Response
// @Router /api/teacher/tests [post]
func (c *TestController) CreateTest(ctx *gin.Context) {
	var req service.CreateTestInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	test, err := c.TestService.CreateTest(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, test)
}
