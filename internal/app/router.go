package app

import (
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/middleware"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerTeacherRoutes(authGroup, c)
		a.registerAdminRoutes(authGroup, c)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	students := group.Group("/students/me")
	{
		students.POST("/profile", c.student.Onboard)
		students.GET("/profile", c.student.GetProfile)
		students.GET("/weak-topics", c.student.WeakTopics)
		students.GET("/attempts", c.student.Attempts)
		students.GET("/recommendation", c.student.Recommendation)
	}

	tests := group.Group("/tests")
	{
		tests.GET("/:id", c.test.GetTest)
		tests.POST("/:id/submit", c.scoring.SubmitTest)
		tests.POST("/:id/diagnostic", c.scoring.SubmitDiagnostic)
	}
}

func (a *App) registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(util.RoleTeacher))
	{
		teacher.POST("/tests", c.test.CreateTest)
	}
}

func (a *App) registerAdminRoutes(group *gin.RouterGroup, c *controllers) {
	admin := group.Group("/admin")
	admin.Use(middleware.RoleMiddleware(util.RoleAdmin))
	{
		admin.DELETE("/students/:id/profile", c.student.DeleteProfile)
	}
}
