package app

import (
	"coder_edu_quiz/docs"
	"coder_edu_quiz/internal/config"
	"coder_edu_quiz/internal/middleware"
	"coder_edu_quiz/internal/model"
	"coder_edu_quiz/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/health", c.health.HealthCheck)

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret), a.limiter.Middleware())
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerTeacherRoutes(authGroup, c)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	quizzes := group.Group("/quizzes")
	{
		quizzes.GET("", c.catalog.ListQuizzes)
		quizzes.GET("/:id", c.quiz.GetQuiz)
		quizzes.POST("/:id/session", c.quiz.StartSession)
		quizzes.GET("/:id/attempts", c.quiz.History)
	}

	group.GET("/attempts/:id", c.catalog.GetAttempt)

	// 当前用户的作答会话
	session := group.Group("/quiz-session")
	{
		session.GET("", c.quiz.CurrentSession)
		session.DELETE("", c.quiz.Abandon)
		session.POST("/answers", c.quiz.SelectAnswer)
		session.POST("/next", c.quiz.Next)
		session.POST("/previous", c.quiz.Previous)
		session.POST("/goto", c.quiz.GoTo)
		session.POST("/complete", c.quiz.Complete)
		session.GET("/result", c.quiz.Result)
		session.GET("/review", c.quiz.Review)
		session.GET("/ws", c.quiz.Live)
	}
}

func (a *App) registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.GET("/quizzes/:id/attempts", c.quiz.QuizAttempts)
		teacher.DELETE("/quizzes/:id/cache", c.quiz.InvalidateCache)
	}
}
