package controller

import (
	"context"
	"errors"

	"coder_edu_quiz/internal/model"
	"coder_edu_quiz/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type QuizLister interface {
	ListPublished(ctx context.Context) ([]model.Quiz, error)
}

type AttemptFinder interface {
	FindWithAnswers(ctx context.Context, attemptID string) (*model.QuizAttempt, error)
}

// CatalogController 测验列表与已保存的作答详情，直接读仓库
type CatalogController struct {
	Quizzes  QuizLister
	Attempts AttemptFinder
}

func NewCatalogController(quizzes QuizLister, attempts AttemptFinder) *CatalogController {
	return &CatalogController{Quizzes: quizzes, Attempts: attempts}
}

// @Summary 已发布的测验
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.Quiz}
// @Router /api/quizzes [get]
func (c *CatalogController) ListQuizzes(ctx *gin.Context) {
	quizzes, err := c.Quizzes.ListPublished(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, quizzes)
}

// @Summary 作答详情
// @Description 学生只能查看自己的作答，教师可以查看全部
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response{data=model.QuizAttempt}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/attempts/{id} [get]
func (c *CatalogController) GetAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	attempt, err := c.Attempts.FindWithAnswers(ctx.Request.Context(), ctx.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.QuizError(ctx, util.ErrAttemptNotFound)
		return
	}
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	if attempt.UserID != user.UserID && user.Role == model.Student {
		util.QuizError(ctx, util.ErrPermissionDenied)
		return
	}
	util.Success(ctx, attempt)
}
