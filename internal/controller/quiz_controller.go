package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"coder_edu_quiz/internal/service"
	"coder_edu_quiz/internal/util"
	"coder_edu_quiz/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefinitionCache 教师修改测验后清理缓存
type DefinitionCache interface {
	Invalidate(ctx context.Context, quizID string) error
}

type QuizController struct {
	Sessions    *service.QuizSessionService
	Definitions DefinitionCache
	Hub         *service.SessionHub
}

func NewQuizController(sessions *service.QuizSessionService, defs DefinitionCache, hub *service.SessionHub) *QuizController {
	return &QuizController{Sessions: sessions, Definitions: defs, Hub: hub}
}

type StartSessionRequest struct {
	// Restart 放弃进行中的作答重新开始
	Restart bool `json:"restart"`
}

type AnswerRequest struct {
	QuestionID string          `json:"questionId" binding:"required"`
	Value      json.RawMessage `json:"value" binding:"required" swaggertype:"object"`
}

type GoToRequest struct {
	Index *int `json:"index" binding:"required"`
}

// @Summary 获取测验概览
// @Description 返回题目列表（不含参考答案）
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response{data=service.DefinitionView}
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id} [get]
func (c *QuizController) GetQuiz(ctx *gin.Context) {
	view, err := c.Sessions.Definition(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.QuizError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 开始作答
// @Description 每个用户同一时间只能有一个进行中的作答，restart=true 时放弃旧的
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Param request body StartSessionRequest false "开始参数"
// @Success 201 {object} util.Response{data=service.SessionView}
// @Failure 403 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/quizzes/{id}/session [post]
func (c *QuizController) StartSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req StartSessionRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	view, err := c.Sessions.Start(ctx.Request.Context(), user.UserID, ctx.Param("id"), req.Restart)
	if err != nil {
		util.QuizError(ctx, err)
		return
	}
	util.Created(ctx, view)
}

// @Summary 当前作答状态
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.SessionView}
// @Failure 404 {object} util.Response
// @Router /api/quiz-session [get]
func (c *QuizController) CurrentSession(ctx *gin.Context) {
	c.respond(ctx, func(userID uint) (interface{}, error) {
		return c.Sessions.Current(userID)
	})
}

// @Summary 提交答案
// @Description value 按题型：选择题为选项下标，判断题为 true/false，简答和代码题为字符串
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AnswerRequest true "答案"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/quiz-session/answers [post]
func (c *QuizController) SelectAnswer(ctx *gin.Context) {
	var req AnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	c.respond(ctx, func(userID uint) (interface{}, error) {
		return c.Sessions.SelectAnswer(userID, req.QuestionID, req.Value)
	})
}

// @Summary 下一题
// @Description 在最后一题时等同于交卷
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/quiz-session/next [post]
func (c *QuizController) Next(ctx *gin.Context) {
	c.respond(ctx, func(userID uint) (interface{}, error) {
		return c.Sessions.Next(userID)
	})
}

// @Summary 上一题
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/quiz-session/previous [post]
func (c *QuizController) Previous(ctx *gin.Context) {
	c.respond(ctx, func(userID uint) (interface{}, error) {
		return c.Sessions.Previous(userID)
	})
}

// @Summary 跳转到指定题目
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GoToRequest true "题目下标（从0开始）"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/quiz-session/goto [post]
func (c *QuizController) GoTo(ctx *gin.Context) {
	var req GoToRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	c.respond(ctx, func(userID uint) (interface{}, error) {
		return c.Sessions.GoTo(userID, *req.Index)
	})
}

// @Summary 交卷
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.ResultView}
// @Router /api/quiz-session/complete [post]
func (c *QuizController) Complete(ctx *gin.Context) {
	c.respond(ctx, func(userID uint) (interface{}, error) {
		return c.Sessions.Complete(userID)
	})
}

// @Summary 作答结果
// @Description persistStatus 为 pending/saved/failed
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.ResultView}
// @Failure 409 {object} util.Response
// @Router /api/quiz-session/result [get]
func (c *QuizController) Result(ctx *gin.Context) {
	c.respond(ctx, func(userID uint) (interface{}, error) {
		return c.Sessions.Result(userID)
	})
}

// @Summary 成绩回顾
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=quiz.Review}
// @Failure 409 {object} util.Response
// @Router /api/quiz-session/review [get]
func (c *QuizController) Review(ctx *gin.Context) {
	c.respond(ctx, func(userID uint) (interface{}, error) {
		return c.Sessions.Review(userID)
	})
}

// @Summary 放弃作答
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/quiz-session [delete]
func (c *QuizController) Abandon(ctx *gin.Context) {
	c.respond(ctx, func(userID uint) (interface{}, error) {
		return nil, c.Sessions.Abandon(userID)
	})
}

// @Summary 实时推送
// @Description WebSocket 连接，推送 STATE / RESULT / CLOSED 消息；浏览器可用 ?token= 传令牌
// @Tags 测验
// @Security BearerAuth
// @Router /api/quiz-session/ws [get]
func (c *QuizController) Live(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	c.Hub.ServeWs(ctx.Writer, ctx.Request, user.UserIDString(), c.Sessions.LiveSnapshot(user.UserID))
}

// @Summary 我的历史作答
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/quizzes/{id}/attempts [get]
func (c *QuizController) History(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	page, limit := util.ParsePage(ctx.Query("page"), ctx.Query("limit"))
	list, total, err := c.Sessions.History(ctx.Request.Context(), user.UserID, ctx.Param("id"), page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: list, Total: total, Page: page, Limit: limit})
}

// @Summary 测验的全部作答
// @Tags 教师
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/teacher/quizzes/{id}/attempts [get]
func (c *QuizController) QuizAttempts(ctx *gin.Context) {
	page, limit := util.ParsePage(ctx.Query("page"), ctx.Query("limit"))
	list, total, err := c.Sessions.QuizAttempts(ctx.Request.Context(), ctx.Param("id"), page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: list, Total: total, Page: page, Limit: limit})
}

// @Summary 清理测验定义缓存
// @Tags 教师
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/quizzes/{id}/cache [delete]
func (c *QuizController) InvalidateCache(ctx *gin.Context) {
	quizID := ctx.Param("id")
	if err := c.Definitions.Invalidate(ctx.Request.Context(), quizID); err != nil {
		logger.Log.Warn("Invalidate quiz definition cache failed", zap.String("quizId", quizID), zap.Error(err))
		util.Error(ctx, http.StatusServiceUnavailable, "cache unavailable")
		return
	}
	util.Success(ctx, gin.H{"quizId": quizID})
}

// respond 取当前用户执行会话操作，并按错误类型返回
func (c *QuizController) respond(ctx *gin.Context, op func(userID uint) (interface{}, error)) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	data, err := op(user.UserID)
	if err != nil {
		util.QuizError(ctx, err)
		return
	}
	util.Success(ctx, data)
}
