package controller

import (
	"context"
	"net/http"
	"time"

	"coder_edu_quiz/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SessionCounter 进行中的会话数量
type SessionCounter interface {
	ActiveCount() int
}

type HealthController struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Sessions SessionCounter
}

func NewHealthController(db *gorm.DB, rdb *redis.Client, sessions SessionCounter) *HealthController {
	return &HealthController{DB: db, Redis: rdb, Sessions: sessions}
}

// @Summary 健康检查
// @Description 检查数据库与缓存状态；缓存不可用时服务降级运行
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	// 检查数据库连接
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	cache := "disabled"
	if c.Redis != nil {
		cache = "up"
		if err := c.Redis.Ping(pingCtx).Err(); err != nil {
			cache = "down"
		}
	}

	data := gin.H{
		"status": "ok",
		"components": gin.H{
			"database": "up",
			"cache":    cache,
		},
	}
	if c.Sessions != nil {
		data["activeSessions"] = c.Sessions.ActiveCount()
	}
	util.Success(ctx, data)
}
