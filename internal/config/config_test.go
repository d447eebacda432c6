package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	yaml := `
server:
  port: "9090"
  mode: debug
jwt:
  secret: test
  expire_hours: 2
storage:
  type: local
  local_path: ` + uploads + `
quiz:
  default_question_seconds: 45
  partial_credit_ratio: 0.25
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, dir, cfg.ConfigDir)
	assert.Equal(t, 45, cfg.Quiz.DefaultQuestionSeconds)
	assert.Equal(t, 0.25, cfg.Quiz.PartialCreditRatio)
	// 未配置的项使用默认值
	assert.Equal(t, time.Second, cfg.Quiz.TickInterval)
	assert.Equal(t, 10*time.Minute, cfg.Quiz.DefinitionCacheTTL)
	assert.Equal(t, "quiz.events", cfg.Events.Exchange)
	assert.Equal(t, 300, cfg.RateLimit.MaxRequests)

	_, err = os.Stat(uploads)
	assert.NoError(t, err)
}

func TestQuizConfigValidate(t *testing.T) {
	valid := QuizConfig{DefaultQuestionSeconds: 60, TickInterval: time.Second, PartialCreditRatio: 0.5}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*QuizConfig)
	}{
		{"zero question seconds", func(q *QuizConfig) { q.DefaultQuestionSeconds = 0 }},
		{"zero tick interval", func(q *QuizConfig) { q.TickInterval = 0 }},
		{"ratio zero", func(q *QuizConfig) { q.PartialCreditRatio = 0 }},
		{"ratio one", func(q *QuizConfig) { q.PartialCreditRatio = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			assert.Error(t, q.Validate())
		})
	}
}
