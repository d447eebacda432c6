package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"coder_edu_quiz/internal/model"
	"coder_edu_quiz/internal/quiz"
	"coder_edu_quiz/internal/util"
	"coder_edu_quiz/pkg/logger"
	"coder_edu_quiz/pkg/tracing"

	"github.com/go-redis/redis/v8"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const definitionCacheKeyPrefix = "quiz:definition:"

// QuizSource 测验定义的持久化来源
type QuizSource interface {
	FindWithQuestions(ctx context.Context, id string) (*model.Quiz, error)
}

// definitionRecord 缓存中的测验定义，包含参考答案，只在服务端使用
type definitionRecord struct {
	ID                  string           `json:"id"`
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	TimeLimitSeconds    int              `json:"timeLimitSeconds"`
	PassingScorePercent int              `json:"passingScorePercent"`
	MaxAttempts         int              `json:"maxAttempts"`
	Questions           []questionRecord `json:"questions"`
}

type questionRecord struct {
	Key              string             `json:"key"`
	Type             model.QuestionType `json:"type"`
	Prompt           string             `json:"prompt"`
	Points           int                `json:"points"`
	TimeLimitSeconds *int               `json:"timeLimitSeconds,omitempty"`
	Options          string             `json:"options,omitempty"`
	CorrectIndex     *int               `json:"correctIndex,omitempty"`
	CorrectBool      *bool              `json:"correctBool,omitempty"`
	ReferenceAnswer  string             `json:"referenceAnswer,omitempty"`
	Keywords         string             `json:"keywords,omitempty"`
}

type QuizDefinitionService struct {
	Repo  QuizSource
	Redis *redis.Client

	mu  sync.RWMutex
	ttl time.Duration
}

// NewQuizDefinitionService rdb 为空时不使用缓存
func NewQuizDefinitionService(repo QuizSource, rdb *redis.Client, ttl time.Duration) *QuizDefinitionService {
	return &QuizDefinitionService{Repo: repo, Redis: rdb, ttl: ttl}
}

func (s *QuizDefinitionService) SetTTL(ttl time.Duration) {
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

func (s *QuizDefinitionService) cacheTTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttl
}

// Load 加载并校验测验定义。测验不存在返回 ErrQuizNotFound，
// 其余失败（数据库、定义不合法）统一包装为 ErrDefinitionLoadFailed
func (s *QuizDefinitionService) Load(ctx context.Context, quizID string) (*quiz.Definition, error) {
	ctx, span := tracing.StartSpan(ctx, "quiz.load_definition", attribute.String("quiz.id", quizID))
	defer span.End()

	rec, cached := s.readCache(ctx, quizID)
	if !cached {
		m, err := s.Repo.FindWithQuestions(ctx, quizID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuizNotFound
		}
		if err != nil {
			tracing.RecordError(span, err)
			return nil, fmt.Errorf("%w: %v", util.ErrDefinitionLoadFailed, err)
		}
		if !m.Published {
			return nil, util.ErrQuizNotFound
		}
		rec, err = newDefinitionRecord(m)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, fmt.Errorf("%w: %v", util.ErrDefinitionLoadFailed, err)
		}
	}
	span.SetAttributes(attribute.Bool("quiz.cache_hit", cached))

	def, err := rec.toDefinition()
	if err != nil {
		tracing.RecordError(span, err)
		logger.Log.Error("Invalid quiz definition", zap.String("quizId", quizID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", util.ErrDefinitionLoadFailed, err)
	}

	if !cached {
		s.writeCache(ctx, rec)
	}
	return def, nil
}

// Invalidate 删除缓存，教师修改测验后调用
func (s *QuizDefinitionService) Invalidate(ctx context.Context, quizID string) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Del(ctx, definitionCacheKeyPrefix+quizID).Err()
}

func (s *QuizDefinitionService) readCache(ctx context.Context, quizID string) (*definitionRecord, bool) {
	if s.Redis == nil {
		return nil, false
	}
	val, err := s.Redis.Get(ctx, definitionCacheKeyPrefix+quizID).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Log.Warn("Quiz definition cache read failed", zap.String("quizId", quizID), zap.Error(err))
		return nil, false
	}

	var rec definitionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		logger.Log.Warn("Corrupted quiz definition cache entry", zap.String("quizId", quizID), zap.Error(err))
		return nil, false
	}
	return &rec, true
}

func (s *QuizDefinitionService) writeCache(ctx context.Context, rec *definitionRecord) {
	ttl := s.cacheTTL()
	if s.Redis == nil || ttl <= 0 {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, definitionCacheKeyPrefix+rec.ID, data, ttl).Err(); err != nil {
		logger.Log.Warn("Quiz definition cache write failed", zap.String("quizId", rec.ID), zap.Error(err))
	}
}

func newDefinitionRecord(m *model.Quiz) (*definitionRecord, error) {
	var rec definitionRecord
	if err := copier.Copy(&rec, m); err != nil {
		return nil, err
	}
	rec.ID = m.ID
	return &rec, nil
}

func decodeStrings(raw, field string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	return out, nil
}

// toDefinition 构造引擎使用的不可变定义
func (r *definitionRecord) toDefinition() (*quiz.Definition, error) {
	def := &quiz.Definition{
		ID:                  r.ID,
		Title:               r.Title,
		Description:         r.Description,
		TimeLimitSeconds:    r.TimeLimitSeconds,
		PassingScorePercent: r.PassingScorePercent,
		MaxAttempts:         r.MaxAttempts,
		Questions:           make([]quiz.Question, 0, len(r.Questions)),
	}

	for _, q := range r.Questions {
		common := quiz.Common{
			ID:               q.Key,
			Prompt:           q.Prompt,
			Points:           q.Points,
			TimeLimitSeconds: q.TimeLimitSeconds,
		}

		switch q.Type {
		case model.QuestionMultipleChoice:
			options, err := decodeStrings(q.Options, "options")
			if err != nil {
				return nil, err
			}
			if q.CorrectIndex == nil {
				return nil, fmt.Errorf("question %q has no correct option", q.Key)
			}
			def.Questions = append(def.Questions, quiz.MultipleChoice{Common: common, Options: options, CorrectIndex: *q.CorrectIndex})
		case model.QuestionTrueFalse:
			if q.CorrectBool == nil {
				return nil, fmt.Errorf("question %q has no correct value", q.Key)
			}
			def.Questions = append(def.Questions, quiz.TrueFalse{Common: common, CorrectValue: *q.CorrectBool})
		case model.QuestionFreeText, model.QuestionCode:
			keywords, err := decodeStrings(q.Keywords, "keywords")
			if err != nil {
				return nil, err
			}
			rubric := quiz.TextRubric{ReferenceAnswer: q.ReferenceAnswer, Keywords: keywords}
			if q.Type == model.QuestionCode {
				def.Questions = append(def.Questions, quiz.Code{Common: common, TextRubric: rubric})
			} else {
				def.Questions = append(def.Questions, quiz.FreeText{Common: common, TextRubric: rubric})
			}
		default:
			return nil, fmt.Errorf("question %q has unknown type %q", q.Key, q.Type)
		}
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}
