package service

import (
	"time"

	"coder_edu_quiz/internal/quiz"
)

// QuestionView 渲染用的题目视图，不含参考答案
type QuestionView struct {
	ID               string    `json:"id"`
	Kind             quiz.Kind `json:"kind"`
	Prompt           string    `json:"prompt"`
	Points           int       `json:"points"`
	Options          []string  `json:"options,omitempty"`
	TimeLimitSeconds int       `json:"timeLimitSeconds,omitempty"`
}

// DefinitionView 测验概览
type DefinitionView struct {
	ID                  string         `json:"id"`
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	TimeLimitSeconds    int            `json:"timeLimitSeconds"`
	PassingScorePercent int            `json:"passingScorePercent"`
	MaxAttempts         int            `json:"maxAttempts"`
	TotalPoints         int            `json:"totalPoints"`
	Questions           []QuestionView `json:"questions"`
}

// SessionView 会话快照加上当前题目和已选答案
type SessionView struct {
	quiz.Snapshot
	Question *QuestionView `json:"question,omitempty"`
	Answers  quiz.Answers  `json:"answers"`
}

// ResultView 作答结果与持久化状态
type ResultView struct {
	Attempt       quiz.AttemptResult `json:"attempt"`
	Percent       float64            `json:"percent"`
	PersistStatus string             `json:"persistStatus"`
	PersistError  string             `json:"persistError,omitempty"`
	ReviewURL     string             `json:"reviewUrl,omitempty"`
}

// AttemptSummary 历史作答列表项
type AttemptSummary struct {
	ID               string    `json:"id"`
	QuizID           string    `json:"quizId"`
	UserID           uint      `json:"userId"`
	ScoreAchieved    int       `json:"scoreAchieved"`
	ScoreMax         int       `json:"scoreMax"`
	Percent          float64   `json:"percent"`
	Passed           bool      `json:"passed"`
	Reason           string    `json:"reason"`
	TimeSpentSeconds int       `json:"timeSpentSeconds"`
	StartedAt        time.Time `json:"startedAt"`
	CompletedAt      time.Time `json:"completedAt"`
	ReviewURL        string    `json:"reviewUrl,omitempty"`
}

func NewQuestionView(q quiz.Question) QuestionView {
	v := QuestionView{
		ID:     q.QuestionID(),
		Kind:   q.Kind(),
		Prompt: q.Text(),
		Points: q.Worth(),
	}
	if limit, ok := q.TimeLimit(); ok {
		v.TimeLimitSeconds = limit
	}
	if mc, ok := q.(quiz.MultipleChoice); ok {
		v.Options = append([]string(nil), mc.Options...)
	}
	return v
}

func NewDefinitionView(def *quiz.Definition) DefinitionView {
	v := DefinitionView{
		ID:                  def.ID,
		Title:               def.Title,
		Description:         def.Description,
		TimeLimitSeconds:    def.TimeLimitSeconds,
		PassingScorePercent: def.PassingScorePercent,
		MaxAttempts:         def.MaxAttempts,
		TotalPoints:         def.TotalPoints(),
		Questions:           make([]QuestionView, 0, len(def.Questions)),
	}
	for _, q := range def.Questions {
		v.Questions = append(v.Questions, NewQuestionView(q))
	}
	return v
}

func newSessionView(s *quiz.Session) SessionView {
	v := SessionView{Snapshot: s.Snapshot(), Answers: s.Answers()}
	if q, _, err := s.CurrentQuestion(); err == nil {
		qv := NewQuestionView(q)
		v.Question = &qv
	}
	return v
}
