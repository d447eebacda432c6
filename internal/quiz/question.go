package quiz

import (
	"fmt"
	"strings"
)

// Kind 题目类型
type Kind string

const (
	KindMultipleChoice Kind = "multiple_choice"
	KindTrueFalse      Kind = "true_false"
	KindFreeText       Kind = "free_text"
	KindCode           Kind = "code"
)

// Question 是封闭的题目变体，只有本包内的四种题型实现它
type Question interface {
	QuestionID() string
	Kind() Kind
	Text() string
	Worth() int
	// TimeLimit 返回单题限时；未设置时 ok 为 false，由会话使用默认值
	TimeLimit() (seconds int, ok bool)
	question()
}

// Common 所有题型共有的字段
type Common struct {
	ID               string
	Prompt           string
	Points           int
	TimeLimitSeconds *int
}

func (c Common) QuestionID() string { return c.ID }
func (c Common) Text() string       { return c.Prompt }
func (c Common) Worth() int         { return c.Points }

func (c Common) TimeLimit() (int, bool) {
	if c.TimeLimitSeconds == nil {
		return 0, false
	}
	return *c.TimeLimitSeconds, true
}

// TextRubric 主观题（简答/代码）的参考答案与关键词
type TextRubric struct {
	ReferenceAnswer string
	// Keywords 为空时从参考答案中提取
	Keywords []string
}

type MultipleChoice struct {
	Common
	Options      []string
	CorrectIndex int
}

type TrueFalse struct {
	Common
	CorrectValue bool
}

type FreeText struct {
	Common
	TextRubric
}

type Code struct {
	Common
	TextRubric
}

func (MultipleChoice) Kind() Kind { return KindMultipleChoice }
func (TrueFalse) Kind() Kind      { return KindTrueFalse }
func (FreeText) Kind() Kind       { return KindFreeText }
func (Code) Kind() Kind           { return KindCode }

func (MultipleChoice) question() {}
func (TrueFalse) question()      {}
func (FreeText) question()       {}
func (Code) question()           {}

// Definition 一份测验的不可变描述，会话期间只读
type Definition struct {
	ID                  string
	Title               string
	Description         string
	TimeLimitSeconds    int
	PassingScorePercent int
	// MaxAttempts 由外部策略执行，引擎不使用
	MaxAttempts int
	Questions   []Question
}

// Validate 检查定义是否可以开始一次会话
func (d *Definition) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	if len(d.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidDefinition)
	}
	if d.TimeLimitSeconds <= 0 {
		return fmt.Errorf("%w: time limit must be positive", ErrInvalidDefinition)
	}
	if d.PassingScorePercent < 0 || d.PassingScorePercent > 100 {
		return fmt.Errorf("%w: passing score %d out of [0,100]", ErrInvalidDefinition, d.PassingScorePercent)
	}

	seen := make(map[string]bool, len(d.Questions))
	for i, q := range d.Questions {
		if q == nil {
			return fmt.Errorf("%w: question %d is nil", ErrInvalidDefinition, i)
		}
		id := q.QuestionID()
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: question %d has empty id", ErrInvalidDefinition, i)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidDefinition, id)
		}
		seen[id] = true

		if q.Worth() <= 0 {
			return fmt.Errorf("%w: question %q must be worth at least one point", ErrInvalidDefinition, id)
		}
		if limit, ok := q.TimeLimit(); ok && limit <= 0 {
			return fmt.Errorf("%w: question %q has non-positive time limit", ErrInvalidDefinition, id)
		}
		if mc, ok := q.(MultipleChoice); ok {
			if len(mc.Options) < 2 {
				return fmt.Errorf("%w: question %q needs at least two options", ErrInvalidDefinition, id)
			}
			if mc.CorrectIndex < 0 || mc.CorrectIndex >= len(mc.Options) {
				return fmt.Errorf("%w: question %q correct index %d out of range", ErrInvalidDefinition, id, mc.CorrectIndex)
			}
		}
	}
	return nil
}

// TotalPoints 所有题目分值之和
func (d *Definition) TotalPoints() int {
	total := 0
	for _, q := range d.Questions {
		total += q.Worth()
	}
	return total
}

func (d *Definition) LastIndex() int {
	return len(d.Questions) - 1
}

// Find 按 id 查找题目及其下标
func (d *Definition) Find(questionID string) (Question, int, bool) {
	for i, q := range d.Questions {
		if q.QuestionID() == questionID {
			return q, i, true
		}
	}
	return nil, -1, false
}
