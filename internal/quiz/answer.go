package quiz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type answerKind uint8

const (
	answerChoice answerKind = iota + 1
	answerBool
	answerText
)

// Answer 用户提交的答案值，形态由题型决定：选项下标 / 布尔 / 文本
type Answer struct {
	kind  answerKind
	index int
	flag  bool
	text  string
}

func ChoiceAnswer(index int) Answer { return Answer{kind: answerChoice, index: index} }
func BoolAnswer(v bool) Answer      { return Answer{kind: answerBool, flag: v} }
func TextAnswer(s string) Answer    { return Answer{kind: answerText, text: s} }

func (a Answer) Choice() (int, bool) { return a.index, a.kind == answerChoice }
func (a Answer) Bool() (bool, bool)  { return a.flag, a.kind == answerBool }
func (a Answer) Text() (string, bool) {
	return a.text, a.kind == answerText
}

// Value 返回答案的原始值，用于序列化
func (a Answer) Value() interface{} {
	switch a.kind {
	case answerChoice:
		return a.index
	case answerBool:
		return a.flag
	case answerText:
		return a.text
	}
	return nil
}

func (a Answer) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Value())
}

func (a Answer) String() string {
	switch a.kind {
	case answerChoice:
		return strconv.Itoa(a.index)
	case answerBool:
		return strconv.FormatBool(a.flag)
	case answerText:
		return a.text
	}
	return ""
}

// checkFits 校验答案形态与题型一致
func checkFits(q Question, a Answer) error {
	switch v := q.(type) {
	case MultipleChoice:
		if a.kind != answerChoice {
			return fmt.Errorf("%w: question %q expects an option index", ErrAnswerMismatch, v.ID)
		}
		if a.index < 0 || a.index >= len(v.Options) {
			return fmt.Errorf("%w: option %d not in [0,%d)", ErrAnswerMismatch, a.index, len(v.Options))
		}
	case TrueFalse:
		if a.kind != answerBool {
			return fmt.Errorf("%w: question %q expects true or false", ErrAnswerMismatch, v.ID)
		}
	case FreeText, Code:
		if a.kind != answerText {
			return fmt.Errorf("%w: question %q expects text", ErrAnswerMismatch, q.QuestionID())
		}
	default:
		return fmt.Errorf("%w: unknown question type", ErrAnswerMismatch)
	}
	return nil
}

// ParseAnswer 按题型解析 JSON 答案值
func ParseAnswer(q Question, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Answer{}, fmt.Errorf("%w: empty answer", ErrAnswerMismatch)
	}

	var a Answer
	switch q.(type) {
	case MultipleChoice:
		var idx int
		if err := json.Unmarshal(raw, &idx); err != nil {
			return Answer{}, fmt.Errorf("%w: %v", ErrAnswerMismatch, err)
		}
		a = ChoiceAnswer(idx)
	case TrueFalse:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return Answer{}, fmt.Errorf("%w: %v", ErrAnswerMismatch, err)
		}
		a = BoolAnswer(v)
	case FreeText, Code:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Answer{}, fmt.Errorf("%w: %v", ErrAnswerMismatch, err)
		}
		a = TextAnswer(s)
	default:
		return Answer{}, fmt.Errorf("%w: unknown question type", ErrAnswerMismatch)
	}

	if err := checkFits(q, a); err != nil {
		return Answer{}, err
	}
	return a, nil
}

// Answers 答案快照（题目 id -> 答案），交给评分与回顾使用
type Answers map[string]Answer

// AnswerStore 会话内的答案存储，仅由会话写入
type AnswerStore struct {
	values map[string]Answer
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{values: make(map[string]Answer)}
}

// Set 覆盖写入
func (s *AnswerStore) Set(questionID string, a Answer) {
	s.values[questionID] = a
}

func (s *AnswerStore) Get(questionID string) (Answer, bool) {
	a, ok := s.values[questionID]
	return a, ok
}

func (s *AnswerStore) Len() int {
	return len(s.values)
}

// Snapshot 返回副本
func (s *AnswerStore) Snapshot() Answers {
	out := make(Answers, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *AnswerStore) Reset() {
	s.values = make(map[string]Answer)
}
