package quiz

import (
	"fmt"
	"time"
)

const (
	BannerPassed = "passed"
	BannerFailed = "failed"
)

// ReviewItem 单题回顾
type ReviewItem struct {
	Index      int      `json:"index"`
	QuestionID string   `json:"questionId"`
	Kind       Kind     `json:"kind"`
	Prompt     string   `json:"prompt"`
	Options    []string `json:"options,omitempty"`

	Answered        bool        `json:"answered"`
	SubmittedAnswer interface{} `json:"submittedAnswer,omitempty"`
	SubmittedText   string      `json:"submittedText,omitempty"`
	ReferenceAnswer interface{} `json:"referenceAnswer"`
	ReferenceText   string      `json:"referenceText"`

	// Correct 只对选择题和判断题有值；主观题有部分得分，不给出对错
	Correct *bool `json:"correct,omitempty"`
	Awarded int   `json:"awarded"`
	Points  int   `json:"points"`
}

// Review 成绩回顾，只读
type Review struct {
	SessionID           string           `json:"sessionId"`
	QuizID              string           `json:"quizId"`
	Title               string           `json:"title"`
	Items               []ReviewItem     `json:"items"`
	ScoreAchieved       int              `json:"scoreAchieved"`
	ScoreMax            int              `json:"scoreMax"`
	Percent             float64          `json:"percent"`
	PassingScorePercent int              `json:"passingScorePercent"`
	Passed              bool             `json:"passed"`
	Banner              string           `json:"banner"`
	Answered            int              `json:"answered"`
	Unanswered          int              `json:"unanswered"`
	TimeSpentSeconds    int              `json:"timeSpentSeconds"`
	TimeSpent           string           `json:"timeSpent"`
	TimeLimitSeconds    int              `json:"timeLimitSeconds"`
	Reason              CompletionReason `json:"reason"`
	CompletedAt         time.Time        `json:"completedAt"`
}

// NewReview 根据测验定义与作答结果生成回顾，不修改 attempt
func NewReview(def *Definition, attempt AttemptResult) *Review {
	awarded := make(map[string]int, len(attempt.QuestionScores))
	for _, qs := range attempt.QuestionScores {
		awarded[qs.QuestionID] = qs.Awarded
	}

	r := &Review{
		SessionID:           attempt.SessionID,
		QuizID:              attempt.QuizID,
		Title:               def.Title,
		Items:               make([]ReviewItem, 0, len(def.Questions)),
		ScoreAchieved:       attempt.ScoreAchieved,
		ScoreMax:            attempt.ScoreMax,
		Percent:             attempt.Percent(),
		PassingScorePercent: def.PassingScorePercent,
		Passed:              attempt.Passed,
		Banner:              BannerFailed,
		TimeSpentSeconds:    attempt.TimeSpentSeconds,
		TimeSpent:           FormatDuration(attempt.TimeSpentSeconds),
		TimeLimitSeconds:    def.TimeLimitSeconds,
		Reason:              attempt.Reason,
		CompletedAt:         attempt.CompletedAt,
	}
	if attempt.Passed {
		r.Banner = BannerPassed
	}

	for i, q := range def.Questions {
		a, answered := attempt.Answers[q.QuestionID()]
		item := ReviewItem{
			Index:      i,
			QuestionID: q.QuestionID(),
			Kind:       q.Kind(),
			Prompt:     q.Text(),
			Answered:   answered,
			Awarded:    awarded[q.QuestionID()],
			Points:     q.Worth(),
		}
		if answered {
			item.SubmittedAnswer = a.Value()
			item.SubmittedText = a.String()
			r.Answered++
		} else {
			r.Unanswered++
		}

		switch v := q.(type) {
		case MultipleChoice:
			item.Options = append([]string(nil), v.Options...)
			item.ReferenceAnswer = v.CorrectIndex
			item.ReferenceText = v.Options[v.CorrectIndex]
			idx, ok := a.Choice()
			correct := answered && ok && idx == v.CorrectIndex
			item.Correct = &correct
			if answered && ok && idx >= 0 && idx < len(v.Options) {
				item.SubmittedText = v.Options[idx]
			}
		case TrueFalse:
			item.ReferenceAnswer = v.CorrectValue
			item.ReferenceText = fmt.Sprintf("%t", v.CorrectValue)
			b, ok := a.Bool()
			correct := answered && ok && b == v.CorrectValue
			item.Correct = &correct
		case FreeText:
			item.ReferenceAnswer = v.ReferenceAnswer
			item.ReferenceText = v.ReferenceAnswer
		case Code:
			item.ReferenceAnswer = v.ReferenceAnswer
			item.ReferenceText = v.ReferenceAnswer
		}

		r.Items = append(r.Items, item)
	}
	return r
}

// FormatDuration 秒数格式化为 mm:ss，超过一小时为 h:mm:ss
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
