package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReview(t *testing.T) {
	def := threeQuestionQuiz()
	s := newTestSession(t, def)
	require.NoError(t, s.Start())
	require.NoError(t, s.SelectAnswer("mc", ChoiceAnswer(2)))
	require.NoError(t, s.SelectAnswer("ft", TextAnswer("you send and receive values")))
	for i := 0; i < 75; i++ {
		s.Tick()
	}
	res, err := s.Complete()
	require.NoError(t, err)

	r := NewReview(def, res)
	require.Len(t, r.Items, 3)

	mc := r.Items[0]
	assert.Equal(t, "c", mc.SubmittedText)
	assert.Equal(t, "b", mc.ReferenceText)
	require.NotNil(t, mc.Correct)
	assert.False(t, *mc.Correct)
	assert.Equal(t, 0, mc.Awarded)
	assert.Equal(t, []string{"a", "b", "c"}, mc.Options)

	tf := r.Items[1]
	assert.False(t, tf.Answered)
	require.NotNil(t, tf.Correct)
	assert.False(t, *tf.Correct)
	assert.Equal(t, "false", tf.ReferenceText)

	ft := r.Items[2]
	assert.Nil(t, ft.Correct)
	assert.Equal(t, 15, ft.Awarded)
	assert.Equal(t, "you send and receive values", ft.SubmittedText)

	assert.Equal(t, 15, r.ScoreAchieved)
	assert.Equal(t, 30, r.ScoreMax)
	assert.InDelta(t, 50.0, r.Percent, 0.001)
	assert.False(t, r.Passed)
	assert.Equal(t, BannerFailed, r.Banner)
	assert.Equal(t, 2, r.Answered)
	assert.Equal(t, 1, r.Unanswered)
	assert.Equal(t, "01:15", r.TimeSpent)
	assert.Equal(t, ReasonSubmitted, r.Reason)
}

func TestNewReviewPassedBanner(t *testing.T) {
	def := &Definition{ID: "one", TimeLimitSeconds: 30, PassingScorePercent: 70, Questions: []Question{mcQuestion("mc", 0, 10)}}
	res := AttemptResult{QuizID: "one", Answers: Answers{"mc": ChoiceAnswer(0)}, ScoreAchieved: 10, ScoreMax: 10, Passed: true,
		QuestionScores: []QuestionScore{{QuestionID: "mc", Awarded: 10, Max: 10}}}

	r := NewReview(def, res)
	assert.Equal(t, BannerPassed, r.Banner)
	require.NotNil(t, r.Items[0].Correct)
	assert.True(t, *r.Items[0].Correct)
	assert.Equal(t, 10, r.Items[0].Awarded)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00", FormatDuration(-5))
	assert.Equal(t, "00:59", FormatDuration(59))
	assert.Equal(t, "05:00", FormatDuration(300))
	assert.Equal(t, "1:01:01", FormatDuration(3661))
}
