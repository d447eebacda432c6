package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountdownClampsAtZero(t *testing.T) {
	var c Countdown
	c.Reset(2)
	assert.False(t, c.Tick())
	assert.True(t, c.Tick())
	assert.False(t, c.Tick())
	assert.Equal(t, 0, c.Remaining())

	c.Reset(-4)
	assert.Equal(t, 0, c.Remaining())
}

func TestTimersExpireTogether(t *testing.T) {
	var tm Timers
	tm.Exam.Reset(1)
	tm.Question.Reset(1)
	assert.Equal(t, Expiry{Exam: true, Question: true}, tm.Tick())

	tm.Exam.Reset(10)
	tm.Question.Reset(1)
	assert.Equal(t, Expiry{Question: true}, tm.Tick())
	assert.Equal(t, 9, tm.Exam.Remaining())
}
