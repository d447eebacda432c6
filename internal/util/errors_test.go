package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"coder_edu_quiz/internal/quiz"

	"github.com/stretchr/testify/assert"
)

func TestQuizErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{quiz.ErrAlreadyInProgress, http.StatusConflict},
		{quiz.ErrSessionClosed, http.StatusConflict},
		{quiz.ErrInvalidQuestionID, http.StatusBadRequest},
		{quiz.ErrOutOfRange, http.StatusBadRequest},
		{fmt.Errorf("%w: option 9", quiz.ErrAnswerMismatch), http.StatusBadRequest},
		{quiz.ErrNotStarted, http.StatusBadRequest},
		{fmt.Errorf("load q1: %w", ErrDefinitionLoadFailed), http.StatusServiceUnavailable},
		{ErrNoActiveSession, http.StatusNotFound},
		{ErrQuizNotFound, http.StatusNotFound},
		{ErrAttemptLimitReached, http.StatusForbidden},
		{ErrResultNotReady, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		code, msg := QuizErrorStatus(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.NotEmpty(t, msg)
	}

	_, msg := QuizErrorStatus(fmt.Errorf("wrap: %w", ErrDefinitionLoadFailed))
	assert.Equal(t, "quiz unavailable", msg)
}
