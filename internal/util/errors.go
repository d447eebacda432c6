package util

import (
	"errors"
	"net/http"

	"coder_edu_quiz/internal/quiz"
)

var (
	ErrPermissionDenied     = errors.New("permission denied")
	ErrQuizNotFound         = errors.New("quiz not found")
	ErrDefinitionLoadFailed = errors.New("quiz unavailable")
	ErrNoActiveSession      = errors.New("no active quiz session")
	ErrAttemptLimitReached  = errors.New("attempt limit reached")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrResultNotReady       = errors.New("quiz session is not completed yet")
)

// QuizErrorStatus 把业务错误映射为 HTTP 状态码和对外提示
func QuizErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, quiz.ErrAlreadyInProgress):
		return http.StatusConflict, "a quiz session is already in progress"
	case errors.Is(err, quiz.ErrSessionClosed):
		return http.StatusConflict, "quiz session is already completed"
	case errors.Is(err, quiz.ErrInvalidQuestionID):
		return http.StatusBadRequest, "question does not belong to this quiz"
	case errors.Is(err, quiz.ErrOutOfRange):
		return http.StatusBadRequest, "question index out of range"
	case errors.Is(err, quiz.ErrAnswerMismatch):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, quiz.ErrNotStarted):
		return http.StatusBadRequest, "quiz session has not started"
	case errors.Is(err, quiz.ErrInvalidDefinition), errors.Is(err, ErrDefinitionLoadFailed):
		return http.StatusServiceUnavailable, ErrDefinitionLoadFailed.Error()
	case errors.Is(err, ErrQuizNotFound):
		return http.StatusNotFound, ErrQuizNotFound.Error()
	case errors.Is(err, ErrNoActiveSession):
		return http.StatusNotFound, ErrNoActiveSession.Error()
	case errors.Is(err, ErrAttemptNotFound):
		return http.StatusNotFound, ErrAttemptNotFound.Error()
	case errors.Is(err, ErrResultNotReady):
		return http.StatusConflict, ErrResultNotReady.Error()
	case errors.Is(err, ErrAttemptLimitReached):
		return http.StatusForbidden, ErrAttemptLimitReached.Error()
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden, ErrPermissionDenied.Error()
	}
	return http.StatusInternalServerError, "Internal server error"
}
