package quiz

import "errors"

// 调用方误用产生的错误，发生时会话状态保持不变
var (
	ErrAlreadyInProgress = errors.New("quiz session already in progress")
	ErrSessionClosed     = errors.New("quiz session closed")
	ErrInvalidQuestionID = errors.New("invalid question id")
	ErrOutOfRange        = errors.New("question index out of range")
	ErrNotStarted        = errors.New("quiz session not started")
	ErrAnswerMismatch    = errors.New("answer does not match question type")
	ErrInvalidDefinition = errors.New("invalid quiz definition")
)
