package model

import "time"

// QuizAttempt 一次已完成的测验作答，ID 即会话 ID
//
// swagger:model QuizAttempt
type QuizAttempt struct {
	UUIDBase

	QuizID           string              `gorm:"type:varchar(36);index:idx_attempt_user_quiz" json:"quizId"`
	UserID           uint                `gorm:"index:idx_attempt_user_quiz;type:bigint unsigned" json:"userId"`
	ScoreAchieved    int                 `json:"scoreAchieved"`
	ScoreMax         int                 `json:"scoreMax"`
	Percent          float64             `json:"percent"`
	Passed           bool                `gorm:"default:false" json:"passed"`
	Reason           string              `gorm:"size:32" json:"reason"` // submitted, exam_timeout, question_timeout
	TimeSpentSeconds int                 `json:"timeSpentSeconds"`
	StartedAt        time.Time           `json:"startedAt"`
	CompletedAt      time.Time           `gorm:"index" json:"completedAt"`
	ReviewURL        string              `gorm:"size:512" json:"reviewUrl,omitempty"`
	Answers          []QuizAttemptAnswer `gorm:"foreignKey:AttemptID" json:"answers,omitempty"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// QuizAttemptAnswer 每题作答与得分，未作答的题目同样记录一行
type QuizAttemptAnswer struct {
	BaseModel
	AttemptID  string `gorm:"type:varchar(36);index" json:"attemptId"`
	QuestionID string `gorm:"size:64" json:"questionId"`
	Answered   bool   `json:"answered"`
	Answer     string `gorm:"type:json" json:"answer"` // JSON 存储学生答案
	Awarded    int    `json:"awarded"`
	MaxPoints  int    `json:"maxPoints"`
}

func (QuizAttemptAnswer) TableName() string {
	return "quiz_attempt_answers"
}
