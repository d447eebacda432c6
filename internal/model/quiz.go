package model

// QuestionType 题型，与 quiz.Kind 取值一致
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFreeText       QuestionType = "free_text"
	QuestionCode           QuestionType = "code"
)

// swagger:model Quiz
type Quiz struct {
	UUIDBase

	Title               string         `gorm:"size:200;not null" json:"title"`
	Description         string         `gorm:"type:text" json:"description"`
	TimeLimitSeconds    int            `gorm:"not null" json:"timeLimitSeconds"`
	PassingScorePercent int            `gorm:"default:60" json:"passingScorePercent"`
	MaxAttempts         int            `gorm:"default:0" json:"maxAttempts"` // 0 表示不限次数
	Published           bool           `gorm:"default:false;index" json:"published"`
	Questions           []QuizQuestion `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// swagger:model QuizQuestion
type QuizQuestion struct {
	BaseModel

	QuizID           string       `gorm:"type:varchar(36);uniqueIndex:idx_quiz_question_key" json:"quizId"`
	Key              string       `gorm:"size:64;uniqueIndex:idx_quiz_question_key" json:"key"` // 测验内的题目 id
	Position         int          `gorm:"default:0" json:"position"`
	Type             QuestionType `gorm:"size:32" json:"type"`
	Prompt           string       `gorm:"type:text" json:"prompt"`
	Points           int          `gorm:"default:1" json:"points"`
	TimeLimitSeconds *int         `json:"timeLimitSeconds,omitempty"`
	Options          string       `gorm:"type:json" json:"options,omitempty"` // 选择题选项（JSON array）
	CorrectIndex     *int         `json:"-"`
	CorrectBool      *bool        `json:"-"`
	ReferenceAnswer  string       `gorm:"type:text" json:"-"`
	Keywords         string       `gorm:"type:json" json:"-"` // 评分关键词（JSON array），为空时从参考答案提取
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}
