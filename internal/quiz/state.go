package quiz

import "time"

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// State 会话状态：NotStarted / InProgress / Completed，各自携带自己的数据
type State interface {
	Status() Status
	state()
}

type NotStarted struct{}

type InProgress struct {
	CurrentIndex          int
	ExamTimeRemaining     int
	QuestionTimeRemaining int
}

type Completed struct {
	Attempt AttemptResult
}

func (NotStarted) Status() Status { return StatusNotStarted }
func (InProgress) Status() Status { return StatusInProgress }
func (Completed) Status() Status  { return StatusCompleted }

func (NotStarted) state() {}
func (InProgress) state() {}
func (Completed) state()  {}

// CompletionReason 会话结束的原因
type CompletionReason string

const (
	ReasonSubmitted       CompletionReason = "submitted"
	ReasonExamTimeout     CompletionReason = "exam_timeout"
	ReasonQuestionTimeout CompletionReason = "question_timeout"
)

// QuestionScore 单题得分
type QuestionScore struct {
	QuestionID string `json:"questionId"`
	Awarded    int    `json:"awarded"`
	Max        int    `json:"max"`
}

// AttemptResult 一次完成的作答结果，生成后不可变
type AttemptResult struct {
	SessionID        string           `json:"sessionId"`
	QuizID           string           `json:"quizId"`
	UserID           string           `json:"userId"`
	Answers          Answers          `json:"answers"`
	ScoreAchieved    int              `json:"scoreAchieved"`
	ScoreMax         int              `json:"scoreMax"`
	QuestionScores   []QuestionScore  `json:"questionScores"`
	TimeSpentSeconds int              `json:"timeSpentSeconds"`
	StartedAt        time.Time        `json:"startedAt"`
	CompletedAt      time.Time        `json:"completedAt"`
	Passed           bool             `json:"passed"`
	Reason           CompletionReason `json:"reason"`
}

// Percent 得分率（0-100）
func (r AttemptResult) Percent() float64 {
	if r.ScoreMax <= 0 {
		return 0
	}
	return float64(r.ScoreAchieved*100) / float64(r.ScoreMax)
}

// Clone 深拷贝，保证调用方拿到的结果不会影响会话内保存的那份
func (r AttemptResult) Clone() AttemptResult {
	out := r
	out.Answers = make(Answers, len(r.Answers))
	for k, v := range r.Answers {
		out.Answers[k] = v
	}
	out.QuestionScores = append([]QuestionScore(nil), r.QuestionScores...)
	return out
}

// Snapshot 供界面渲染的会话视图
type Snapshot struct {
	SessionID             string     `json:"sessionId"`
	QuizID                string     `json:"quizId"`
	UserID                string     `json:"userId"`
	Status                Status     `json:"status"`
	CurrentIndex          int        `json:"currentIndex"`
	CurrentQuestionID     string     `json:"currentQuestionId,omitempty"`
	QuestionCount         int        `json:"questionCount"`
	ExamTimeRemaining     int        `json:"examTimeRemaining"`
	QuestionTimeRemaining int        `json:"questionTimeRemaining"`
	Answered              int        `json:"answered"`
	CanGoBack             bool       `json:"canGoBack"`
	IsLastQuestion        bool       `json:"isLastQuestion"`
	StartedAt             *time.Time `json:"startedAt,omitempty"`
}
