package quiz

import (
	"time"
)

// DefaultQuestionSeconds 题目未设置限时时使用的默认值
const DefaultQuestionSeconds = 60

// TickOutcome 一次 tick 带来的变化
type TickOutcome int

const (
	TickIdle TickOutcome = iota // 会话不在进行中，什么也没发生
	TickRunning
	TickAdvanced  // 单题超时，自动进入下一题
	TickCompleted // 计时结束，会话完成
)

type Option func(*Session)

// WithDefaultQuestionSeconds 设置单题默认限时
func WithDefaultQuestionSeconds(seconds int) Option {
	return func(s *Session) {
		if seconds > 0 {
			s.defaultQuestionSeconds = seconds
		}
	}
}

func WithScorer(scorer *Scorer) Option {
	return func(s *Session) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

// OnComplete 会话进入 Completed 时回调一次，参数为结果副本
func OnComplete(fn func(AttemptResult)) Option {
	return func(s *Session) { s.onComplete = fn }
}

// Session 单个用户对一份测验的一次作答，是状态机的唯一持有者。
// Session 不做任何内部调度和加锁，所有方法（包括 Tick）必须由宿主串行调用。
type Session struct {
	id                     string
	userID                 string
	def                    *Definition
	defaultQuestionSeconds int
	scorer                 *Scorer
	now                    func() time.Time
	onComplete             func(AttemptResult)

	state     State
	answers   *AnswerStore
	timers    Timers
	elapsed   int
	startedAt time.Time
}

// NewSession 基于已加载的测验定义创建会话，初始状态为 NotStarted
func NewSession(def *Definition, userID string, opts ...Option) (*Session, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		userID:                 userID,
		def:                    def,
		defaultQuestionSeconds: DefaultQuestionSeconds,
		scorer:                 NewScorer(nil),
		now:                    time.Now,
		state:                  NotStarted{},
		answers:                NewAnswerStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) ID() string              { return s.id }
func (s *Session) UserID() string          { return s.userID }
func (s *Session) Definition() *Definition { return s.def }
func (s *Session) State() State            { return s.state }

// Start NotStarted -> InProgress
func (s *Session) Start() error {
	switch s.state.(type) {
	case InProgress:
		return ErrAlreadyInProgress
	case Completed:
		return ErrSessionClosed
	}

	s.answers.Reset()
	s.elapsed = 0
	s.startedAt = s.now()
	s.timers.Exam.Reset(s.def.TimeLimitSeconds)
	s.enter(0)
	return nil
}

// Next 前进一题；在最后一题时等同于 Complete
func (s *Session) Next() error {
	p, err := s.inProgress()
	if err != nil {
		return err
	}
	if p.CurrentIndex >= s.def.LastIndex() {
		s.finish(ReasonSubmitted)
		return nil
	}
	s.enter(p.CurrentIndex + 1)
	return nil
}

// Previous 后退一题；单题计时重置，已用时间不退还
func (s *Session) Previous() error {
	p, err := s.inProgress()
	if err != nil {
		return err
	}
	if p.CurrentIndex <= 0 {
		return ErrOutOfRange
	}
	s.enter(p.CurrentIndex - 1)
	return nil
}

// GoTo 跳转到任意题目；跳转到当前题目不会重置计时
func (s *Session) GoTo(index int) error {
	p, err := s.inProgress()
	if err != nil {
		return err
	}
	if index < 0 || index > s.def.LastIndex() {
		return ErrOutOfRange
	}
	if index == p.CurrentIndex {
		return nil
	}
	s.enter(index)
	return nil
}

// SelectAnswer 记录答案（覆盖），不影响当前题目和计时
func (s *Session) SelectAnswer(questionID string, a Answer) error {
	if _, err := s.inProgress(); err != nil {
		return err
	}
	q, _, ok := s.def.Find(questionID)
	if !ok {
		return ErrInvalidQuestionID
	}
	if err := checkFits(q, a); err != nil {
		return err
	}
	s.answers.Set(questionID, a)
	return nil
}

// Complete 交卷
func (s *Session) Complete() (AttemptResult, error) {
	if _, err := s.inProgress(); err != nil {
		return AttemptResult{}, err
	}
	return s.finish(ReasonSubmitted), nil
}

// Tick 由宿主每秒调用一次。先判断考试计时，再判断单题计时，
// 两者同时归零时直接完成，不会出现先跳题再完成的情况。
func (s *Session) Tick() TickOutcome {
	p, ok := s.state.(InProgress)
	if !ok {
		return TickIdle
	}

	expiry := s.timers.Tick()
	s.elapsed++

	if expiry.Exam {
		s.finish(ReasonExamTimeout)
		return TickCompleted
	}
	if expiry.Question {
		if p.CurrentIndex >= s.def.LastIndex() {
			s.finish(ReasonQuestionTimeout)
			return TickCompleted
		}
		s.enter(p.CurrentIndex + 1)
		return TickAdvanced
	}

	s.sync(p.CurrentIndex)
	return TickRunning
}

// Result 返回已完成会话的结果副本
func (s *Session) Result() (AttemptResult, bool) {
	c, ok := s.state.(Completed)
	if !ok {
		return AttemptResult{}, false
	}
	return c.Attempt.Clone(), true
}

// Answers 当前答案快照
func (s *Session) Answers() Answers {
	if c, ok := s.state.(Completed); ok {
		return c.Attempt.Clone().Answers
	}
	return s.answers.Snapshot()
}

// CurrentQuestion 当前可见的题目
func (s *Session) CurrentQuestion() (Question, int, error) {
	p, err := s.inProgress()
	if err != nil {
		return nil, -1, err
	}
	return s.def.Questions[p.CurrentIndex], p.CurrentIndex, nil
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:     s.id,
		QuizID:        s.def.ID,
		UserID:        s.userID,
		Status:        s.state.Status(),
		QuestionCount: len(s.def.Questions),
	}

	switch st := s.state.(type) {
	case InProgress:
		started := s.startedAt
		snap.StartedAt = &started
		snap.CurrentIndex = st.CurrentIndex
		snap.CurrentQuestionID = s.def.Questions[st.CurrentIndex].QuestionID()
		snap.ExamTimeRemaining = st.ExamTimeRemaining
		snap.QuestionTimeRemaining = st.QuestionTimeRemaining
		snap.Answered = s.answers.Len()
		snap.CanGoBack = st.CurrentIndex > 0
		snap.IsLastQuestion = st.CurrentIndex == s.def.LastIndex()
	case Completed:
		started := st.Attempt.StartedAt
		snap.StartedAt = &started
		snap.Answered = len(st.Attempt.Answers)
	}
	return snap
}

func (s *Session) inProgress() (InProgress, error) {
	switch st := s.state.(type) {
	case InProgress:
		return st, nil
	case Completed:
		return InProgress{}, ErrSessionClosed
	default:
		return InProgress{}, ErrNotStarted
	}
}

// enter 切换到第 index 题并重置单题计时
func (s *Session) enter(index int) {
	s.timers.Question.Reset(s.questionLimit(index))
	s.sync(index)
}

func (s *Session) sync(index int) {
	s.state = InProgress{
		CurrentIndex:          index,
		ExamTimeRemaining:     s.timers.Exam.Remaining(),
		QuestionTimeRemaining: s.timers.Question.Remaining(),
	}
}

func (s *Session) questionLimit(index int) int {
	if limit, ok := s.def.Questions[index].TimeLimit(); ok {
		return limit
	}
	return s.defaultQuestionSeconds
}

func (s *Session) finish(reason CompletionReason) AttemptResult {
	answers := s.answers.Snapshot()
	sheet := s.scorer.Score(s.def, answers)

	result := AttemptResult{
		SessionID:        s.id,
		QuizID:           s.def.ID,
		UserID:           s.userID,
		Answers:          answers,
		ScoreAchieved:    sheet.Achieved,
		ScoreMax:         sheet.Max,
		QuestionScores:   sheet.Questions,
		TimeSpentSeconds: s.elapsed,
		StartedAt:        s.startedAt,
		CompletedAt:      s.now(),
		Passed:           sheet.Passed,
		Reason:           reason,
	}
	s.state = Completed{Attempt: result}

	if s.onComplete != nil {
		s.onComplete(result.Clone())
	}
	return result.Clone()
}
