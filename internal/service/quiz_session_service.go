package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"coder_edu_quiz/internal/config"
	"coder_edu_quiz/internal/model"
	"coder_edu_quiz/internal/quiz"
	"coder_edu_quiz/internal/util"
	"coder_edu_quiz/pkg/logger"
	"coder_edu_quiz/pkg/monitoring"
	"coder_edu_quiz/pkg/tracing"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// completedRetention 已完成会话在内存中保留的时长，之后只能通过历史记录查询
const completedRetention = 2 * time.Hour

// DefinitionLoader 加载已校验的测验定义
type DefinitionLoader interface {
	Load(ctx context.Context, quizID string) (*quiz.Definition, error)
}

// AttemptStore 作答记录的持久化
type AttemptStore interface {
	Create(ctx context.Context, attempt *model.QuizAttempt) error
	SetReviewURL(ctx context.Context, attemptID, url string) error
	CountByUserAndQuiz(ctx context.Context, userID uint, quizID string) (int64, error)
	ListByUserAndQuiz(ctx context.Context, userID uint, quizID string, page, limit int) ([]model.QuizAttempt, int64, error)
	ListByQuiz(ctx context.Context, quizID string, page, limit int) ([]model.QuizAttempt, int64, error)
}

// ReviewArchiver 归档作答回顾
type ReviewArchiver interface {
	ArchiveReview(ctx context.Context, review *quiz.Review) (string, error)
	DeleteReview(ctx context.Context, quizID, sessionID string) error
}

// EventPublisher 发布作答完成事件
type EventPublisher interface {
	PublishAttemptCompleted(ctx context.Context, event AttemptCompletedEvent) error
}

// LivePusher 向用户的实时连接推送消息
type LivePusher interface {
	Push(userID string, msg WSMessage)
}

// hostedSession 服务持有的一次会话及其持久化状态
type hostedSession struct {
	session      *quiz.Session
	userID       uint
	persist      string
	persistError string
	reviewURL    string
}

// QuizSessionService 每个用户同一时间最多一个会话。所有会话方法与 tick 在同一把锁下串行执行，
// 持久化在后台进行，失败不影响已经得出的结果。
type QuizSessionService struct {
	defs     DefinitionLoader
	attempts AttemptStore
	archiver ReviewArchiver
	events   EventPublisher
	live     LivePusher

	mu       sync.Mutex
	sessions map[uint]*hostedSession
	settings config.QuizConfig
	// 已完成但仍在保存中的作答数，按 用户/测验 统计
	pending map[string]int

	now   func() time.Time
	newID func() string
	wg    sync.WaitGroup
}

type SessionServiceOption func(*QuizSessionService)

func WithArchiver(a ReviewArchiver) SessionServiceOption {
	return func(s *QuizSessionService) { s.archiver = a }
}

func WithEventPublisher(p EventPublisher) SessionServiceOption {
	return func(s *QuizSessionService) { s.events = p }
}

func WithLivePusher(p LivePusher) SessionServiceOption {
	return func(s *QuizSessionService) { s.live = p }
}

// WithServiceClock 测试中固定时间
func WithServiceClock(now func() time.Time) SessionServiceOption {
	return func(s *QuizSessionService) { s.now = now }
}

func NewQuizSessionService(defs DefinitionLoader, attempts AttemptStore, settings config.QuizConfig, opts ...SessionServiceOption) *QuizSessionService {
	s := &QuizSessionService{
		defs:     defs,
		attempts: attempts,
		events:   LogPublisher{},
		sessions: make(map[uint]*hostedSession),
		settings: settings,
		pending:  make(map[string]int),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyConfig 热更新，只影响之后开始的会话
func (s *QuizSessionService) ApplyConfig(settings config.QuizConfig) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	logger.Log.Info("Quiz settings updated",
		zap.Int("defaultQuestionSeconds", settings.DefaultQuestionSeconds),
		zap.Float64("partialCreditRatio", settings.PartialCreditRatio),
		zap.Duration("tickInterval", settings.TickInterval))
	return nil
}

func (s *QuizSessionService) Settings() config.QuizConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Definition 渲染用的测验概览
func (s *QuizSessionService) Definition(ctx context.Context, quizID string) (DefinitionView, error) {
	def, err := s.defs.Load(ctx, quizID)
	if err != nil {
		return DefinitionView{}, err
	}
	return NewDefinitionView(def), nil
}

// Start 开始一次作答。已有进行中的会话时返回 ErrAlreadyInProgress，
// restart 为 true 时丢弃旧会话（不计分、不保存）
func (s *QuizSessionService) Start(ctx context.Context, userID uint, quizID string, restart bool) (SessionView, error) {
	ctx, span := tracing.StartSpan(ctx, "quiz.start_session",
		attribute.String("quiz.id", quizID),
		attribute.Int64("user.id", int64(userID)))
	defer span.End()

	key := pendingKey(userID, quizID)
	s.mu.Lock()
	if h, ok := s.sessions[userID]; ok && isInProgress(h) && !restart {
		s.mu.Unlock()
		return SessionView{}, quiz.ErrAlreadyInProgress
	}
	// 查库前取快照，加锁后与当前值取较大者
	pendingBefore := s.pending[key]
	s.mu.Unlock()

	def, err := s.defs.Load(ctx, quizID)
	if err != nil {
		tracing.RecordError(span, err)
		return SessionView{}, err
	}

	var used int64
	if def.MaxAttempts > 0 {
		used, err = s.attempts.CountByUserAndQuiz(ctx, userID, quizID)
		if err != nil {
			tracing.RecordError(span, err)
			return SessionView{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 保存中的作答也占用次数
	if def.MaxAttempts > 0 && int(used)+max(pendingBefore, s.pending[key]) >= def.MaxAttempts {
		return SessionView{}, util.ErrAttemptLimitReached
	}

	// 加载定义期间可能有并发的 Start
	var discarded *hostedSession
	if old, ok := s.sessions[userID]; ok && isInProgress(old) {
		if !restart {
			return SessionView{}, quiz.ErrAlreadyInProgress
		}
		discarded = old
	}

	h := &hostedSession{userID: userID}
	sess, err := quiz.NewSession(def, strconv.FormatUint(uint64(userID), 10),
		quiz.WithSessionID(s.newID()),
		quiz.WithClock(s.now),
		quiz.WithDefaultQuestionSeconds(s.settings.DefaultQuestionSeconds),
		quiz.WithScorer(quiz.NewScorer(quiz.NewKeywordGrader(s.settings.PartialCreditRatio))),
		quiz.OnComplete(func(r quiz.AttemptResult) { s.completed(h, r) }),
	)
	if err != nil {
		return SessionView{}, err
	}
	if err := sess.Start(); err != nil {
		return SessionView{}, err
	}
	h.session = sess
	s.sessions[userID] = h

	if discarded != nil {
		monitoring.ActiveSessions.Dec()
		logger.Session(discarded.session.ID(), discarded.session.Definition().ID, discarded.session.UserID()).Info("Quiz session discarded by restart")
	}
	monitoring.ActiveSessions.Inc()
	monitoring.SessionsStarted.WithLabelValues(def.ID).Inc()
	logger.Session(sess.ID(), def.ID, sess.UserID()).Info("Quiz session started",
		zap.Int("questions", len(def.Questions)),
		zap.Int("timeLimitSeconds", def.TimeLimitSeconds))

	view := newSessionView(sess)
	s.pushState(h, view)
	return view, nil
}

// Current 当前会话视图
func (s *QuizSessionService) Current(userID uint) (SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions[userID]
	if !ok {
		return SessionView{}, util.ErrNoActiveSession
	}
	return newSessionView(h.session), nil
}

// SelectAnswer value 按题型解析：选择题为下标，判断题为布尔，简答/代码题为字符串
func (s *QuizSessionService) SelectAnswer(userID uint, questionID string, value json.RawMessage) (SessionView, error) {
	return s.mutate(userID, func(sess *quiz.Session) error {
		switch sess.State().(type) {
		case quiz.Completed:
			return quiz.ErrSessionClosed
		case quiz.NotStarted:
			return quiz.ErrNotStarted
		}
		q, _, ok := sess.Definition().Find(questionID)
		if !ok {
			return quiz.ErrInvalidQuestionID
		}
		answer, err := quiz.ParseAnswer(q, value)
		if err != nil {
			return err
		}
		return sess.SelectAnswer(questionID, answer)
	})
}

func (s *QuizSessionService) Next(userID uint) (SessionView, error) {
	return s.mutate(userID, (*quiz.Session).Next)
}

func (s *QuizSessionService) Previous(userID uint) (SessionView, error) {
	return s.mutate(userID, (*quiz.Session).Previous)
}

func (s *QuizSessionService) GoTo(userID uint, index int) (SessionView, error) {
	return s.mutate(userID, func(sess *quiz.Session) error { return sess.GoTo(index) })
}

// Complete 交卷，返回结果；持久化在后台进行
func (s *QuizSessionService) Complete(userID uint) (ResultView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions[userID]
	if !ok {
		return ResultView{}, util.ErrNoActiveSession
	}
	if _, err := h.session.Complete(); err != nil {
		return ResultView{}, err
	}
	return resultView(h), nil
}

// Result 已完成会话的结果
func (s *QuizSessionService) Result(userID uint) (ResultView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions[userID]
	if !ok {
		return ResultView{}, util.ErrNoActiveSession
	}
	if _, done := h.session.Result(); !done {
		return ResultView{}, util.ErrResultNotReady
	}
	return resultView(h), nil
}

// Review 已完成会话的逐题回顾
func (s *QuizSessionService) Review(userID uint) (*quiz.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions[userID]
	if !ok {
		return nil, util.ErrNoActiveSession
	}
	res, done := h.session.Result()
	if !done {
		return nil, util.ErrResultNotReady
	}
	return quiz.NewReview(h.session.Definition(), res), nil
}

// Abandon 放弃当前会话，进行中的作答不会被计分或保存
func (s *QuizSessionService) Abandon(userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions[userID]
	if !ok {
		return util.ErrNoActiveSession
	}
	if isInProgress(h) {
		monitoring.ActiveSessions.Dec()
		logger.Session(h.session.ID(), h.session.Definition().ID, h.session.UserID()).Info("Quiz session abandoned")
	}
	delete(s.sessions, userID)
	s.push(h.session.UserID(), WSMessage{Type: MessageClosed, Data: map[string]string{"sessionId": h.session.ID()}})
	return nil
}

// History 用户在某测验上的历史作答
func (s *QuizSessionService) History(ctx context.Context, userID uint, quizID string, page, limit int) ([]AttemptSummary, int64, error) {
	attempts, total, err := s.attempts.ListByUserAndQuiz(ctx, userID, quizID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	return summarize(attempts, total)
}

// QuizAttempts 教师查看某测验的全部作答
func (s *QuizSessionService) QuizAttempts(ctx context.Context, quizID string, page, limit int) ([]AttemptSummary, int64, error) {
	attempts, total, err := s.attempts.ListByQuiz(ctx, quizID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	return summarize(attempts, total)
}

func summarize(attempts []model.QuizAttempt, total int64) ([]AttemptSummary, int64, error) {
	out := make([]AttemptSummary, 0, len(attempts))
	if err := copier.Copy(&out, &attempts); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// TickAll 所有进行中的会话走一秒
func (s *QuizSessionService) TickAll() {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for userID, h := range s.sessions {
		switch h.session.Tick() {
		case quiz.TickIdle:
			if res, done := h.session.Result(); done && now.Sub(res.CompletedAt) > completedRetention {
				delete(s.sessions, userID)
			}
		case quiz.TickRunning, quiz.TickAdvanced:
			s.pushState(h, newSessionView(h.session))
		case quiz.TickCompleted:
			// 结果已由 completed 推送
		}
	}
	monitoring.TickDuration.Observe(time.Since(start).Seconds())
}

// Run 按配置的间隔驱动 TickAll，直到 ctx 结束
func (s *QuizSessionService) Run(ctx context.Context) {
	interval := s.Settings().TickInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.TickAll()
			if next := s.Settings().TickInterval; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Wait 等待后台持久化完成，ctx 超时返回 ctx.Err()
func (s *QuizSessionService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveCount 进行中的会话数量
func (s *QuizSessionService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.sessions {
		if isInProgress(h) {
			n++
		}
	}
	return n
}

func (s *QuizSessionService) mutate(userID uint, op func(*quiz.Session) error) (SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions[userID]
	if !ok {
		return SessionView{}, util.ErrNoActiveSession
	}
	if err := op(h.session); err != nil {
		return SessionView{}, err
	}
	view := newSessionView(h.session)
	if isInProgress(h) {
		s.pushState(h, view)
	}
	return view, nil
}

// completed 由会话在进入 Completed 时回调，调用方已持有 s.mu
func (s *QuizSessionService) completed(h *hostedSession, result quiz.AttemptResult) {
	h.persist = util.PersistPending
	s.pending[pendingKey(h.userID, h.session.Definition().ID)]++
	monitoring.ActiveSessions.Dec()
	monitoring.ObserveAttempt(string(result.Reason), result.Passed, result.Percent())

	logger.Session(result.SessionID, result.QuizID, result.UserID).Info("Quiz session completed",
		zap.String("reason", string(result.Reason)),
		zap.Int("score", result.ScoreAchieved),
		zap.Int("max", result.ScoreMax),
		zap.Bool("passed", result.Passed),
		zap.Int("timeSpentSeconds", result.TimeSpentSeconds))

	def := h.session.Definition()
	settings := s.settings
	s.wg.Add(1)
	go s.persist(h, def, result, settings)

	s.push(result.UserID, WSMessage{Type: MessageResult, Data: ResultView{
		Attempt:       result,
		Percent:       result.Percent(),
		PersistStatus: util.PersistPending,
	}})
}

// persist 保存作答、归档回顾、发布事件；任何一步失败只记录日志
func (s *QuizSessionService) persist(h *hostedSession, def *quiz.Definition, result quiz.AttemptResult, settings config.QuizConfig) {
	defer s.wg.Done()

	timeout := settings.PersistTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "quiz.persist_attempt",
		attribute.String("attempt.id", result.SessionID),
		attribute.String("quiz.id", result.QuizID))
	defer span.End()

	log := logger.Session(result.SessionID, result.QuizID, result.UserID)

	if err := s.attempts.Create(ctx, newAttemptModel(h.userID, def, result)); err != nil {
		tracing.RecordError(span, err)
		log.Error("Persist quiz attempt failed", zap.Error(err))
		monitoring.PersistResults.WithLabelValues(util.PersistFailed).Inc()
		s.setPersist(h, util.PersistFailed, err.Error(), "")
		return
	}
	monitoring.PersistResults.WithLabelValues(util.PersistSaved).Inc()

	reviewURL := ""
	if settings.ArchiveResults && s.archiver != nil {
		url, err := s.archiver.ArchiveReview(ctx, quiz.NewReview(def, result))
		if err != nil {
			log.Warn("Archive quiz review failed", zap.Error(err))
		} else if err := s.attempts.SetReviewURL(ctx, result.SessionID, url); err != nil {
			log.Warn("Save review url failed", zap.Error(err))
			if err := s.archiver.DeleteReview(ctx, result.QuizID, result.SessionID); err != nil {
				log.Warn("Delete orphaned review failed", zap.Error(err))
			}
		} else {
			reviewURL = url
		}
	}
	s.setPersist(h, util.PersistSaved, "", reviewURL)

	if s.events != nil {
		if err := s.events.PublishAttemptCompleted(ctx, NewAttemptCompletedEvent(result, reviewURL)); err != nil {
			log.Warn("Publish attempt event failed", zap.Error(err))
		}
	}
}

func (s *QuizSessionService) setPersist(h *hostedSession, status, errMsg, reviewURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.persist = status
	h.persistError = errMsg
	h.reviewURL = reviewURL

	key := pendingKey(h.userID, h.session.Definition().ID)
	if s.pending[key]--; s.pending[key] <= 0 {
		delete(s.pending, key)
	}

	// 用户已经开始了新的会话，旧结果不再推送
	if s.sessions[h.userID] == h {
		s.push(h.session.UserID(), WSMessage{Type: MessageResult, Data: resultView(h)})
	}
}

func pendingKey(userID uint, quizID string) string {
	return strconv.FormatUint(uint64(userID), 10) + "/" + quizID
}

func (s *QuizSessionService) pushState(h *hostedSession, view SessionView) {
	s.push(h.session.UserID(), WSMessage{Type: MessageState, Data: view})
}

func (s *QuizSessionService) push(userID string, msg WSMessage) {
	if s.live != nil {
		s.live.Push(userID, msg)
	}
}

// LiveSnapshot 新连接建立时推送的第一条消息
func (s *QuizSessionService) LiveSnapshot(userID uint) *WSMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	if isInProgress(h) {
		return &WSMessage{Type: MessageState, Data: newSessionView(h.session)}
	}
	return &WSMessage{Type: MessageResult, Data: resultView(h)}
}

func isInProgress(h *hostedSession) bool {
	_, ok := h.session.State().(quiz.InProgress)
	return ok
}

func resultView(h *hostedSession) ResultView {
	res, _ := h.session.Result()
	return ResultView{
		Attempt:       res,
		Percent:       res.Percent(),
		PersistStatus: h.persist,
		PersistError:  h.persistError,
		ReviewURL:     h.reviewURL,
	}
}

func newAttemptModel(userID uint, def *quiz.Definition, r quiz.AttemptResult) *model.QuizAttempt {
	attempt := &model.QuizAttempt{
		QuizID:           r.QuizID,
		UserID:           userID,
		ScoreAchieved:    r.ScoreAchieved,
		ScoreMax:         r.ScoreMax,
		Percent:          r.Percent(),
		Passed:           r.Passed,
		Reason:           string(r.Reason),
		TimeSpentSeconds: r.TimeSpentSeconds,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		Answers:          make([]model.QuizAttemptAnswer, 0, len(def.Questions)),
	}
	attempt.ID = r.SessionID

	awarded := make(map[string]quiz.QuestionScore, len(r.QuestionScores))
	for _, qs := range r.QuestionScores {
		awarded[qs.QuestionID] = qs
	}
	for _, q := range def.Questions {
		row := model.QuizAttemptAnswer{
			AttemptID:  r.SessionID,
			QuestionID: q.QuestionID(),
			Answer:     "null",
			Awarded:    awarded[q.QuestionID()].Awarded,
			MaxPoints:  q.Worth(),
		}
		if a, ok := r.Answers[q.QuestionID()]; ok {
			row.Answered = true
			if data, err := json.Marshal(a); err == nil {
				row.Answer = string(data)
			}
		}
		attempt.Answers = append(attempt.Answers, row)
	}
	return attempt
}
