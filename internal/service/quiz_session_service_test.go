package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"coder_edu_quiz/internal/config"
	"coder_edu_quiz/internal/model"
	"coder_edu_quiz/internal/quiz"
	"coder_edu_quiz/internal/util"
	"coder_edu_quiz/pkg/monitoring"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDefs struct {
	defs map[string]*quiz.Definition
	err  error
}

func (f *fakeDefs) Load(ctx context.Context, quizID string) (*quiz.Definition, error) {
	if f.err != nil {
		return nil, f.err
	}
	def, ok := f.defs[quizID]
	if !ok {
		return nil, util.ErrQuizNotFound
	}
	return def, nil
}

type fakeAttempts struct {
	mu        sync.Mutex
	created   []*model.QuizAttempt
	reviewURL map[string]string
	createErr error
	urlErr    error
	count     int64
	// 非空时 Create 阻塞到通道关闭
	release chan struct{}
}

func (f *fakeAttempts) Create(ctx context.Context, a *model.QuizAttempt) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, a)
	return nil
}

func (f *fakeAttempts) SetReviewURL(ctx context.Context, id, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.urlErr != nil {
		return f.urlErr
	}
	if f.reviewURL == nil {
		f.reviewURL = map[string]string{}
	}
	f.reviewURL[id] = url
	return nil
}

func (f *fakeAttempts) CountByUserAndQuiz(ctx context.Context, userID uint, quizID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.count
	for _, a := range f.created {
		if a.UserID == userID && a.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func (f *fakeAttempts) ListByUserAndQuiz(ctx context.Context, userID uint, quizID string, page, limit int) ([]model.QuizAttempt, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.QuizAttempt
	for _, a := range f.created {
		if a.UserID == userID && a.QuizID == quizID {
			out = append(out, *a)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAttempts) ListByQuiz(ctx context.Context, quizID string, page, limit int) ([]model.QuizAttempt, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.QuizAttempt
	for _, a := range f.created {
		if a.QuizID == quizID {
			out = append(out, *a)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAttempts) all() []*model.QuizAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.QuizAttempt(nil), f.created...)
}

type fakeArchiver struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeArchiver) ArchiveReview(ctx context.Context, r *quiz.Review) (string, error) {
	return "/uploads/" + ReviewKey(r.QuizID, r.SessionID), nil
}

func (f *fakeArchiver) DeleteReview(ctx context.Context, quizID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ReviewKey(quizID, sessionID))
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []AttemptCompletedEvent
}

func (f *fakePublisher) PublishAttemptCompleted(ctx context.Context, e AttemptCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

type fakePusher struct {
	mu    sync.Mutex
	types []string
}

func (f *fakePusher) Push(userID string, msg WSMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, msg.Type)
}

func (f *fakePusher) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.types {
		if t == kind {
			n++
		}
	}
	return n
}

func intp(v int) *int { return &v }

func demoDefinition() *quiz.Definition {
	return &quiz.Definition{
		ID:                  "go-basics",
		Title:               "Go basics",
		TimeLimitSeconds:    120,
		PassingScorePercent: 70,
		Questions: []quiz.Question{
			quiz.MultipleChoice{Common: quiz.Common{ID: "q1", Prompt: "start a goroutine", Points: 10}, Options: []string{"go", "defer"}, CorrectIndex: 0},
			quiz.TrueFalse{Common: quiz.Common{ID: "q2", Prompt: "closed send panics", Points: 5, TimeLimitSeconds: intp(10)}, CorrectValue: true},
			quiz.FreeText{Common: quiz.Common{ID: "q3", Prompt: "unbuffered channels", Points: 15}, TextRubric: quiz.TextRubric{Keywords: []string{"send", "receive"}}},
		},
	}
}

func testSettings() config.QuizConfig {
	return config.QuizConfig{
		DefaultQuestionSeconds: 60,
		TickInterval:           time.Second,
		PartialCreditRatio:     0.5,
		PersistTimeout:         time.Second,
		ArchiveResults:         true,
	}
}

type harness struct {
	svc       *QuizSessionService
	defs      *fakeDefs
	attempts  *fakeAttempts
	publisher *fakePublisher
	pusher    *fakePusher
	archiver  *fakeArchiver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		defs:      &fakeDefs{defs: map[string]*quiz.Definition{"go-basics": demoDefinition()}},
		attempts:  &fakeAttempts{},
		publisher: &fakePublisher{},
		pusher:    &fakePusher{},
		archiver:  &fakeArchiver{},
	}
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.svc = NewQuizSessionService(h.defs, h.attempts, testSettings(),
		WithArchiver(h.archiver),
		WithEventPublisher(h.publisher),
		WithLivePusher(h.pusher),
		WithServiceClock(func() time.Time { return fixed }),
	)
	seq := 0
	h.svc.newID = func() string {
		seq++
		return fmt.Sprintf("session-%d", seq)
	}
	return h
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Wait(ctx))
}

func raw(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func TestStartSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view, err := h.svc.Start(ctx, 1, "go-basics", false)
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusInProgress, view.Status)
	assert.Equal(t, "session-1", view.SessionID)
	assert.Equal(t, 120, view.ExamTimeRemaining)
	assert.Equal(t, 60, view.QuestionTimeRemaining)
	require.NotNil(t, view.Question)
	assert.Equal(t, []string{"go", "defer"}, view.Question.Options)
	assert.Equal(t, 1, h.svc.ActiveCount())

	_, err = h.svc.Start(ctx, 1, "go-basics", false)
	assert.ErrorIs(t, err, quiz.ErrAlreadyInProgress)

	view, err = h.svc.Start(ctx, 1, "go-basics", true)
	require.NoError(t, err)
	assert.Equal(t, "session-2", view.SessionID)
	assert.Equal(t, 1, h.svc.ActiveCount())

	_, err = h.svc.Start(ctx, 2, "missing", false)
	assert.ErrorIs(t, err, util.ErrQuizNotFound)

	h.wait(t)
	assert.Empty(t, h.attempts.all(), "restart discards without persisting")
}

func TestStartDefinitionUnavailable(t *testing.T) {
	h := newHarness(t)
	h.defs.err = fmt.Errorf("%w: connection refused", util.ErrDefinitionLoadFailed)

	_, err := h.svc.Start(context.Background(), 1, "go-basics", false)
	assert.ErrorIs(t, err, util.ErrDefinitionLoadFailed)
	_, err = h.svc.Current(1)
	assert.ErrorIs(t, err, util.ErrNoActiveSession)
}

func TestAttemptLimit(t *testing.T) {
	h := newHarness(t)
	h.defs.defs["go-basics"].MaxAttempts = 2
	h.attempts.count = 2

	_, err := h.svc.Start(context.Background(), 1, "go-basics", false)
	assert.ErrorIs(t, err, util.ErrAttemptLimitReached)

	h.attempts.count = 1
	_, err = h.svc.Start(context.Background(), 1, "go-basics", false)
	assert.NoError(t, err)
}

func TestAttemptLimitCountsUnsavedAttempt(t *testing.T) {
	h := newHarness(t)
	h.defs.defs["go-basics"].MaxAttempts = 1
	release := make(chan struct{})
	h.attempts.release = release

	_, err := h.svc.Start(context.Background(), 1, "go-basics", false)
	require.NoError(t, err)
	_, err = h.svc.Complete(1)
	require.NoError(t, err)

	// 第一次作答还在保存
	_, err = h.svc.Start(context.Background(), 1, "go-basics", false)
	assert.ErrorIs(t, err, util.ErrAttemptLimitReached)
	require.NoError(t, h.svc.Abandon(1))
	_, err = h.svc.Start(context.Background(), 1, "go-basics", false)
	assert.ErrorIs(t, err, util.ErrAttemptLimitReached)

	close(release)
	h.wait(t)
	_, err = h.svc.Start(context.Background(), 1, "go-basics", false)
	assert.ErrorIs(t, err, util.ErrAttemptLimitReached)
	assert.Len(t, h.attempts.all(), 1)

	// 其他用户不受影响
	_, err = h.svc.Start(context.Background(), 2, "go-basics", false)
	assert.NoError(t, err)
}

func TestAttemptLimitAfterFailedSave(t *testing.T) {
	h := newHarness(t)
	h.defs.defs["go-basics"].MaxAttempts = 1
	h.attempts.createErr = errors.New("db down")

	_, err := h.svc.Start(context.Background(), 1, "go-basics", false)
	require.NoError(t, err)
	_, err = h.svc.Complete(1)
	require.NoError(t, err)
	h.wait(t)

	// 保存失败的作答不计入次数
	_, err = h.svc.Start(context.Background(), 1, "go-basics", false)
	assert.NoError(t, err)
}

func TestRestartDuringSaveSkipsOldResultPush(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.attempts.release = release

	_, err := h.svc.Start(context.Background(), 1, "go-basics", false)
	require.NoError(t, err)
	_, err = h.svc.Complete(1)
	require.NoError(t, err)
	assert.Equal(t, 1, h.pusher.count(MessageResult))

	view, err := h.svc.Start(context.Background(), 1, "go-basics", false)
	require.NoError(t, err)
	assert.Equal(t, "session-2", view.SessionID)

	close(release)
	h.wait(t)
	assert.Equal(t, 1, h.pusher.count(MessageResult))
	assert.Equal(t, MessageState, h.svc.LiveSnapshot(1).Type)
	assert.Len(t, h.attempts.all(), 1)
}

func TestFailedRestartKeepsActiveSession(t *testing.T) {
	h := newHarness(t)
	h.defs.defs["broken"] = &quiz.Definition{ID: "broken", TimeLimitSeconds: 60}

	_, err := h.svc.Start(context.Background(), 1, "go-basics", false)
	require.NoError(t, err)
	before := testutil.ToFloat64(monitoring.ActiveSessions)

	_, err = h.svc.Start(context.Background(), 1, "broken", true)
	assert.ErrorIs(t, err, quiz.ErrInvalidDefinition)
	assert.Equal(t, before, testutil.ToFloat64(monitoring.ActiveSessions))

	view, err := h.svc.Current(1)
	require.NoError(t, err)
	assert.Equal(t, "session-1", view.SessionID)
	assert.Equal(t, 1, h.svc.ActiveCount())
}

func TestFullAttemptIsPersisted(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Start(context.Background(), 7, "go-basics", false)
	require.NoError(t, err)

	_, err = h.svc.SelectAnswer(7, "q1", raw(0))
	require.NoError(t, err)
	_, err = h.svc.SelectAnswer(7, "q3", raw("send blocks until receive"))
	require.NoError(t, err)

	_, err = h.svc.SelectAnswer(7, "q2", raw("yes"))
	assert.ErrorIs(t, err, quiz.ErrAnswerMismatch)
	_, err = h.svc.SelectAnswer(7, "nope", raw(true))
	assert.ErrorIs(t, err, quiz.ErrInvalidQuestionID)

	_, err = h.svc.Result(7)
	assert.ErrorIs(t, err, util.ErrResultNotReady)

	view, err := h.svc.Next(7)
	require.NoError(t, err)
	assert.Equal(t, 1, view.CurrentIndex)
	assert.Equal(t, 10, view.QuestionTimeRemaining)

	res, err := h.svc.Complete(7)
	require.NoError(t, err)
	assert.Equal(t, 25, res.Attempt.ScoreAchieved)
	assert.Equal(t, 30, res.Attempt.ScoreMax)
	assert.True(t, res.Attempt.Passed, "25/30 clears 70%")
	assert.Equal(t, quiz.ReasonSubmitted, res.Attempt.Reason)
	assert.Equal(t, util.PersistPending, res.PersistStatus)

	h.wait(t)

	created := h.attempts.all()
	require.Len(t, created, 1)
	a := created[0]
	assert.Equal(t, "session-1", a.ID)
	assert.Equal(t, uint(7), a.UserID)
	require.Len(t, a.Answers, 3)
	assert.Equal(t, "0", a.Answers[0].Answer)
	assert.False(t, a.Answers[1].Answered)
	assert.Equal(t, "null", a.Answers[1].Answer)
	assert.Equal(t, 15, a.Answers[2].Awarded)

	res, err = h.svc.Result(7)
	require.NoError(t, err)
	assert.Equal(t, util.PersistSaved, res.PersistStatus)
	assert.Equal(t, "/uploads/reviews/go-basics/session-1.json", res.ReviewURL)

	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, "session-1", h.publisher.events[0].AttemptID)

	review, err := h.svc.Review(7)
	require.NoError(t, err)
	assert.Len(t, review.Items, 3)

	_, err = h.svc.Next(7)
	assert.ErrorIs(t, err, quiz.ErrSessionClosed)
	_, err = h.svc.SelectAnswer(7, "q1", raw(1))
	assert.ErrorIs(t, err, quiz.ErrSessionClosed)

	history, total, err := h.svc.History(context.Background(), 7, "go-basics", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, history, 1)
	assert.Equal(t, "session-1", history[0].ID)
	assert.Equal(t, 25, history[0].ScoreAchieved)
	assert.Equal(t, string(quiz.ReasonSubmitted), history[0].Reason)
}

func TestPersistFailureKeepsResult(t *testing.T) {
	h := newHarness(t)
	h.attempts.createErr = errors.New("db down")

	_, err := h.svc.Start(context.Background(), 3, "go-basics", false)
	require.NoError(t, err)
	_, err = h.svc.Complete(3)
	require.NoError(t, err)
	h.wait(t)

	res, err := h.svc.Result(3)
	require.NoError(t, err)
	assert.Equal(t, util.PersistFailed, res.PersistStatus)
	assert.Equal(t, "db down", res.PersistError)
	assert.Equal(t, 0, res.Attempt.ScoreAchieved)
	assert.Empty(t, h.publisher.events)
}

func TestOrphanedReviewIsDeleted(t *testing.T) {
	h := newHarness(t)
	h.attempts.urlErr = errors.New("db down")

	_, err := h.svc.Start(context.Background(), 1, "go-basics", false)
	require.NoError(t, err)
	_, err = h.svc.Complete(1)
	require.NoError(t, err)
	h.wait(t)

	res, err := h.svc.Result(1)
	require.NoError(t, err)
	assert.Equal(t, util.PersistSaved, res.PersistStatus)
	assert.Empty(t, res.ReviewURL)
	assert.Equal(t, []string{"reviews/go-basics/session-1.json"}, h.archiver.deleted)
	require.Len(t, h.publisher.events, 1)
	assert.Empty(t, h.publisher.events[0].ReviewURL)
}

func TestTickAllDrivesTimers(t *testing.T) {
	h := newHarness(t)
	settings := testSettings()
	settings.DefaultQuestionSeconds = 300
	require.NoError(t, h.svc.ApplyConfig(settings))

	_, err := h.svc.Start(context.Background(), 1, "go-basics", false)
	require.NoError(t, err)
	_, err = h.svc.Next(1)
	require.NoError(t, err)

	// q2 限时 10 秒，到期后自动进入 q3
	for i := 0; i < 10; i++ {
		h.svc.TickAll()
	}
	view, err := h.svc.Current(1)
	require.NoError(t, err)
	assert.Equal(t, 2, view.CurrentIndex)
	assert.Equal(t, 110, view.ExamTimeRemaining)

	for i := 0; i < 110; i++ {
		h.svc.TickAll()
	}
	res, err := h.svc.Result(1)
	require.NoError(t, err)
	assert.Equal(t, quiz.ReasonExamTimeout, res.Attempt.Reason)
	assert.Equal(t, 120, res.Attempt.TimeSpentSeconds)
	assert.Equal(t, 0, h.svc.ActiveCount())

	h.wait(t)
	assert.Len(t, h.attempts.all(), 1)
	assert.Greater(t, h.pusher.count(MessageState), 10)
	assert.GreaterOrEqual(t, h.pusher.count(MessageResult), 2)
}

func TestAbandon(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.svc.Abandon(1), util.ErrNoActiveSession)

	_, err := h.svc.Start(context.Background(), 1, "go-basics", false)
	require.NoError(t, err)
	require.NoError(t, h.svc.Abandon(1))

	_, err = h.svc.Current(1)
	assert.ErrorIs(t, err, util.ErrNoActiveSession)
	h.wait(t)
	assert.Empty(t, h.attempts.all())
	assert.Equal(t, 1, h.pusher.count(MessageClosed))
}

func TestApplyConfigAffectsNewSessions(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Start(context.Background(), 1, "go-basics", false)
	require.NoError(t, err)

	settings := testSettings()
	settings.DefaultQuestionSeconds = 90
	require.NoError(t, h.svc.ApplyConfig(settings))

	bad := settings
	bad.PartialCreditRatio = 2
	assert.Error(t, h.svc.ApplyConfig(bad))

	view, err := h.svc.Current(1)
	require.NoError(t, err)
	assert.Equal(t, 60, view.QuestionTimeRemaining)

	view, err = h.svc.Start(context.Background(), 2, "go-basics", false)
	require.NoError(t, err)
	assert.Equal(t, 90, view.QuestionTimeRemaining)
}

func TestLiveSnapshot(t *testing.T) {
	h := newHarness(t)
	assert.Nil(t, h.svc.LiveSnapshot(1))

	_, err := h.svc.Start(context.Background(), 1, "go-basics", false)
	require.NoError(t, err)
	assert.Equal(t, MessageState, h.svc.LiveSnapshot(1).Type)

	_, err = h.svc.Complete(1)
	require.NoError(t, err)
	h.wait(t)
	assert.Equal(t, MessageResult, h.svc.LiveSnapshot(1).Type)
}
