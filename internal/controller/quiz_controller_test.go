package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"coder_edu_quiz/internal/config"
	"coder_edu_quiz/internal/middleware"
	"coder_edu_quiz/internal/model"
	"coder_edu_quiz/internal/quiz"
	"coder_edu_quiz/internal/service"
	"coder_edu_quiz/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "controller-test-secret"

type staticDefs map[string]*quiz.Definition

func (d staticDefs) Load(ctx context.Context, quizID string) (*quiz.Definition, error) {
	def, ok := d[quizID]
	if !ok {
		return nil, util.ErrQuizNotFound
	}
	return def, nil
}

type memoryAttempts struct {
	mu   sync.Mutex
	rows []model.QuizAttempt
}

func (m *memoryAttempts) Create(ctx context.Context, a *model.QuizAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *a)
	return nil
}

func (m *memoryAttempts) SetReviewURL(ctx context.Context, id, url string) error { return nil }

func (m *memoryAttempts) CountByUserAndQuiz(ctx context.Context, userID uint, quizID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.UserID == userID && r.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func (m *memoryAttempts) ListByUserAndQuiz(ctx context.Context, userID uint, quizID string, page, limit int) ([]model.QuizAttempt, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QuizAttempt
	for _, r := range m.rows {
		if r.UserID == userID && r.QuizID == quizID {
			out = append(out, r)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memoryAttempts) ListByQuiz(ctx context.Context, quizID string, page, limit int) ([]model.QuizAttempt, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QuizAttempt
	for _, r := range m.rows {
		if r.QuizID == quizID {
			out = append(out, r)
		}
	}
	return out, int64(len(out)), nil
}

type recordingCache struct{ invalidated []string }

func (r *recordingCache) Invalidate(ctx context.Context, quizID string) error {
	r.invalidated = append(r.invalidated, quizID)
	return nil
}

func controllerDefinition() *quiz.Definition {
	return &quiz.Definition{
		ID:                  "go-basics",
		Title:               "Go basics",
		TimeLimitSeconds:    300,
		PassingScorePercent: 50,
		MaxAttempts:         1,
		Questions: []quiz.Question{
			quiz.MultipleChoice{Common: quiz.Common{ID: "q1", Prompt: "start a goroutine", Points: 10}, Options: []string{"go", "defer"}, CorrectIndex: 0},
			quiz.TrueFalse{Common: quiz.Common{ID: "q2", Prompt: "nil maps can be read", Points: 10}, CorrectValue: true},
		},
	}
}

type testAPI struct {
	router   *gin.Engine
	sessions *service.QuizSessionService
	cache    *recordingCache
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := service.NewQuizSessionService(staticDefs{"go-basics": controllerDefinition()}, &memoryAttempts{}, config.QuizConfig{
		DefaultQuestionSeconds: 60,
		TickInterval:           time.Second,
		PartialCreditRatio:     0.5,
		PersistTimeout:         time.Second,
	})
	cache := &recordingCache{}
	ctrl := NewQuizController(sessions, cache, service.NewSessionHub())

	r := gin.New()
	api := r.Group("/api", middleware.AuthMiddleware(testSecret))
	api.GET("/quizzes/:id", ctrl.GetQuiz)
	api.POST("/quizzes/:id/session", ctrl.StartSession)
	api.GET("/quizzes/:id/attempts", ctrl.History)
	api.GET("/quiz-session", ctrl.CurrentSession)
	api.DELETE("/quiz-session", ctrl.Abandon)
	api.POST("/quiz-session/answers", ctrl.SelectAnswer)
	api.POST("/quiz-session/next", ctrl.Next)
	api.POST("/quiz-session/previous", ctrl.Previous)
	api.POST("/quiz-session/goto", ctrl.GoTo)
	api.POST("/quiz-session/complete", ctrl.Complete)
	api.GET("/quiz-session/result", ctrl.Result)
	api.GET("/quiz-session/review", ctrl.Review)
	teacher := api.Group("/teacher", middleware.RoleMiddleware(model.Teacher))
	teacher.GET("/quizzes/:id/attempts", ctrl.QuizAttempts)
	teacher.DELETE("/quizzes/:id/cache", ctrl.InvalidateCache)

	return &testAPI{router: r, sessions: sessions, cache: cache}
}

func (a *testAPI) call(t *testing.T, userID uint, role model.UserRole, method, path string, body interface{}) (int, util.Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := util.GenerateJWT(userID, role, testSecret, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp util.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestQuizSessionFlow(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.call(t, 1, model.Student, http.MethodGet, "/api/quizzes/go-basics", nil)
	require.Equal(t, http.StatusOK, code)
	overview := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(20), overview["totalPoints"])
	assert.NotContains(t, overview["questions"].([]interface{})[0], "correctIndex")

	code, _ = api.call(t, 1, model.Student, http.MethodGet, "/api/quiz-session", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = api.call(t, 1, model.Student, http.MethodPost, "/api/quizzes/go-basics/session", nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "in_progress", resp.Data.(map[string]interface{})["status"])

	code, _ = api.call(t, 1, model.Student, http.MethodPost, "/api/quizzes/go-basics/session", StartSessionRequest{})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = api.call(t, 1, model.Student, http.MethodPost, "/api/quiz-session/answers", map[string]interface{}{"questionId": "q1", "value": 0})
	assert.Equal(t, http.StatusOK, code)

	code, _ = api.call(t, 1, model.Student, http.MethodPost, "/api/quiz-session/answers", map[string]interface{}{"questionId": "q1", "value": "go"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.call(t, 1, model.Student, http.MethodPost, "/api/quiz-session/answers", map[string]interface{}{"questionId": "q9", "value": true})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.call(t, 1, model.Student, http.MethodPost, "/api/quiz-session/previous", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = api.call(t, 1, model.Student, http.MethodPost, "/api/quiz-session/goto", GoToRequest{Index: intPtr(1)})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["currentIndex"])

	code, _ = api.call(t, 1, model.Student, http.MethodPost, "/api/quiz-session/goto", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.call(t, 1, model.Student, http.MethodGet, "/api/quiz-session/result", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = api.call(t, 1, model.Student, http.MethodPost, "/api/quiz-session/answers", map[string]interface{}{"questionId": "q2", "value": false})
	require.Equal(t, http.StatusOK, code)

	// 最后一题点下一题即交卷
	code, resp = api.call(t, 1, model.Student, http.MethodPost, "/api/quiz-session/next", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", resp.Data.(map[string]interface{})["status"])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, api.sessions.Wait(ctx))

	code, resp = api.call(t, 1, model.Student, http.MethodGet, "/api/quiz-session/result", nil)
	require.Equal(t, http.StatusOK, code)
	result := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(50), result["percent"])
	assert.Equal(t, util.PersistSaved, result["persistStatus"])
	assert.Equal(t, true, result["attempt"].(map[string]interface{})["passed"])

	code, resp = api.call(t, 1, model.Student, http.MethodGet, "/api/quiz-session/review", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, quiz.BannerPassed, resp.Data.(map[string]interface{})["banner"])

	code, _ = api.call(t, 1, model.Student, http.MethodPost, "/api/quiz-session/complete", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, resp = api.call(t, 1, model.Student, http.MethodGet, "/api/quizzes/go-basics/attempts", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["total"])

	// 最多作答一次
	code, _ = api.call(t, 1, model.Student, http.MethodPost, "/api/quizzes/go-basics/session", StartSessionRequest{Restart: true})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestQuizSessionAbandon(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.call(t, 2, model.Student, http.MethodDelete, "/api/quiz-session", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = api.call(t, 2, model.Student, http.MethodPost, "/api/quizzes/go-basics/session", nil)
	require.Equal(t, http.StatusCreated, code)
	code, _ = api.call(t, 2, model.Student, http.MethodDelete, "/api/quiz-session", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = api.call(t, 2, model.Student, http.MethodGet, "/api/quiz-session", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = api.call(t, 2, model.Student, http.MethodPost, "/api/quizzes/unknown/session", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTeacherRoutes(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.call(t, 3, model.Student, http.MethodDelete, "/api/teacher/quizzes/go-basics/cache", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = api.call(t, 4, model.Teacher, http.MethodDelete, "/api/teacher/quizzes/go-basics/cache", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"go-basics"}, api.cache.invalidated)

	code, resp := api.call(t, 5, model.Admin, http.MethodGet, "/api/teacher/quizzes/go-basics/attempts?page=1&limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	page := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(0), page["total"])
	assert.Equal(t, float64(5), page["limit"])
}

func intPtr(v int) *int { return &v }
