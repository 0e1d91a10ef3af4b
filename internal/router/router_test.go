package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"IELTS-Exam-Runtime/internal/api"
	"IELTS-Exam-Runtime/internal/auth"
	"IELTS-Exam-Runtime/internal/event"
	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/repository"
	"IELTS-Exam-Runtime/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	mu      sync.Mutex
	section string
	answers []model.AnswerSubmission
}

func strPtr(s string) *string { return &s }

func (g *stubGateway) GetSectionData(_ context.Context, _ string, section string) (*model.SectionData, error) {
	switch section {
	case model.SectionReading:
		return &model.SectionData{
			NextSectionName: strPtr(model.SectionWriting),
			Passages: []model.ReadingPassage{{ID: 1, PassageNumber: 1, Text: "Tides", TestHeads: []model.TestHead{
				{ID: 1, QuestionType: model.TypeTFNG, Questions: []model.Question{{ID: 5}}},
			}}},
		}, nil
	default:
		return &model.SectionData{Tasks: []model.WritingTask{{ID: 11, TaskNumber: 1, TaskType: "task1"}}}, nil
	}
}

func (g *stubGateway) SubmitAnswer(_ context.Context, _ string, sub model.AnswerSubmission) (*model.SubmitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answers = append(g.answers, sub)
	return &model.SubmitResult{Success: true}, nil
}

func (g *stubGateway) SubmitWriting(context.Context, string, model.WritingSubmission) (*model.WritingResult, error) {
	return &model.WritingResult{Success: true}, nil
}

func (g *stubGateway) SubmitSpeaking(context.Context, string, model.SpeakingSubmission) (*model.SubmitResult, error) {
	return &model.SubmitResult{Success: true}, nil
}

func (g *stubGateway) NextSection(context.Context, string) (*model.NextSectionResult, error) {
	return &model.NextSectionResult{Success: true, CurrentSection: model.SectionWriting}, nil
}

func (g *stubGateway) SubmitTest(context.Context, string) (*model.SubmitResult, error) {
	return &model.SubmitResult{Success: true}, nil
}

func (g *stubGateway) Ping(context.Context) (*model.PingResult, error) {
	return &model.PingResult{Success: true}, nil
}

type noAudio struct{}

func (noAudio) Fetch(context.Context, string) ([]byte, string, error) {
	return []byte("ID3"), "audio/mpeg", nil
}

func (g *stubGateway) saved() []model.AnswerSubmission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.AnswerSubmission(nil), g.answers...)
}

func setup(t *testing.T) (*gin.Engine, *service.Runtime, *stubGateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repository.NewStore(repository.NewMemoryBackend(), nil)
	bus := event.NewBus(nil)
	t.Cleanup(func() { _ = bus.Close() })

	gw := &stubGateway{}
	rt := service.NewRuntime(gw, noAudio{}, service.NewBlobRegistry(), service.NewDialogBroker(), bus,
		repository.NewHighlightRepository(store), repository.NewListeningProgressRepository(store),
		service.RuntimeConfig{AnswerDebounce: 10 * time.Millisecond, WritingDebounce: 10 * time.Millisecond}, nil)
	t.Cleanup(func() { rt.CloseSession() })

	exam := api.NewExamHandler(rt, nil)
	r := SetupRouter(Handlers{
		Exam:        exam,
		Auth:        api.NewAuthHandler(auth.NewAuthService(nil, auth.NewTokenStore(store), nil, nil), exam),
		Preferences: api.NewPreferencesHandler(repository.NewThemeRepository(store), repository.NewFontSizeRepository(store)),
		Notices:     api.NewNoticeHandler(bus, nil),
	}, []string{"http://localhost:5173"})
	return r, rt, gw
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r, _, _ := setup(t)

	w := do(t, r, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP"}`, w.Body.String())

	w = do(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SessionRequiresOpen(t *testing.T) {
	r, _, _ := setup(t)

	w := do(t, r, http.MethodGet, "/api/v1/session", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/session", map[string]string{"attempt_id": "7", "section": "maths"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_SessionFlow(t *testing.T) {
	r, rt, gw := setup(t)

	w := do(t, r, http.MethodPost, "/api/v1/session", map[string]string{"attempt_id": "7", "section": "reading"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "permissions", decode(t, w)["phase"])

	w = do(t, r, http.MethodPost, "/api/v1/session/proceed", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "system check has not passed")

	w = do(t, r, http.MethodPost, "/api/v1/session/system-check", map[string]bool{"fullscreen_supported": true})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodPost, "/api/v1/session/microphone", map[string]any{"granted": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ready"])

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/session/proceed", nil).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/session/load", nil).Code)
	w = do(t, r, http.MethodPost, "/api/v1/session/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "in_section", decode(t, w)["phase"])

	w = do(t, r, http.MethodPost, "/api/v1/session/answers", map[string]any{"question_id": 5, "answer": "TRUE", "immediate": true})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/session/next", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool {
		return do(t, r, http.MethodGet, "/api/v1/session/dialog", nil).Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)

	w = do(t, r, http.MethodPost, "/api/v1/session/dialog", map[string]bool{"confirm": true})
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		return do(t, r, http.MethodGet, "/api/v1/session/writing/11", nil).Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)
	a, err := rt.Active()
	require.NoError(t, err)
	assert.Equal(t, model.SectionWriting, a.Snapshot().Section)
	assert.Equal(t, []model.AnswerSubmission{{QuestionID: 5, Answer: "TRUE"}}, gw.saved())

	w = do(t, r, http.MethodPut, "/api/v1/session/writing/11", map[string]string{"text": "The chart shows three trends"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(5), decode(t, w)["words"])

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/api/v1/session", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/v1/session", nil).Code)
}

func TestRouter_Preferences(t *testing.T) {
	r, _, _ := setup(t)

	w := do(t, r, http.MethodGet, "/api/v1/preferences", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "light", decode(t, w)["theme"])

	w = do(t, r, http.MethodPost, "/api/v1/preferences/theme/toggle", nil)
	assert.Equal(t, "dark", decode(t, w)["theme"])

	w = do(t, r, http.MethodPut, "/api/v1/preferences/theme", map[string]string{"theme": "sepia"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPut, "/api/v1/preferences/font-size", map[string]int{"index": 42})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(len(repository.FontSizes)-1), decode(t, w)["font_size_index"])
}

func TestRouter_HighlightsRoundTrip(t *testing.T) {
	r, _, _ := setup(t)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/v1/session", map[string]string{"attempt_id": "7", "section": "reading"}).Code)

	html := `<p>The estuary floods twice a day.</p>`
	w := do(t, r, http.MethodPost, "/api/v1/session/highlights", map[string]any{
		"section_key": "reading_1", "html": html, "text": "floods", "color_index": 2, "formats": []string{"bold"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, decode(t, w)["html"], `data-color="2"`)

	w = do(t, r, http.MethodPost, "/api/v1/session/highlights/restore", map[string]string{"section_key": "reading_1", "html": html})
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, float64(1), out["restored"])
	assert.Equal(t, 1, strings.Count(out["html"].(string), "<mark"))

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/api/v1/session/highlights?section=reading&sub=1", nil).Code)
	w = do(t, r, http.MethodGet, "/api/v1/session/highlights?section=reading&sub=1", nil)
	assert.Empty(t, decode(t, w)["highlights"])
}
