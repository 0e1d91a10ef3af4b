package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"IELTS-Exam-Runtime/internal/client"
	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/service"
	"IELTS-Exam-Runtime/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OpenSessionRequest struct {
	AttemptID string `json:"attempt_id" binding:"required"`
	Section   string `json:"section" binding:"required,oneof=listening reading writing speaking"`
}

type SystemCheckRequest struct {
	FullscreenSupported bool `json:"fullscreen_supported"`
}

type MicrophoneRequest struct {
	Granted bool   `json:"granted"`
	Error   string `json:"error"`
}

type AnswerRequest struct {
	QuestionID int    `json:"question_id" binding:"required,gt=0"`
	Answer     string `json:"answer"`
	Immediate  bool   `json:"immediate"`
}

type ToggleRequest struct {
	QuestionID int    `json:"question_id" binding:"required,gt=0"`
	Option     string `json:"option" binding:"required,len=1"`
}

type NextSectionRequest struct {
	SkipConfirmation bool `json:"skip_confirmation"`
}

type DialogRequest struct {
	Confirm bool `json:"confirm"`
}

type PartRequest struct {
	Part int `json:"part" binding:"required,gt=0"`
}

type PlaybackRequest struct {
	Part    int     `json:"part" binding:"required,gt=0"`
	Seconds float64 `json:"seconds" binding:"gte=0"`
}

type WritingTextRequest struct {
	Text string `json:"text"`
}

type SelectTaskRequest struct {
	TaskID int `json:"task_id" binding:"required,gt=0"`
}

type SessionView struct {
	service.Snapshot
	SystemCheck service.SystemCheckState `json:"system_check"`
	Dialog      *service.ConfirmRequest  `json:"dialog,omitempty"`
	Redirect    string                   `json:"redirect,omitempty"`
}

type ExamHandler struct {
	runtime *service.Runtime
	logger  *zap.Logger
}

func NewExamHandler(runtime *service.Runtime, logger *zap.Logger) *ExamHandler {
	return &ExamHandler{runtime: runtime, logger: utils.OrNop(logger).Named("api")}
}

func statusFor(err error) int {
	var validation *client.ValidationError
	switch {
	case errors.Is(err, service.ErrNoSession),
		errors.Is(err, service.ErrUnknownPart),
		errors.Is(err, service.ErrUnknownQuestion):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBusy),
		errors.Is(err, service.ErrDialogPending),
		errors.Is(err, service.ErrNoDialog),
		errors.Is(err, service.ErrWrongPhase),
		errors.Is(err, service.ErrNotReady),
		errors.Is(err, service.ErrNoSectionData),
		errors.Is(err, service.ErrNotListening),
		errors.Is(err, service.ErrNotSpeaking),
		errors.Is(err, service.ErrNotRecording),
		errors.Is(err, service.ErrStaleTransition):
		return http.StatusConflict
	case errors.Is(err, client.ErrSessionExpired),
		errors.Is(err, client.ErrUnauthorized),
		errors.Is(err, client.ErrNoCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, client.ErrOffline), errors.Is(err, client.ErrServerUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *ExamHandler) handleError(c *gin.Context, err error, contextMsg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(contextMsg, zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error":   contextMsg,
		"details": err.Error(),
	})
}

func (h *ExamHandler) active(c *gin.Context) (*service.ActiveSession, bool) {
	a, err := h.runtime.Active()
	if err != nil {
		h.handleError(c, err, "no session")
		return nil, false
	}
	return a, true
}

func (h *ExamHandler) view(a *service.ActiveSession) SessionView {
	v := SessionView{
		Snapshot:    a.Snapshot(),
		SystemCheck: a.SystemCheck.State(),
		Redirect:    a.Navigator.Redirect(),
	}
	if req, ok := h.runtime.Dialogs().Pending(); ok {
		v.Dialog = &req
	}
	return v
}

// async runs an intent that may wait on a confirmation dialog. The outcome
// shows up in the session snapshot.
func (h *ExamHandler) async(c *gin.Context, a *service.ActiveSession, name string, fn func(ctx context.Context) error) {
	go func() {
		if err := fn(context.Background()); err != nil {
			h.logger.Warn("session intent failed", zap.String("intent", name), zap.String("attempt_id", a.AttemptID()), zap.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "intent": name})
}

func (h *ExamHandler) OpenSession(c *gin.Context) {
	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	a := h.runtime.Open(req.AttemptID, req.Section)
	c.JSON(http.StatusCreated, h.view(a))
}

func (h *ExamHandler) GetSession(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.view(a))
}

func (h *ExamHandler) CloseSession(c *gin.Context) {
	if !h.runtime.CloseSession() {
		h.handleError(c, service.ErrNoSession, "no session")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ExamHandler) RunSystemCheck(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	var req SystemCheckRequest
	_ = c.ShouldBindJSON(&req)
	a.Display.SetSupported(req.FullscreenSupported)
	c.JSON(http.StatusOK, a.RunSystemCheck(c.Request.Context()))
}

func (h *ExamHandler) ReportMicrophone(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	var req MicrophoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, a.SystemCheck.ReportMicrophone(req.Granted, req.Error))
}

func (h *ExamHandler) Proceed(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	if err := a.ProceedToInstructions(); err != nil {
		h.handleError(c, err, "cannot leave system check")
		return
	}
	c.JSON(http.StatusOK, h.view(a))
}

func (h *ExamHandler) LoadSection(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	if err := a.LoadSectionData(c.Request.Context()); err != nil {
		h.handleError(c, err, "failed to load section")
		return
	}
	if err := a.MountSection(); err != nil {
		h.handleError(c, err, "failed to prepare section")
		return
	}
	c.JSON(http.StatusOK, h.view(a))
}

func (h *ExamHandler) StartSection(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	if err := a.StartSection(); err != nil {
		h.handleError(c, err, "cannot start section")
		return
	}
	c.JSON(http.StatusOK, h.view(a))
}

func (h *ExamHandler) SubmitAnswer(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	a.SubmitAnswer(req.QuestionID, req.Answer, req.Immediate)
	c.JSON(http.StatusAccepted, gin.H{"question_id": req.QuestionID, "answer": a.Answer(req.QuestionID)})
}

func (h *ExamHandler) ToggleOption(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	answer, err := a.ToggleOption(req.QuestionID, req.Option)
	if err != nil {
		h.handleError(c, err, "cannot toggle option")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"question_id": req.QuestionID, "answer": answer})
}

func (h *ExamHandler) NextSection(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	var req NextSectionRequest
	_ = c.ShouldBindJSON(&req)
	h.async(c, a, "next_section", func(ctx context.Context) error {
		if err := a.HandleNextSection(ctx, req.SkipConfirmation); err != nil {
			return err
		}
		if _, loaded := a.SectionData(); loaded {
			return a.MountSection()
		}
		return nil
	})
}

func (h *ExamHandler) SubmitTest(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	h.async(c, a, "submit_test", a.HandleSubmitTest)
}

func (h *ExamHandler) Exit(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	h.async(c, a, "exit", func(ctx context.Context) error {
		_, err := a.HandleExit(ctx)
		return err
	})
}

func (h *ExamHandler) GetDialog(c *gin.Context) {
	req, ok := h.runtime.Dialogs().Pending()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *ExamHandler) ResolveDialog(c *gin.Context) {
	var req DialogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := h.runtime.Dialogs().Resolve(req.Confirm); err != nil {
		h.handleError(c, err, "no dialog to resolve")
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmed": req.Confirm})
}

func (h *ExamHandler) PreloadState(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a.Preloader.State())
}

func (h *ExamHandler) GetBlob(c *gin.Context) {
	blob, ok := h.runtime.Blobs().Get(service.BlobURL(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
		return
	}
	c.Data(http.StatusOK, blob.ContentType, blob.Data)
}

func (h *ExamHandler) ListeningView(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": a.Listening.View(), "play": a.Player.Last()})
}

func (h *ExamHandler) SelectPart(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	var req PartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	view, err := a.Listening.SelectPart(req.Part)
	if err != nil {
		h.handleError(c, err, "cannot select part")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ExamHandler) UpdatePlayback(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	var req PlaybackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	a.Listening.UpdatePlayback(req.Part, req.Seconds)
	c.Status(http.StatusNoContent)
}

func (h *ExamHandler) AudioEnded(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	var req PartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	a.Listening.OnAudioEnded(req.Part)
	c.Status(http.StatusAccepted)
}

func taskID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("task"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return 0, false
	}
	return id, true
}

func (h *ExamHandler) WritingStatus(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	st, err := a.Writing.Status(id)
	if err != nil {
		h.handleError(c, err, "unknown task")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": st, "text": a.Writing.Text(id)})
}

func (h *ExamHandler) SetWritingText(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	var req WritingTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	st, err := a.Writing.SetText(id, req.Text)
	if err != nil {
		h.handleError(c, err, "unknown task")
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *ExamHandler) SelectTask(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	var req SelectTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := a.Writing.SelectTask(req.TaskID); err != nil {
		h.handleError(c, err, "unknown task")
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": a.Writing.Active()})
}

func (h *ExamHandler) RunSpeaking(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	if err := a.RunSpeaking(h.logger); err != nil {
		h.handleError(c, err, "cannot start speaking section")
		return
	}
	c.JSON(http.StatusAccepted, a.Speaking.Status())
}

func (h *ExamHandler) SpeakingStatus(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a.Speaking.Status())
}

func (h *ExamHandler) PromptEnded(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	a.Prompt.Ended()
	c.Status(http.StatusNoContent)
}

// SpeakingAnswer takes the recorded answer as multipart audio_file and
// stops the recording.
func (h *ExamHandler) SpeakingAnswer(c *gin.Context) {
	a, ok := h.active(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("audio_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio_file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable audio_file"})
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable audio_file"})
		return
	}

	a.Recorder.Deliver(audio)
	if err := a.Speaking.StopRecording(); err != nil && !errors.Is(err, service.ErrNotRecording) {
		h.handleError(c, err, "cannot stop recording")
		return
	}
	c.JSON(http.StatusAccepted, a.Speaking.Status())
}

func sectionFromQuery(c *gin.Context) string {
	return model.SectionStorageKey(c.Query("section"), c.Query("sub"))
}
