package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"IELTS-Exam-Runtime/internal/event"
	"IELTS-Exam-Runtime/internal/metrics"
	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/utils"

	"go.uber.org/zap"
)

type SpeakingState string

const (
	SpeakingIdle            SpeakingState = "idle"
	SpeakingPlayingQuestion SpeakingState = "playing_question"
	SpeakingCountdown       SpeakingState = "countdown"
	SpeakingRecording       SpeakingState = "recording"
	SpeakingSubmitting      SpeakingState = "submitting"
	SpeakingCompleted       SpeakingState = "completed"
)

const DefaultSpeakingCountdown = 3

var (
	ErrNotRecording = errors.New("no answer is being recorded")
	ErrNotSpeaking  = errors.New("current section is not speaking")
)

// QuestionPlayer plays the examiner prompt and returns when it has finished.
type QuestionPlayer interface {
	PlayQuestion(ctx context.Context, q model.SpeakingQuestion) error
}

type Recorder interface {
	Start(ctx context.Context) error
	Stop() ([]byte, error)
}

type SpeakingSubmitter interface {
	SubmitSpeaking(ctx context.Context, questionKey, fileName string, audio []byte) (*model.SubmitResult, error)
}

type SpeakingConfig struct {
	CountdownSeconds int
	// TimeUnit is the length of one countdown or response-time second.
	TimeUnit time.Duration
}

type SpeakingStatus struct {
	State         SpeakingState           `json:"state"`
	QuestionIndex int                     `json:"question_index"`
	Total         int                     `json:"total"`
	Question      *model.SpeakingQuestion `json:"question,omitempty"`
	Countdown     int                     `json:"countdown"`
	Submitted     []string                `json:"submitted"`
	FailedUploads []string                `json:"failed_uploads"`
}

// SpeakingController walks every question strictly in order:
// prompt, countdown, recording, upload.
type SpeakingController struct {
	attemptID string
	submitter SpeakingSubmitter
	player    QuestionPlayer
	recorder  Recorder
	notifier  event.Notifier
	cfg       SpeakingConfig
	logger    *zap.Logger
	stop      chan struct{}

	mu        sync.Mutex
	state     SpeakingState
	questions []model.SpeakingQuestion
	index     int
	countdown int
	submitted []string
	failed    []string
}

func NewSpeakingController(attemptID string, submitter SpeakingSubmitter, player QuestionPlayer, recorder Recorder, notifier event.Notifier, cfg SpeakingConfig, logger *zap.Logger) *SpeakingController {
	if cfg.CountdownSeconds <= 0 {
		cfg.CountdownSeconds = DefaultSpeakingCountdown
	}
	if cfg.TimeUnit <= 0 {
		cfg.TimeUnit = time.Second
	}
	if notifier == nil {
		notifier = event.NopNotifier{}
	}
	return &SpeakingController{
		attemptID: attemptID,
		submitter: submitter,
		player:    player,
		recorder:  recorder,
		notifier:  notifier,
		cfg:       cfg,
		logger:    utils.OrNop(logger).Named("speaking").With(zap.String("attempt_id", attemptID)),
		stop:      make(chan struct{}, 1),
		state:     SpeakingIdle,
	}
}

// FlattenQuestions orders questions by topic part number, keeping the order within a topic.
func FlattenQuestions(topics []model.SpeakingTopic) []model.SpeakingQuestion {
	sorted := append([]model.SpeakingTopic(nil), topics...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })
	var out []model.SpeakingQuestion
	for _, t := range sorted {
		out = append(out, t.Questions...)
	}
	return out
}

func (c *SpeakingController) set(fn func()) {
	c.mu.Lock()
	fn()
	c.mu.Unlock()
}

// Run drives the whole section and returns once the last question is
// handled or ctx ends. It refuses to start twice.
func (c *SpeakingController) Run(ctx context.Context, topics []model.SpeakingTopic) error {
	c.mu.Lock()
	if c.state != SpeakingIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.questions = FlattenQuestions(topics)
	c.state = SpeakingPlayingQuestion
	questions := c.questions
	c.mu.Unlock()

	c.logger.Info("speaking section started", zap.Int("questions", len(questions)))
	for i, q := range questions {
		if err := c.runQuestion(ctx, i, q); err != nil {
			return err
		}
	}
	c.set(func() { c.state = SpeakingCompleted })
	c.logger.Info("speaking section completed", zap.Int("failed_uploads", len(c.Status().FailedUploads)))
	return nil
}

func (c *SpeakingController) runQuestion(ctx context.Context, i int, q model.SpeakingQuestion) error {
	c.set(func() {
		c.index = i
		c.state = SpeakingPlayingQuestion
	})
	if c.player != nil {
		if err := c.player.PlayQuestion(ctx, q); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("question prompt did not play", zap.String("question_key", q.Key), zap.Error(err))
		}
	}

	c.set(func() { c.state = SpeakingCountdown })
	for n := c.cfg.CountdownSeconds; n > 0; n-- {
		c.set(func() { c.countdown = n })
		if err := c.sleep(ctx, c.cfg.TimeUnit); err != nil {
			return err
		}
	}
	c.set(func() { c.countdown = 0 })

	// a stop left over from the previous question must not end this one
	select {
	case <-c.stop:
	default:
	}
	if err := c.recorder.Start(ctx); err != nil {
		c.logger.Error("recording did not start", zap.String("question_key", q.Key), zap.Error(err))
		c.uploadFailed(q, err)
		return nil
	}
	c.set(func() { c.state = SpeakingRecording })

	var limit <-chan time.Time
	if q.ResponseTime != nil && *q.ResponseTime > 0 {
		timer := time.NewTimer(time.Duration(*q.ResponseTime) * c.cfg.TimeUnit)
		defer timer.Stop()
		limit = timer.C
	}
	select {
	case <-c.stop:
	case <-limit:
		c.logger.Debug("response time reached", zap.String("question_key", q.Key))
	case <-ctx.Done():
		_, _ = c.recorder.Stop()
		return ctx.Err()
	}

	c.set(func() { c.state = SpeakingSubmitting })
	audio, err := c.recorder.Stop()
	if err != nil {
		c.uploadFailed(q, fmt.Errorf("stop recording: %w", err))
		return nil
	}
	fileName := fmt.Sprintf("%s_%s.webm", c.attemptID, q.Key)
	res, err := c.submitter.SubmitSpeaking(ctx, q.Key, fileName, audio)
	if err == nil && !res.Success {
		err = fmt.Errorf("%w: %s", ErrRejected, res.Message)
	}
	if err != nil {
		c.uploadFailed(q, err)
		return nil
	}
	metrics.Autosaves.WithLabelValues("speaking", metrics.ResultOK).Inc()
	c.set(func() { c.submitted = append(c.submitted, q.Key) })
	return nil
}

// uploadFailed records the lost answer and tells the candidate; the
// section still moves on to the next question.
func (c *SpeakingController) uploadFailed(q model.SpeakingQuestion, err error) {
	metrics.Autosaves.WithLabelValues("speaking", metrics.ResultFailed).Inc()
	c.logger.Warn("speaking answer was not uploaded", zap.String("question_key", q.Key), zap.Error(err))
	c.set(func() { c.failed = append(c.failed, q.Key) })
	c.notifier.Notify(event.Notice{
		Kind:      event.KindUploadFailed,
		Level:     event.LevelWarning,
		Message:   "Your answer to this question could not be uploaded. The test will continue with the next question.",
		AttemptID: c.attemptID,
		Subject:   q.Key,
		Time:      time.Now(),
	})
}

func (c *SpeakingController) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopRecording ends the current answer before its time limit.
func (c *SpeakingController) StopRecording() error {
	c.mu.Lock()
	recording := c.state == SpeakingRecording
	c.mu.Unlock()
	if !recording {
		return ErrNotRecording
	}
	select {
	case c.stop <- struct{}{}:
	default:
	}
	return nil
}

func (c *SpeakingController) Status() SpeakingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := SpeakingStatus{
		State:         c.state,
		QuestionIndex: c.index,
		Total:         len(c.questions),
		Countdown:     c.countdown,
		Submitted:     append([]string{}, c.submitted...),
		FailedUploads: append([]string{}, c.failed...),
	}
	if c.state != SpeakingIdle && c.state != SpeakingCompleted && c.index < len(c.questions) {
		q := c.questions[c.index]
		st.Question = &q
	}
	return st
}
