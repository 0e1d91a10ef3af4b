package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"IELTS-Exam-Runtime/internal/event"
	"IELTS-Exam-Runtime/internal/metrics"
	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/utils"

	"go.uber.org/zap"
)

type Phase string

const (
	PhasePermissions  Phase = "permissions"
	PhaseInstructions Phase = "instructions"
	PhaseInSection    Phase = "in_section"
	PhaseSubmitting   Phase = "submitting"
	PhaseDone         Phase = "done"
	PhaseExited       Phase = "exited"
)

const (
	DefaultAnswerDebounce = 800 * time.Millisecond
	DefaultRequestTimeout = 30 * time.Second

	DashboardPath = "/dashboard"
)

// Fallback timer seeds in seconds for sections the backend sends without time_remaining.
var fallbackDurations = map[string]int{
	model.SectionListening: 40 * 60,
	model.SectionReading:   60 * 60,
	model.SectionWriting:   60 * 60,
	model.SectionSpeaking:  15 * 60,
}

var (
	ErrBusy            = errors.New("a section change or submission is already in progress")
	ErrStaleTransition = errors.New("section did not change")
	ErrNotReady        = errors.New("system check has not passed")
	ErrNoSectionData   = errors.New("section data is not loaded")
	ErrWrongPhase      = errors.New("operation is not allowed in the current phase")
	ErrRejected        = errors.New("rejected by the exam server")
	ErrSessionClosed   = errors.New("session is closed")
	ErrUnknownQuestion = errors.New("question is not in the loaded section")
)

func ResultsPath(attemptID string) string {
	return "/exam/results/" + attemptID
}

type Options struct {
	AnswerDebounce    time.Duration
	RequestTimeout    time.Duration
	NewTicker         utils.TickerFactory
	Logger            *zap.Logger
	Notifier          event.Notifier
	Confirmer         Confirmer
	Display           Display
	Navigator         Navigator
	Highlights        highlightCleaner
	ListeningProgress progressCleaner
	SystemCheck       *SystemCheck
	Preloader         *AudioPreloader
}

type Snapshot struct {
	AttemptID     string             `json:"attempt_id"`
	Section       string             `json:"section"`
	Phase         Phase              `json:"phase"`
	TimeRemaining int                `json:"time_remaining"`
	TimerRunning  bool               `json:"timer_running"`
	SectionData   *model.SectionData `json:"section_data,omitempty"`
	Answers       map[int]string     `json:"answers"`
	Progress      model.Progress     `json:"progress"`
	Loading       bool               `json:"loading"`
	LoadError     string             `json:"load_error,omitempty"`
	Advancing     bool               `json:"advancing"`
	Submitting    bool               `json:"submitting"`
	LastError     string             `json:"last_error,omitempty"`
}

// Session is the single owner of one attempt's exam flow.
type Session struct {
	attemptID string
	gateway   SectionGateway
	opts      Options
	logger    *zap.Logger
	debouncer *utils.KeyedDebouncer[int]
	saves     saveTracker

	sendMu    sync.Mutex
	queues    map[int]*answerQueue
	scheduled map[int]uint64
	schedSeq  uint64

	mu            sync.Mutex
	phase         Phase
	section       string
	data          *model.SectionData
	answers       map[int]string
	timeRemaining int
	countdown     *Countdown
	timerGen      uint64
	loading       bool
	loadErr       string
	advancing     bool
	submitting    bool
	lastErr       string
	closed        bool
	preloadCancel context.CancelFunc
	answerSeq     uint64
	expired       bool
	cancelConfirm context.CancelFunc

	subMu       sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSub     int
	exitHooks   []func()
}

func NewSession(attemptID, section string, gateway SectionGateway, opts Options) *Session {
	if opts.AnswerDebounce <= 0 {
		opts.AnswerDebounce = DefaultAnswerDebounce
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.NewTicker == nil {
		opts.NewTicker = utils.NewRealTicker
	}
	if opts.Notifier == nil {
		opts.Notifier = event.NopNotifier{}
	}
	return &Session{
		attemptID:   attemptID,
		gateway:     gateway,
		opts:        opts,
		logger:      utils.OrNop(opts.Logger).Named("session").With(zap.String("attempt_id", attemptID)),
		debouncer:   utils.NewKeyedDebouncer[int](opts.AnswerDebounce),
		phase:       PhasePermissions,
		section:     section,
		answers:     make(map[int]string),
		subscribers: make(map[int]func(Snapshot)),
		queues:      make(map[int]*answerQueue),
		scheduled:   make(map[int]uint64),
	}
}

func (s *Session) AttemptID() string { return s.attemptID }

// Subscribe registers fn for every state change and returns its unsubscribe func.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

// OnSectionExit registers fn to run when the candidate leaves the current
// section for good: on a section change and when the test is finalized.
func (s *Session) OnSectionExit(fn func()) {
	s.subMu.Lock()
	s.exitHooks = append(s.exitHooks, fn)
	s.subMu.Unlock()
}

func (s *Session) runExitHooks() {
	s.subMu.Lock()
	hooks := append([]func(){}, s.exitHooks...)
	s.subMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (s *Session) publish() {
	snap := s.Snapshot()
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	answers := make(map[int]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	snap := Snapshot{
		AttemptID:     s.attemptID,
		Section:       s.section,
		Phase:         s.phase,
		TimeRemaining: s.timeRemaining,
		TimerRunning:  s.countdown != nil,
		SectionData:   s.data,
		Answers:       answers,
		Loading:       s.loading,
		LoadError:     s.loadErr,
		Advancing:     s.advancing,
		Submitting:    s.submitting,
		LastError:     s.lastErr,
	}
	if s.data != nil {
		snap.Progress = s.data.Progress(answers)
	}
	return snap
}

func (s *Session) SectionData() (*model.SectionData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, s.data != nil
}

func (s *Session) Answers() map[int]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

func (s *Session) Answer(questionID int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers[questionID]
}

func (s *Session) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.RequestTimeout)
}

// LoadSectionData fetches the current section. Answers already entered
// locally win over the user_answer values embedded in the response.
func (s *Session) LoadSectionData(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	section := s.section
	s.loading = true
	s.loadErr = ""
	s.mu.Unlock()
	s.publish()

	reqCtx, cancel := s.requestContext(ctx)
	data, err := s.gateway.GetSectionData(reqCtx, s.attemptID, section)
	cancel()
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.loadErr = err.Error()
		s.mu.Unlock()
		s.logger.Error("failed to load section data", zap.String("section", section), zap.Error(err))
		s.publish()
		return fmt.Errorf("load %s section: %w", section, err)
	}

	seconds, ok := fallbackDurations[section]
	if data.TimeRemaining != nil {
		seconds, ok = *data.TimeRemaining, true
	}
	if !ok {
		seconds = 60 * 60
	}

	s.mu.Lock()
	for qid, answer := range data.EmbeddedAnswers() {
		if _, local := s.answers[qid]; !local {
			s.answers[qid] = answer
		}
	}
	s.data = data
	s.loading = false
	s.timeRemaining = seconds
	if s.countdown != nil {
		s.startTimerLocked(seconds)
	}
	s.mu.Unlock()

	s.logger.Info("section data loaded", zap.String("section", section), zap.Int("time_remaining", seconds))
	if kind, _ := data.Kind(); kind == model.SectionListening {
		s.startPreload(data.Parts)
	}
	s.publish()
	return nil
}

func (s *Session) startPreload(parts []model.ListeningPart) {
	if s.opts.Preloader == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.preloadCancel != nil {
		s.mu.Unlock()
		cancel()
		return
	}
	s.preloadCancel = cancel
	s.mu.Unlock()
	go s.opts.Preloader.Preload(ctx, parts)
}

// RunSystemCheck probes microphone, fullscreen and connectivity.
func (s *Session) RunSystemCheck(ctx context.Context) SystemCheckState {
	if s.opts.SystemCheck == nil {
		return SystemCheckState{Connectivity: ConnectivityGood, Ready: true}
	}
	state := s.opts.SystemCheck.Run(ctx)
	s.publish()
	return state
}

// ProceedToInstructions leaves the permission screen once the check has passed.
func (s *Session) ProceedToInstructions() error {
	if s.opts.SystemCheck != nil && !s.opts.SystemCheck.State().Ready {
		return ErrNotReady
	}
	s.mu.Lock()
	if s.phase != PhasePermissions {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	s.phase = PhaseInstructions
	s.mu.Unlock()
	s.publish()
	return nil
}

// StartSection starts the countdown and asks for fullscreen. Fullscreen
// failure is logged only.
func (s *Session) StartSection() error {
	s.mu.Lock()
	if s.phase != PhaseInstructions {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	if s.data == nil {
		s.mu.Unlock()
		return ErrNoSectionData
	}
	s.phase = PhaseInSection
	s.startTimerLocked(s.timeRemaining)
	section := s.section
	s.mu.Unlock()

	if d := s.opts.Display; d != nil && d.FullscreenSupported() {
		if err := d.RequestFullscreen(); err != nil {
			s.logger.Warn("fullscreen request failed", zap.Error(err))
		}
	}
	s.logger.Info("section started", zap.String("section", section))
	s.publish()
	return nil
}

// startTimerLocked replaces any running countdown. Callbacks from a
// replaced countdown are ignored by generation.
func (s *Session) startTimerLocked(seconds int) {
	s.stopTimerLocked()
	s.timerGen++
	gen := s.timerGen
	s.expired = false
	s.timeRemaining = seconds
	s.countdown = StartCountdown(seconds, s.opts.NewTicker,
		func(remaining int) { s.onTick(gen, remaining) },
		func() { s.onExpire(gen) })
}

func (s *Session) stopTimerLocked() {
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
	s.timerGen++
}

func (s *Session) onTick(gen uint64, remaining int) {
	s.mu.Lock()
	if gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	s.timeRemaining = remaining
	s.mu.Unlock()
	s.publish()
}

func (s *Session) onExpire(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	s.countdown = nil
	section := s.section
	busy := s.advancing || s.submitting
	if busy {
		// The running intent picks the expiry up; an open confirmation is
		// closed and treated as accepted.
		s.expired = true
		if s.cancelConfirm != nil {
			s.cancelConfirm()
		}
	}
	s.mu.Unlock()

	s.logger.Info("section time is up", zap.String("section", section), zap.Bool("intent_running", busy))
	if !busy {
		go s.autoAdvance(section)
	}
}

func (s *Session) autoAdvance(section string) {
	if err := s.HandleNextSection(context.Background(), true); err != nil {
		s.logger.Error("auto advance after timeout failed", zap.String("section", section), zap.Error(err))
	}
}

// resumeExpiry runs the auto advance that an intent absorbed but did not
// complete, so time running out always ends the section.
func (s *Session) resumeExpiry() {
	s.mu.Lock()
	pending := s.expired && !s.closed && s.countdown == nil && s.phase == PhaseInSection
	s.expired = false
	section := s.section
	s.mu.Unlock()
	if pending {
		go s.autoAdvance(section)
	}
}

// SubmitAnswer updates the visible answer at once. Immediate answers are
// sent now; free text is coalesced per question.
func (s *Session) SubmitAnswer(questionID int, answer string, immediate bool) {
	s.mu.Lock()
	s.answers[questionID] = answer
	s.answerSeq++
	seq := s.answerSeq
	s.mu.Unlock()
	s.publish()

	if immediate {
		if s.debouncer.Cancel(questionID) {
			s.unschedule(questionID, 0)
		}
		s.enqueueAnswer(questionID, answer, seq)
		return
	}
	token := s.schedule(questionID)
	s.debouncer.Trigger(questionID, func() {
		s.enqueueAnswer(questionID, answer, seq)
		s.unschedule(questionID, token)
	})
}

// schedule counts a debounced answer as in flight from the moment it is
// queued, so a flush never misses a timer that is about to fire.
func (s *Session) schedule(questionID int) uint64 {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if _, ok := s.scheduled[questionID]; !ok {
		s.saves.begin()
	}
	s.schedSeq++
	s.scheduled[questionID] = s.schedSeq
	return s.schedSeq
}

// unschedule releases the in-flight slot of questionID. token 0 releases it
// unconditionally; otherwise only the latest schedule may release it.
func (s *Session) unschedule(questionID int, token uint64) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	current, ok := s.scheduled[questionID]
	if !ok || (token != 0 && current != token) {
		return
	}
	delete(s.scheduled, questionID)
	s.saves.end()
}

// answerQueue holds at most one unsent value per question. A question has a
// single sender at a time, so saves reach the server in entry order and an
// older value never overwrites a newer one.
type answerQueue struct {
	seq     uint64
	latest  string
	dirty   bool
	running bool
}

func (s *Session) enqueueAnswer(questionID int, answer string, seq uint64) {
	s.sendMu.Lock()
	q := s.queues[questionID]
	if q == nil {
		q = &answerQueue{}
		s.queues[questionID] = q
	}
	if seq <= q.seq {
		s.sendMu.Unlock()
		return
	}
	q.seq, q.latest, q.dirty = seq, answer, true
	if q.running {
		s.sendMu.Unlock()
		return
	}
	q.running = true
	s.saves.begin()
	s.sendMu.Unlock()

	go s.drainAnswers(questionID, q)
}

func (s *Session) drainAnswers(questionID int, q *answerQueue) {
	defer s.saves.end()
	for {
		s.sendMu.Lock()
		if !q.dirty {
			q.running = false
			s.sendMu.Unlock()
			return
		}
		answer := q.latest
		q.dirty = false
		s.sendMu.Unlock()

		s.sendAnswer(questionID, answer)
	}
}

// ToggleOption flips one option of a multi-select question and saves the
// re-encoded answer immediately. Selecting past the question's limit is a no-op.
func (s *Session) ToggleOption(questionID int, option string) (string, error) {
	s.mu.Lock()
	if s.data == nil {
		s.mu.Unlock()
		return "", ErrNoSectionData
	}
	limit := -1
	for _, h := range s.data.TestHeads() {
		for _, q := range h.Questions {
			if q.ID == questionID {
				limit = model.QuestionWeight(h, q)
			}
		}
	}
	if limit < 0 {
		s.mu.Unlock()
		return "", ErrUnknownQuestion
	}
	answer := model.ToggleSelection(s.answers[questionID], option, limit)
	s.mu.Unlock()

	s.SubmitAnswer(questionID, answer, true)
	return answer, nil
}

func (s *Session) sendAnswer(questionID int, answer string) {
	ctx, cancel := s.requestContext(context.Background())
	defer cancel()
	_, err := s.gateway.SubmitAnswer(ctx, s.attemptID, model.AnswerSubmission{QuestionID: questionID, Answer: answer})
	if err != nil {
		metrics.Autosaves.WithLabelValues("answer", metrics.ResultFailed).Inc()
		s.logger.Warn("answer autosave failed", zap.Int("question_id", questionID), zap.Error(err))
		return
	}
	metrics.Autosaves.WithLabelValues("answer", metrics.ResultOK).Inc()
}

// FlushAnswers sends every pending answer and waits for saves in flight.
func (s *Session) FlushAnswers(ctx context.Context) error {
	s.debouncer.FlushAll()
	return s.saves.wait(ctx)
}

func (s *Session) SubmitWriting(ctx context.Context, taskID int, taskType, text string) (*model.WritingResult, error) {
	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()
	return s.gateway.SubmitWriting(reqCtx, s.attemptID, model.WritingSubmission{TaskID: taskID, TaskType: taskType, AnswerText: text})
}

func (s *Session) SubmitSpeaking(ctx context.Context, questionKey, fileName string, audio []byte) (*model.SubmitResult, error) {
	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()
	return s.gateway.SubmitSpeaking(reqCtx, s.attemptID, model.SpeakingSubmission{QuestionKey: questionKey, FileName: fileName, Audio: audio})
}

func (s *Session) confirm(ctx context.Context, req ConfirmRequest, fallback bool) (bool, error) {
	if s.opts.Confirmer == nil {
		return fallback, nil
	}
	return s.opts.Confirmer.Confirm(ctx, req)
}

// confirmAdvance asks before leaving the section. Time running out while
// the question is open closes it and counts as yes.
func (s *Session) confirmAdvance(ctx context.Context, req ConfirmRequest) (bool, error) {
	dialogCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return true, nil
	}
	s.cancelConfirm = cancel
	s.mu.Unlock()

	ok, err := s.confirm(dialogCtx, req, true)

	s.mu.Lock()
	s.cancelConfirm = nil
	expired := s.expired
	s.mu.Unlock()
	if expired && ctx.Err() == nil {
		s.logger.Info("time ran out while confirming, advancing")
		return true, nil
	}
	return ok, err
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
	s.opts.Notifier.Notify(event.Notice{
		Kind:      event.KindSessionError,
		Level:     event.LevelError,
		Message:   err.Error(),
		AttemptID: s.attemptID,
		Time:      time.Now(),
	})
}

// HandleNextSection advances to the next section, or finalizes the test
// when there is none. skipConfirmation is set by the timeout path.
func (s *Session) HandleNextSection(ctx context.Context, skipConfirmation bool) error {
	s.mu.Lock()
	if s.advancing || s.submitting {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.phase == PhaseDone || s.phase == PhaseExited {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	if s.data == nil {
		s.mu.Unlock()
		return ErrNoSectionData
	}
	s.advancing = true
	s.lastErr = ""
	data, current := s.data, s.section
	s.mu.Unlock()
	s.publish()

	defer func() {
		s.mu.Lock()
		s.advancing = false
		s.mu.Unlock()
		s.publish()
		s.resumeExpiry()
	}()

	if err := s.FlushAnswers(ctx); err != nil {
		s.logger.Warn("pending answers did not finish saving", zap.Error(err))
	}

	if !data.HasNextSection() {
		if !skipConfirmation {
			ok, err := s.confirmAdvance(ctx, ConfirmRequest{
				Title:       "Submit Test",
				Message:     "This is the last section. Do you want to submit your test now?",
				ConfirmText: "Submit",
				CancelText:  "Cancel",
			})
			if err != nil || !ok {
				return err
			}
		}
		return s.finalize(ctx)
	}

	if !skipConfirmation {
		ok, err := s.confirmAdvance(ctx, ConfirmRequest{
			Title:       "Next Section",
			Message:     "You will not be able to return to this section. Continue?",
			ConfirmText: "Continue",
			CancelText:  "Stay",
		})
		if err != nil || !ok {
			return err
		}
	}

	reqCtx, cancel := s.requestContext(ctx)
	res, err := s.gateway.NextSection(reqCtx, s.attemptID)
	cancel()
	if err == nil && !res.Success {
		err = fmt.Errorf("%w: %s", ErrRejected, res.Message)
	}
	if err != nil {
		metrics.SectionTransitions.WithLabelValues(metrics.ResultFailed).Inc()
		s.logger.Error("section advance failed", zap.String("section", current), zap.Error(err))
		err = fmt.Errorf("advance from %s: %w", current, err)
		s.fail(err)
		return err
	}

	if res.Status == model.AttemptCompleted {
		return s.finalize(ctx)
	}
	if res.CurrentSection == "" || res.CurrentSection == current {
		metrics.SectionTransitions.WithLabelValues("stale").Inc()
		err := fmt.Errorf("advance from %s: %w", current, ErrStaleTransition)
		s.logger.Error("server reported no section change", zap.String("section", current), zap.String("reported", res.CurrentSection))
		s.fail(err)
		return err
	}

	metrics.SectionTransitions.WithLabelValues(metrics.ResultOK).Inc()
	s.mu.Lock()
	s.stopTimerLocked()
	s.section = res.CurrentSection
	s.data = nil
	s.answers = make(map[int]string)
	s.timeRemaining = 0
	s.phase = PhaseInstructions
	s.mu.Unlock()
	s.runExitHooks()
	s.logger.Info("moved to next section", zap.String("from", current), zap.String("to", res.CurrentSection))
	s.publish()

	return s.LoadSectionData(ctx)
}

// HandleSubmitTest finalizes the attempt without a prior confirmation.
func (s *Session) HandleSubmitTest(ctx context.Context) error {
	s.mu.Lock()
	if s.advancing || s.submitting {
		s.mu.Unlock()
		return ErrBusy
	}
	s.mu.Unlock()
	defer s.resumeExpiry()
	if err := s.FlushAnswers(ctx); err != nil {
		s.logger.Warn("pending answers did not finish saving", zap.Error(err))
	}
	return s.finalize(ctx)
}

// finalize clears local caches, then submits until it succeeds or the
// candidate declines another retry. The timer keeps running on failure.
func (s *Session) finalize(ctx context.Context) error {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return ErrBusy
	}
	s.submitting = true
	previous := s.phase
	s.phase = PhaseSubmitting
	s.mu.Unlock()
	s.publish()

	s.runExitHooks()
	if s.opts.Highlights != nil {
		s.opts.Highlights.ClearAttempt(s.attemptID)
	}
	if s.opts.ListeningProgress != nil {
		s.opts.ListeningProgress.Clear(s.attemptID)
	}

	for attempt := 1; ; attempt++ {
		reqCtx, cancel := s.requestContext(ctx)
		res, err := s.gateway.SubmitTest(reqCtx, s.attemptID)
		cancel()
		if err == nil && !res.Success {
			err = fmt.Errorf("%w: %s", ErrRejected, res.Message)
		}
		if err == nil {
			s.mu.Lock()
			s.stopTimerLocked()
			s.submitting = false
			s.phase = PhaseDone
			s.mu.Unlock()
			s.logger.Info("test submitted", zap.Int("attempts", attempt))
			s.publish()
			if s.opts.Navigator != nil {
				s.opts.Navigator.Navigate(ResultsPath(s.attemptID))
			}
			return nil
		}

		err = fmt.Errorf("submit test: %w", err)
		s.logger.Error("test submission failed", zap.Int("attempt", attempt), zap.Error(err))
		s.fail(err)
		s.publish()

		retry, cerr := s.confirm(ctx, ConfirmRequest{
			Title:       "Submission Failed",
			Message:     "Your test could not be submitted. Your answers are saved. Try again?",
			ConfirmText: "Retry",
			CancelText:  "Cancel",
		}, false)
		if cerr != nil || !retry {
			s.mu.Lock()
			s.submitting = false
			s.phase = previous
			s.mu.Unlock()
			s.publish()
			return err
		}
	}
}

// HandleExit leaves without submitting. Returns false when the candidate
// stayed.
func (s *Session) HandleExit(ctx context.Context) (bool, error) {
	ok, err := s.confirm(ctx, ConfirmRequest{
		Title:       "Exit Exam",
		Message:     "Your progress is saved, but the test will not be submitted. Exit now?",
		ConfirmText: "Exit",
		CancelText:  "Stay",
	}, true)
	if err != nil || !ok {
		return false, err
	}

	s.debouncer.FlushAll()
	if s.opts.Highlights != nil {
		s.opts.Highlights.ClearAttempt(s.attemptID)
	}
	s.mu.Lock()
	s.stopTimerLocked()
	s.phase = PhaseExited
	s.mu.Unlock()
	s.logger.Info("candidate left the exam")
	s.publish()
	if s.opts.Navigator != nil {
		s.opts.Navigator.Navigate(DashboardPath)
	}
	return true, nil
}

// Close tears the session down. Pending answers are sent, not dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimerLocked()
	cancelPreload := s.preloadCancel
	s.mu.Unlock()

	s.debouncer.FlushAll()
	s.debouncer.Stop()
	if cancelPreload != nil {
		cancelPreload()
	}
	if s.opts.Preloader != nil {
		s.opts.Preloader.Release()
	}

	s.subMu.Lock()
	s.subscribers = make(map[int]func(Snapshot))
	s.subMu.Unlock()
	s.logger.Info("session closed")
}

// saveTracker counts saves in flight so callers can wait for them to land.
type saveTracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (t *saveTracker) begin() {
	t.mu.Lock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
	t.mu.Unlock()
}

func (t *saveTracker) end() {
	t.mu.Lock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
	t.mu.Unlock()
}

func (t *saveTracker) wait(ctx context.Context) error {
	t.mu.Lock()
	if t.n == 0 {
		t.mu.Unlock()
		return nil
	}
	idle := t.idle
	t.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
