package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"IELTS-Exam-Runtime/internal/event"
	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/repository"
	"IELTS-Exam-Runtime/internal/utils"

	"go.uber.org/zap"
)

var ErrNoSession = errors.New("no exam session is open")

type RuntimeConfig struct {
	AnswerDebounce    time.Duration
	WritingDebounce   time.Duration
	RequestTimeout    time.Duration
	PoorLatency       time.Duration
	Listening         ListeningConfig
	Speaking          SpeakingConfig
	SpeakingMaxPrompt time.Duration
}

// ActiveSession bundles one attempt's state machine with its controllers.
type ActiveSession struct {
	*Session
	SystemCheck *SystemCheck
	Preloader   *AudioPreloader
	Listening   *ListeningController
	Writing     *WritingController
	Speaking    *SpeakingController
	Display     *ShellDisplay
	Navigator   *ShellNavigator
	Player      *ShellPlayer
	Prompt      *ShellPrompt
	Recorder    *ShellRecorder

	ctx    context.Context
	cancel context.CancelFunc
}

// Runtime owns at most one open session and the resources it shares with
// the HTTP facade.
type Runtime struct {
	gateway    SectionGateway
	fetcher    AudioFetcher
	blobs      *BlobRegistry
	dialogs    *DialogBroker
	notifier   event.Notifier
	highlights *repository.HighlightRepository
	progress   *repository.ListeningProgressRepository
	cfg        RuntimeConfig
	logger     *zap.Logger

	mu     sync.Mutex
	active *ActiveSession
}

func NewRuntime(gateway SectionGateway, fetcher AudioFetcher, blobs *BlobRegistry, dialogs *DialogBroker, notifier event.Notifier,
	highlights *repository.HighlightRepository, progress *repository.ListeningProgressRepository, cfg RuntimeConfig, logger *zap.Logger) *Runtime {
	return &Runtime{
		gateway:    gateway,
		fetcher:    fetcher,
		blobs:      blobs,
		dialogs:    dialogs,
		notifier:   notifier,
		highlights: highlights,
		progress:   progress,
		cfg:        cfg,
		logger:     utils.OrNop(logger),
	}
}

func (r *Runtime) Blobs() *BlobRegistry   { return r.blobs }
func (r *Runtime) Dialogs() *DialogBroker { return r.dialogs }

func (r *Runtime) Highlights() *repository.HighlightRepository { return r.highlights }

// Open starts a session for attemptID, closing whatever was open before.
func (r *Runtime) Open(attemptID, section string) *ActiveSession {
	display := &ShellDisplay{}
	nav := &ShellNavigator{}
	check := NewSystemCheck(r.gateway, nil, display, r.cfg.PoorLatency, r.logger)
	preloader := NewAudioPreloader(r.fetcher, r.blobs, r.logger)

	session := NewSession(attemptID, section, r.gateway, Options{
		AnswerDebounce:    r.cfg.AnswerDebounce,
		RequestTimeout:    r.cfg.RequestTimeout,
		Logger:            r.logger,
		Notifier:          r.notifier,
		Confirmer:         r.dialogs,
		Display:           display,
		Navigator:         nav,
		Highlights:        r.highlights,
		ListeningProgress: r.progress,
		SystemCheck:       check,
		Preloader:         preloader,
	})

	player := &ShellPlayer{}
	prompt := &ShellPrompt{MaxWait: r.cfg.SpeakingMaxPrompt}
	recorder := &ShellRecorder{}
	active := &ActiveSession{
		Session:     session,
		SystemCheck: check,
		Preloader:   preloader,
		Listening:   NewListeningController(session, r.progress, preloader, player, r.cfg.Listening, r.logger),
		Writing:     NewWritingController(session, r.cfg.WritingDebounce, r.logger),
		Speaking:    NewSpeakingController(attemptID, session, prompt, recorder, r.notifier, r.cfg.Speaking, r.logger),
		Display:     display,
		Navigator:   nav,
		Player:      player,
		Prompt:      prompt,
		Recorder:    recorder,
	}
	active.ctx, active.cancel = context.WithCancel(context.Background())
	session.OnSectionExit(active.Listening.Detach)

	r.mu.Lock()
	previous := r.active
	r.active = active
	r.mu.Unlock()
	if previous != nil {
		previous.close()
	}
	r.logger.Info("exam session opened", zap.String("attempt_id", attemptID), zap.String("section", section))
	return active
}

func (r *Runtime) Active() (*ActiveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil, ErrNoSession
	}
	return r.active, nil
}

func (r *Runtime) CloseSession() bool {
	r.mu.Lock()
	active := r.active
	r.active = nil
	r.mu.Unlock()
	if active == nil {
		return false
	}
	active.close()
	return true
}

func (a *ActiveSession) close() {
	a.cancel()
	a.Listening.Unmount()
	a.Writing.Unmount()
	a.Session.Close()
}

// MountSection prepares the controller that matches the loaded section.
func (a *ActiveSession) MountSection() error {
	data, ok := a.SectionData()
	if !ok {
		return ErrNoSectionData
	}
	kind, err := data.Kind()
	if err != nil {
		return err
	}
	switch kind {
	case model.SectionListening:
		_, err = a.Listening.Mount()
	case model.SectionWriting:
		a.Writing.Mount(data.Tasks)
	}
	return err
}

// RunSpeaking drives the speaking section in the background.
func (a *ActiveSession) RunSpeaking(logger *zap.Logger) error {
	data, ok := a.SectionData()
	if !ok {
		return ErrNoSectionData
	}
	if kind, _ := data.Kind(); kind != model.SectionSpeaking {
		return ErrNotSpeaking
	}
	if a.Speaking.Status().State != SpeakingIdle {
		return ErrBusy
	}
	go func() {
		if err := a.Speaking.Run(a.ctx, data.Topics); err != nil {
			utils.OrNop(logger).Warn("speaking run ended early", zap.String("attempt_id", a.AttemptID()), zap.Error(err))
		}
	}()
	return nil
}
