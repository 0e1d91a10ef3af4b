package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"IELTS-Exam-Runtime/internal/model"
)

// The types below stand in for browser capabilities when the exam UI runs
// in a separate shell that talks to this process over HTTP.

var ErrNoRecording = errors.New("no recording was delivered")

// ShellDisplay remembers what the shell reported and whether fullscreen was asked for.
type ShellDisplay struct {
	supported atomic.Bool
	requested atomic.Int32
}

func (d *ShellDisplay) SetSupported(ok bool) { d.supported.Store(ok) }

func (d *ShellDisplay) FullscreenSupported() bool { return d.supported.Load() }

func (d *ShellDisplay) RequestFullscreen() error {
	d.requested.Add(1)
	return nil
}

func (d *ShellDisplay) Requests() int { return int(d.requested.Load()) }

type ShellNavigator struct {
	mu   sync.Mutex
	path string
}

func (n *ShellNavigator) Navigate(path string) {
	n.mu.Lock()
	n.path = path
	n.mu.Unlock()
}

// Redirect returns the last requested location, if any.
func (n *ShellNavigator) Redirect() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

type PlayCommand struct {
	Seq     int     `json:"seq"`
	Src     string  `json:"src"`
	StartAt float64 `json:"start_at"`
}

// ShellPlayer queues play commands for the shell to pick up.
type ShellPlayer struct {
	mu   sync.Mutex
	last PlayCommand
}

func (p *ShellPlayer) Play(src string, startAt float64) error {
	p.mu.Lock()
	p.last = PlayCommand{Seq: p.last.Seq + 1, Src: src, StartAt: startAt}
	p.mu.Unlock()
	return nil
}

func (p *ShellPlayer) Last() PlayCommand {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// ShellPrompt waits for the shell to report that a speaking prompt ended,
// or for MaxWait, whichever comes first.
type ShellPrompt struct {
	MaxWait time.Duration
	ended   chan struct{}
	once    sync.Once
}

func (p *ShellPrompt) init() {
	p.once.Do(func() { p.ended = make(chan struct{}, 1) })
}

func (p *ShellPrompt) PlayQuestion(ctx context.Context, _ model.SpeakingQuestion) error {
	p.init()
	wait := p.MaxWait
	if wait <= 0 {
		wait = time.Minute
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-p.ended:
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (p *ShellPrompt) Ended() {
	p.init()
	select {
	case p.ended <- struct{}{}:
	default:
	}
}

// ShellRecorder receives the recording from the shell once an answer stops.
type ShellRecorder struct {
	Grace time.Duration
	audio chan []byte
	once  sync.Once
}

func (r *ShellRecorder) init() {
	r.once.Do(func() { r.audio = make(chan []byte, 1) })
}

func (r *ShellRecorder) Start(context.Context) error {
	r.init()
	select {
	case <-r.audio:
	default:
	}
	return nil
}

func (r *ShellRecorder) Stop() ([]byte, error) {
	r.init()
	grace := r.Grace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case b := <-r.audio:
		return b, nil
	case <-t.C:
		return nil, ErrNoRecording
	}
}

func (r *ShellRecorder) Deliver(audio []byte) {
	r.init()
	select {
	case r.audio <- audio:
	default:
	}
}
