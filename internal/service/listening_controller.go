package service

import (
	"errors"
	"sort"
	"sync"
	"time"

	"IELTS-Exam-Runtime/internal/metrics"
	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/utils"

	"go.uber.org/zap"
)

const (
	DefaultListeningSaveInterval = 2 * time.Second
	DefaultAutoplayDelay         = 1500 * time.Millisecond
)

var (
	ErrNotListening = errors.New("current section is not listening")
	ErrUnknownPart  = errors.New("no such part")
)

type AudioPlayer interface {
	Play(src string, startAt float64) error
}

type listeningProgressStore interface {
	Load(attemptID string) (model.ListeningProgress, bool)
	Save(attemptID string, p model.ListeningProgress) bool
}

type ListeningConfig struct {
	SaveInterval  time.Duration
	AutoplayDelay time.Duration
}

type ListeningView struct {
	ActivePart int                  `json:"active_part"`
	AudioTimes map[int]float64      `json:"audio_times"`
	Palette    []model.PaletteEntry `json:"palette"`
	AudioSrc   string               `json:"audio_src,omitempty"`
}

// ListeningController owns the visible part and the playback position of
// each part for one attempt.
type ListeningController struct {
	session   *Session
	progress  listeningProgressStore
	preloader *AudioPreloader
	player    AudioPlayer
	cfg       ListeningConfig
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	mounted    bool
	parts      []model.ListeningPart
	active     int
	audioTimes map[int]float64
	lastSave   time.Time
	autoplay   *time.Timer
}

func NewListeningController(session *Session, progress listeningProgressStore, preloader *AudioPreloader, player AudioPlayer, cfg ListeningConfig, logger *zap.Logger) *ListeningController {
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = DefaultListeningSaveInterval
	}
	if cfg.AutoplayDelay <= 0 {
		cfg.AutoplayDelay = DefaultAutoplayDelay
	}
	return &ListeningController{
		session:    session,
		progress:   progress,
		preloader:  preloader,
		player:     player,
		cfg:        cfg,
		logger:     utils.OrNop(logger).Named("listening"),
		now:        time.Now,
		audioTimes: make(map[int]float64),
	}
}

// Mount restores the saved part and playback positions for the attempt.
func (c *ListeningController) Mount() (ListeningView, error) {
	data, ok := c.session.SectionData()
	if !ok {
		return ListeningView{}, ErrNoSectionData
	}
	if kind, err := data.Kind(); err != nil || kind != model.SectionListening {
		return ListeningView{}, ErrNotListening
	}

	parts := append([]model.ListeningPart(nil), data.Parts...)
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	c.mu.Lock()
	c.parts = parts
	c.mounted = true
	c.audioTimes = make(map[int]float64)
	c.active = 0
	if len(parts) > 0 {
		c.active = parts[0].PartNumber
	}
	if saved, ok := c.progress.Load(c.session.AttemptID()); ok {
		if c.hasPartLocked(saved.ActivePart) {
			c.active = saved.ActivePart
		}
		for part, t := range saved.AudioTimes {
			c.audioTimes[part] = t
		}
		c.logger.Info("restored listening progress", zap.String("attempt_id", c.session.AttemptID()), zap.Int("active_part", c.active))
	}
	c.mu.Unlock()
	return c.View(), nil
}

func (c *ListeningController) hasPartLocked(number int) bool {
	_, ok := c.partLocked(number)
	return ok
}

func (c *ListeningController) partLocked(number int) (model.ListeningPart, bool) {
	for _, p := range c.parts {
		if p.PartNumber == number {
			return p, true
		}
	}
	return model.ListeningPart{}, false
}

func (c *ListeningController) saveLocked() {
	if !c.mounted {
		return
	}
	times := make(map[int]float64, len(c.audioTimes))
	for k, v := range c.audioTimes {
		times[k] = v
	}
	ok := c.progress.Save(c.session.AttemptID(), model.ListeningProgress{ActivePart: c.active, AudioTimes: times})
	result := metrics.ResultOK
	if !ok {
		result = metrics.ResultFailed
	}
	metrics.Autosaves.WithLabelValues("listening_progress", result).Inc()
	c.lastSave = c.now()
}

// SelectPart switches the visible part. Every part is navigable, with or without audio.
func (c *ListeningController) SelectPart(number int) (ListeningView, error) {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ListeningView{}, ErrNotListening
	}
	if !c.hasPartLocked(number) {
		c.mu.Unlock()
		return ListeningView{}, ErrUnknownPart
	}
	c.active = number
	c.saveLocked()
	c.mu.Unlock()
	return c.View(), nil
}

// UpdatePlayback records the current position and persists it at most once per save interval.
func (c *ListeningController) UpdatePlayback(part int, seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted || !c.hasPartLocked(part) {
		return
	}
	c.audioTimes[part] = seconds
	if c.now().Sub(c.lastSave) >= c.cfg.SaveInterval {
		c.saveLocked()
	}
}

// OnAudioEnded moves to the following part after a short delay and plays
// it when it has audio.
func (c *ListeningController) OnAudioEnded(part int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return
	}
	if c.autoplay != nil {
		c.autoplay.Stop()
	}
	c.autoplay = time.AfterFunc(c.cfg.AutoplayDelay, func() { c.advanceAfter(part) })
}

func (c *ListeningController) advanceAfter(part int) {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	var next *model.ListeningPart
	for i := range c.parts {
		if c.parts[i].PartNumber > part {
			next = &c.parts[i]
			break
		}
	}
	if next == nil {
		c.mu.Unlock()
		return
	}
	c.active = next.PartNumber
	c.saveLocked()
	src, startAt := c.sourceLocked(*next), c.audioTimes[next.PartNumber]
	c.mu.Unlock()

	if src == "" || c.player == nil {
		return
	}
	if err := c.player.Play(src, startAt); err != nil {
		c.logger.Warn("autoplay failed", zap.Int("part", next.PartNumber), zap.Error(err))
	}
}

// sourceLocked prefers the preloaded blob over the remote URL.
func (c *ListeningController) sourceLocked(part model.ListeningPart) string {
	if part.AudioURL == "" {
		return ""
	}
	if c.preloader != nil {
		if blob, ok := c.preloader.BlobURLForPart(part.PartNumber); ok {
			return blob
		}
	}
	return part.AudioURL
}

// Answer routes a question answer to the session; choice types save immediately.
func (c *ListeningController) Answer(head model.TestHead, questionID int, answer string) {
	c.session.SubmitAnswer(questionID, answer, head.QuestionType.Immediate())
}

func (c *ListeningController) Palette() []model.PaletteEntry {
	answers := c.session.Answers()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paletteLocked(answers)
}

func (c *ListeningController) paletteLocked(answers map[int]string) []model.PaletteEntry {
	entries := make([]model.PaletteEntry, 0, len(c.parts))
	for _, p := range c.parts {
		entries = append(entries, model.PaletteEntry{
			Number:    p.PartNumber,
			Progress:  p.Progress(answers),
			HasAudio:  p.AudioURL != "",
			Navigable: true,
			Active:    p.PartNumber == c.active,
		})
	}
	return entries
}

func (c *ListeningController) View() ListeningView {
	answers := c.session.Answers()
	c.mu.Lock()
	defer c.mu.Unlock()
	times := make(map[int]float64, len(c.audioTimes))
	for k, v := range c.audioTimes {
		times[k] = v
	}
	view := ListeningView{
		ActivePart: c.active,
		AudioTimes: times,
		Palette:    c.paletteLocked(answers),
	}
	if p, ok := c.partLocked(c.active); ok {
		view.AudioSrc = c.sourceLocked(p)
	}
	return view
}

// Unmount cancels a scheduled autoplay and saves the final positions.
func (c *ListeningController) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return
	}
	c.stopAutoplayLocked()
	c.saveLocked()
	c.mounted = false
}

// Detach stops the controller without saving. It runs when the candidate
// leaves the section or the test is submitted, after which stored progress
// must stay as the session left it.
func (c *ListeningController) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return
	}
	c.stopAutoplayLocked()
	c.mounted = false
	c.logger.Info("listening controller detached", zap.String("attempt_id", c.session.AttemptID()))
}

func (c *ListeningController) stopAutoplayLocked() {
	if c.autoplay != nil {
		c.autoplay.Stop()
		c.autoplay = nil
	}
}
