package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"IELTS-Exam-Runtime/internal/metrics"
	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/utils"

	"go.uber.org/zap"
)

const DefaultWritingDebounce = 2 * time.Second

// Minimum word counts used when a task does not carry its own.
const (
	Task1MinWords = 150
	Task2MinWords = 250
)

type WritingSubmitter interface {
	SubmitWriting(ctx context.Context, taskID int, taskType, text string) (*model.WritingResult, error)
}

type WritingStatus struct {
	TaskID       int    `json:"task_id"`
	Words        int    `json:"words"`
	MinWords     int    `json:"min_words"`
	MeetsMinimum bool   `json:"meets_minimum"`
	Saved        bool   `json:"saved"`
	SaveError    string `json:"save_error,omitempty"`
}

func MinWordsFor(task model.WritingTask) int {
	if task.MinWords > 0 {
		return task.MinWords
	}
	if task.TaskNumber == 1 {
		return Task1MinWords
	}
	return Task2MinWords
}

// WritingController keeps the essay text per task and saves it once the
// candidate stops typing.
type WritingController struct {
	submitter WritingSubmitter
	debouncer *utils.KeyedDebouncer[int]
	logger    *zap.Logger

	mu       sync.Mutex
	tasks    []model.WritingTask
	active   int
	texts    map[int]string
	saved    map[int]string
	saveErrs map[int]string
}

func NewWritingController(submitter WritingSubmitter, debounce time.Duration, logger *zap.Logger) *WritingController {
	if debounce <= 0 {
		debounce = DefaultWritingDebounce
	}
	return &WritingController{
		submitter: submitter,
		debouncer: utils.NewKeyedDebouncer[int](debounce),
		logger:    utils.OrNop(logger).Named("writing"),
		texts:     make(map[int]string),
		saved:     make(map[int]string),
		saveErrs:  make(map[int]string),
	}
}

// Mount seeds each task's text from the answer the backend already holds.
func (c *WritingController) Mount(tasks []model.WritingTask) {
	sorted := append([]model.WritingTask(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TaskNumber < sorted[j].TaskNumber })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = sorted
	c.active = 0
	if len(sorted) > 0 {
		c.active = sorted[0].ID
	}
	for _, t := range sorted {
		if _, local := c.texts[t.ID]; local {
			continue
		}
		if t.UserAnswer != nil {
			c.texts[t.ID] = *t.UserAnswer
			c.saved[t.ID] = *t.UserAnswer
		}
	}
}

func (c *WritingController) taskLocked(id int) (model.WritingTask, bool) {
	for _, t := range c.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.WritingTask{}, false
}

// SetText records a keystroke; the save fires only after the debounce window passes quietly.
func (c *WritingController) SetText(taskID int, text string) (WritingStatus, error) {
	c.mu.Lock()
	task, ok := c.taskLocked(taskID)
	if !ok {
		c.mu.Unlock()
		return WritingStatus{}, ErrUnknownPart
	}
	c.texts[taskID] = text
	status := c.statusLocked(task)
	c.mu.Unlock()

	c.debouncer.Trigger(taskID, func() { c.save(task, text) })
	return status, nil
}

func (c *WritingController) save(task model.WritingTask, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	_, err := c.submitter.SubmitWriting(ctx, task.ID, task.TaskType, text)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		metrics.Autosaves.WithLabelValues("writing", metrics.ResultFailed).Inc()
		c.logger.Warn("writing autosave failed", zap.Int("task_id", task.ID), zap.Error(err))
		c.saveErrs[task.ID] = err.Error()
		return
	}
	metrics.Autosaves.WithLabelValues("writing", metrics.ResultOK).Inc()
	c.saved[task.ID] = text
	delete(c.saveErrs, task.ID)
}

func (c *WritingController) statusLocked(task model.WritingTask) WritingStatus {
	text := c.texts[task.ID]
	words := utils.WordCount(text)
	saved, ok := c.saved[task.ID]
	minWords := MinWordsFor(task)
	return WritingStatus{
		TaskID:       task.ID,
		Words:        words,
		MinWords:     minWords,
		MeetsMinimum: words >= minWords,
		Saved:        ok && saved == text,
		SaveError:    c.saveErrs[task.ID],
	}
}

func (c *WritingController) Status(taskID int) (WritingStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.taskLocked(taskID)
	if !ok {
		return WritingStatus{}, ErrUnknownPart
	}
	return c.statusLocked(task), nil
}

func (c *WritingController) Text(taskID int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.texts[taskID]
}

func (c *WritingController) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SelectTask saves the task being left before switching.
func (c *WritingController) SelectTask(taskID int) error {
	c.mu.Lock()
	if _, ok := c.taskLocked(taskID); !ok {
		c.mu.Unlock()
		return ErrUnknownPart
	}
	leaving := c.active
	c.active = taskID
	c.mu.Unlock()

	if leaving != taskID {
		c.debouncer.Flush(leaving)
	}
	return nil
}

// Flush sends every pending save now.
func (c *WritingController) Flush() int {
	return c.debouncer.FlushAll()
}

func (c *WritingController) Unmount() {
	c.debouncer.FlushAll()
	c.debouncer.Stop()
}
