package highlight

import (
	"context"
	"errors"
	"strings"
	"time"

	"IELTS-Exam-Runtime/internal/metrics"
	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultRestoreBatch = 20

var ErrEmptySelection = errors.New("selection is empty")

type recordStore interface {
	List(attemptID, sectionKey string) []model.HighlightRecord
	Add(attemptID, sectionKey string, rec model.HighlightRecord) bool
	ClearSection(attemptID, sectionKey string) bool
}

// Highlighter persists highlights for one section of one attempt and
// replays them onto a surface.
type Highlighter struct {
	store      recordStore
	attemptID  string
	sectionKey string
	batch      int
	logger     *zap.Logger
	now        func() time.Time
}

func NewHighlighter(store recordStore, attemptID, sectionKey string, logger *zap.Logger) *Highlighter {
	return &Highlighter{
		store:      store,
		attemptID:  attemptID,
		sectionKey: sectionKey,
		batch:      DefaultRestoreBatch,
		logger: utils.OrNop(logger).Named("highlight").With(
			zap.String("attempt_id", attemptID), zap.String("section_key", sectionKey)),
		now: time.Now,
	}
}

func markOf(rec model.HighlightRecord) Mark {
	return Mark{Key: rec.Key(), ColorIndex: rec.ColorIndex, Formats: rec.FormatFlags}
}

// Add marks the selected text on surface and stores it. A storage failure
// leaves the visible mark in place.
func (h *Highlighter) Add(surface Surface, text string, colorIndex int, formats []string) (model.HighlightRecord, error) {
	if strings.TrimSpace(text) == "" {
		return model.HighlightRecord{}, ErrEmptySelection
	}
	rec := model.HighlightRecord{
		ID:          uuid.NewString(),
		Text:        text,
		ColorIndex:  colorIndex,
		FormatFlags: append([]string{}, formats...),
		Timestamp:   h.now().UnixMilli(),
	}
	if err := surface.Wrap(text, markOf(rec)); err != nil {
		return model.HighlightRecord{}, err
	}

	result := metrics.ResultOK
	if !h.store.Add(h.attemptID, h.sectionKey, rec) {
		result = metrics.ResultFailed
		h.logger.Warn("highlight was not persisted", zap.String("id", rec.ID))
	}
	metrics.Autosaves.WithLabelValues("highlight", result).Inc()
	return rec, nil
}

// Restore re-applies stored highlights that are not on the surface yet, so
// calling it again on the same surface adds nothing. ctx is checked between
// batches.
func (h *Highlighter) Restore(ctx context.Context, surface Surface) (int, error) {
	records := h.store.List(h.attemptID, h.sectionKey)
	restored := 0
	for i, rec := range records {
		if i%h.batch == 0 {
			if err := ctx.Err(); err != nil {
				return restored, err
			}
		}
		if surface.HasMark(rec.Key()) {
			continue
		}
		if err := surface.Wrap(rec.Text, markOf(rec)); err != nil {
			h.logger.Debug("stored highlight no longer matches content", zap.String("key", rec.Key()), zap.Error(err))
			continue
		}
		restored++
	}
	if restored > 0 {
		h.logger.Info("restored highlights", zap.Int("restored", restored), zap.Int("stored", len(records)))
	}
	return restored, nil
}

// Clear removes every mark from surface and forgets this section's records.
func (h *Highlighter) Clear(surface Surface) int {
	n := 0
	if surface != nil {
		n = surface.ClearMarks()
	}
	if !h.store.ClearSection(h.attemptID, h.sectionKey) {
		h.logger.Warn("stored highlights were not cleared")
	}
	return n
}

func (h *Highlighter) Records() []model.HighlightRecord {
	return h.store.List(h.attemptID, h.sectionKey)
}
