package repository

import (
	"sync"

	"IELTS-Exam-Runtime/internal/model"
)

const HighlightsKey = "exam_highlights"

// HighlightRepository serializes read-modify-write cycles on the global highlight document.
type HighlightRepository struct {
	store *Store
	mu    sync.Mutex
}

func NewHighlightRepository(store *Store) *HighlightRepository {
	return &HighlightRepository{store: store}
}

func (r *HighlightRepository) load() model.HighlightStore {
	all := model.HighlightStore{}
	if !r.store.Get(HighlightsKey, &all) || all == nil {
		return model.HighlightStore{}
	}
	return all
}

func (r *HighlightRepository) List(attemptID, sectionKey string) []model.HighlightRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := r.load()[attemptID][sectionKey]
	return append([]model.HighlightRecord(nil), records...)
}

func (r *HighlightRepository) Add(attemptID, sectionKey string, rec model.HighlightRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.load()
	if all[attemptID] == nil {
		all[attemptID] = make(map[string][]model.HighlightRecord)
	}
	for _, existing := range all[attemptID][sectionKey] {
		if existing.Key() == rec.Key() {
			return true
		}
	}
	all[attemptID][sectionKey] = append(all[attemptID][sectionKey], rec)
	return r.store.Set(HighlightsKey, all)
}

func (r *HighlightRepository) ClearSection(attemptID, sectionKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.load()
	if _, ok := all[attemptID][sectionKey]; !ok {
		return true
	}
	delete(all[attemptID], sectionKey)
	if len(all[attemptID]) == 0 {
		delete(all, attemptID)
	}
	return r.store.Set(HighlightsKey, all)
}

func (r *HighlightRepository) ClearAttempt(attemptID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.load()
	if _, ok := all[attemptID]; !ok {
		return true
	}
	delete(all, attemptID)
	return r.store.Set(HighlightsKey, all)
}
