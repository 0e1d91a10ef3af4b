package repository

import (
	"time"

	"IELTS-Exam-Runtime/internal/model"
)

const listeningProgressPrefix = "listening_progress_"

type ListeningProgressRepository struct {
	store *Store
}

func NewListeningProgressRepository(store *Store) *ListeningProgressRepository {
	return &ListeningProgressRepository{store: store}
}

func ListeningProgressKey(attemptID string) string {
	return listeningProgressPrefix + attemptID
}

func (r *ListeningProgressRepository) Load(attemptID string) (model.ListeningProgress, bool) {
	var p model.ListeningProgress
	if !r.store.Get(ListeningProgressKey(attemptID), &p) {
		return model.ListeningProgress{}, false
	}
	if p.AudioTimes == nil {
		p.AudioTimes = make(map[int]float64)
	}
	return p, true
}

func (r *ListeningProgressRepository) Save(attemptID string, p model.ListeningProgress) bool {
	p.Timestamp = time.Now().UnixMilli()
	return r.store.Set(ListeningProgressKey(attemptID), p)
}

func (r *ListeningProgressRepository) Clear(attemptID string) bool {
	return r.store.Remove(ListeningProgressKey(attemptID))
}
