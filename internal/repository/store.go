package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"IELTS-Exam-Runtime/internal/utils"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("key not found")

// Backend is raw persistent key/value storage.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store is the best-effort JSON layer every local cache goes through. All
// failures are logged and reported as false; callers never handle errors.
type Store struct {
	backend Backend
	logger  *zap.Logger
	timeout time.Duration
}

func NewStore(backend Backend, logger *zap.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  utils.OrNop(logger).Named("store"),
		timeout: 2 * time.Second,
	}
}

// Get decodes key into dest. It returns false when the key is missing or unreadable.
func (s *Store) Get(key string, dest any) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	raw, err := s.backend.Read(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("storage read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.logger.Warn("storage value is not valid JSON", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) Set(key string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("storage value could not be encoded", zap.String("key", key), zap.Error(err))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Write(ctx, key, raw); err != nil {
		s.logger.Warn("storage write failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) Remove(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("storage delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}
