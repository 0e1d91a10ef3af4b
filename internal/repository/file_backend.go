package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"IELTS-Exam-Runtime/internal/utils"

	"go.uber.org/zap"
)

// FileBackend keeps every key in one JSON document on disk.
type FileBackend struct {
	filePath string
	mu       sync.RWMutex
	entries  map[string]json.RawMessage
	logger   *zap.Logger
}

func NewFileBackend(filePath string, logger *zap.Logger) (*FileBackend, error) {
	b := &FileBackend{
		filePath: filePath,
		entries:  make(map[string]json.RawMessage),
		logger:   utils.OrNop(logger).Named("file_backend"),
	}
	if err := b.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		b.logger.Info("storage file does not exist, creating it", zap.String("path", filePath))
		if err := b.persist(); err != nil {
			return nil, err
		}
	}
	b.logger.Info("storage file loaded", zap.String("path", filePath), zap.Int("keys", len(b.entries)))
	return b, nil
}

func (b *FileBackend) load() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, err := os.ReadFile(b.filePath)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		b.entries = make(map[string]json.RawMessage)
		return nil
	}
	if err := json.Unmarshal(raw, &b.entries); err != nil {
		return fmt.Errorf("parse storage file %s: %w", b.filePath, err)
	}
	return nil
}

// persist must be called with mu held.
func (b *FileBackend) persist() error {
	raw, err := json.MarshalIndent(b.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage file: %w", err)
	}
	if dir := filepath.Dir(b.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	tmp := b.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write storage file: %w", err)
	}
	return os.Rename(tmp, b.filePath)
}

func (b *FileBackend) Read(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (b *FileBackend) Write(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not JSON", key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, had := b.entries[key]
	b.entries[key] = append(json.RawMessage(nil), value...)
	if err := b.persist(); err != nil {
		if had {
			b.entries[key] = prev
		} else {
			delete(b.entries, key)
		}
		return err
	}
	return nil
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, ok := b.entries[key]
	if !ok {
		return ErrNotFound
	}
	delete(b.entries, key)
	if err := b.persist(); err != nil {
		b.entries[key] = prev
		return err
	}
	return nil
}
