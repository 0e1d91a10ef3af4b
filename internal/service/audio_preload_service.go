package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"IELTS-Exam-Runtime/internal/metrics"
	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/utils"

	"go.uber.org/zap"
)

type AudioFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// AudioPreloader downloads every distinct listening audio file once, one at
// a time, before the section starts.
type AudioPreloader struct {
	fetcher    AudioFetcher
	blobs      *BlobRegistry
	logger     *zap.Logger
	onProgress func(model.PreloadState)

	mu       sync.Mutex
	started  bool
	released bool
	state    model.PreloadState
	byURL    map[string]string
	partURL  map[int]string
	done     chan struct{}
}

func NewAudioPreloader(fetcher AudioFetcher, blobs *BlobRegistry, logger *zap.Logger) *AudioPreloader {
	return &AudioPreloader{
		fetcher: fetcher,
		blobs:   blobs,
		logger:  utils.OrNop(logger).Named("audio_preload"),
		byURL:   make(map[string]string),
		partURL: make(map[int]string),
		done:    make(chan struct{}),
	}
}

// OnProgress registers an observer called after every file.
func (p *AudioPreloader) OnProgress(fn func(model.PreloadState)) {
	p.mu.Lock()
	p.onProgress = fn
	p.mu.Unlock()
}

type preloadItem struct {
	part int
	url  string
}

func distinctAudio(parts []model.ListeningPart) ([]preloadItem, map[int]string) {
	sorted := append([]model.ListeningPart(nil), parts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	seen := make(map[string]struct{})
	partURL := make(map[int]string)
	var items []preloadItem
	for _, part := range sorted {
		if part.AudioURL == "" {
			continue
		}
		partURL[part.PartNumber] = part.AudioURL
		if _, dup := seen[part.AudioURL]; dup {
			continue
		}
		seen[part.AudioURL] = struct{}{}
		items = append(items, preloadItem{part: part.PartNumber, url: part.AudioURL})
	}
	return items, partURL
}

// Preload runs one sequential download pass. Calls after the first return
// false immediately, so a double mount cannot start a second pass.
func (p *AudioPreloader) Preload(ctx context.Context, parts []model.ListeningPart) bool {
	items, partURL := distinctAudio(parts)

	p.mu.Lock()
	if p.started || p.released {
		p.mu.Unlock()
		return false
	}
	p.started = true
	p.partURL = partURL
	p.state = model.PreloadState{
		Started:    true,
		TotalFiles: len(items),
		Files:      []model.PreloadedAudio{},
		Errors:     []model.PreloadError{},
	}
	p.mu.Unlock()
	defer close(p.done)

	p.logger.Info("preloading listening audio", zap.Int("files", len(items)), zap.Int("parts", len(parts)))

	stopped := false
	for _, item := range items {
		if ctx.Err() != nil {
			stopped = true
			break
		}
		label := fmt.Sprintf("Part %d audio", item.part)
		p.update(func(s *model.PreloadState) { s.CurrentFile = label })

		data, contentType, err := p.fetcher.Fetch(ctx, item.url)
		if err != nil {
			metrics.PreloadedFiles.WithLabelValues(metrics.ResultFailed).Inc()
			p.logger.Warn("audio preload failed", zap.String("url", item.url), zap.Error(err))
			p.update(func(s *model.PreloadState) {
				s.Errors = append(s.Errors, model.PreloadError{URL: item.url, Label: label, Message: err.Error()})
				s.LoadedFiles++
			})
			continue
		}

		// A download that lands after Release is dropped, never registered.
		p.mu.Lock()
		if p.released || ctx.Err() != nil {
			p.mu.Unlock()
			p.logger.Info("preload stopped, dropping late download", zap.String("url", item.url))
			stopped = true
			break
		}
		blobURL := p.blobs.Create(data, contentType)
		p.byURL[item.url] = blobURL
		p.mu.Unlock()

		metrics.PreloadedFiles.WithLabelValues(metrics.ResultOK).Inc()
		p.update(func(s *model.PreloadState) {
			s.Files = append(s.Files, model.PreloadedAudio{
				PartNumber:  item.part,
				OriginalURL: item.url,
				BlobURL:     blobURL,
				Size:        len(data),
			})
			s.LoadedFiles++
		})
	}

	p.update(func(s *model.PreloadState) {
		s.Done = true
		s.CurrentFile = ""
	})
	if stopped {
		return true
	}
	p.update(func(s *model.PreloadState) { s.Progress = 100 })
	p.logger.Info("listening audio preloaded", zap.Int("loaded", len(p.State().Files)), zap.Int("errors", len(p.State().Errors)))
	return true
}

func (p *AudioPreloader) update(fn func(s *model.PreloadState)) {
	p.mu.Lock()
	fn(&p.state)
	if p.state.TotalFiles > 0 {
		p.state.Progress = p.state.LoadedFiles * 100 / p.state.TotalFiles
	}
	snapshot := p.copyLocked()
	observer := p.onProgress
	p.mu.Unlock()
	if observer != nil {
		observer(snapshot)
	}
}

func (p *AudioPreloader) copyLocked() model.PreloadState {
	s := p.state
	s.Files = append([]model.PreloadedAudio(nil), p.state.Files...)
	s.Errors = append([]model.PreloadError(nil), p.state.Errors...)
	return s
}

func (p *AudioPreloader) State() model.PreloadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyLocked()
}

// Wait blocks until the download pass has finished or ctx is done.
func (p *AudioPreloader) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BlobURLForPart resolves a part to its cached blob, following shared URLs.
func (p *AudioPreloader) BlobURLForPart(part int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	url, ok := p.partURL[part]
	if !ok {
		return "", false
	}
	blob, ok := p.byURL[url]
	return blob, ok
}

// Release revokes every blob URL this preloader created. Downloads still
// in flight are discarded when they finish.
func (p *AudioPreloader) Release() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	n := 0
	for url, blob := range p.byURL {
		if p.blobs.Revoke(blob) {
			n++
		}
		delete(p.byURL, url)
	}
	if n > 0 {
		p.logger.Info("released preloaded audio", zap.Int("blobs", n))
	}
	return n
}
