package service

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

const blobScheme = "blob:"

type Blob struct {
	Data        []byte
	ContentType string
}

// BlobRegistry hands out object URLs for in-memory media. Nothing is freed
// until Revoke or RevokeAll is called.
type BlobRegistry struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

func NewBlobRegistry() *BlobRegistry {
	return &BlobRegistry{blobs: make(map[string]Blob)}
}

func (r *BlobRegistry) Create(data []byte, contentType string) string {
	url := blobScheme + uuid.NewString()
	r.mu.Lock()
	r.blobs[url] = Blob{Data: data, ContentType: contentType}
	r.mu.Unlock()
	return url
}

func (r *BlobRegistry) Get(url string) (Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[url]
	return b, ok
}

func (r *BlobRegistry) Revoke(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blobs[url]; !ok {
		return false
	}
	delete(r.blobs, url)
	return true
}

// RevokeAll frees every blob and reports how many were held.
func (r *BlobRegistry) RevokeAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.blobs)
	r.blobs = make(map[string]Blob)
	return n
}

func (r *BlobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// BlobID strips the scheme so the id can travel in a path segment.
func BlobID(url string) string {
	return strings.TrimPrefix(url, blobScheme)
}

func BlobURL(id string) string {
	return blobScheme + id
}
