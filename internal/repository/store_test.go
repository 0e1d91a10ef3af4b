package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"IELTS-Exam-Runtime/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct{}

func (failingBackend) Read(context.Context, string) ([]byte, error) {
	return nil, errors.New("storage unavailable")
}

func (failingBackend) Write(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}

func (failingBackend) Delete(context.Context, string) error {
	return errors.New("storage unavailable")
}

func TestStore_FailuresAreContained(t *testing.T) {
	s := NewStore(failingBackend{}, nil)

	var v map[string]int
	assert.False(t, s.Get("k", &v))
	assert.False(t, s.Set("k", map[string]int{"a": 1}))
	assert.False(t, s.Remove("k"))
}

func TestStore_RoundTripAndCorruptValue(t *testing.T) {
	backend := NewMemoryBackend()
	s := NewStore(backend, nil)

	require.True(t, s.Set("font", 3))
	var i int
	require.True(t, s.Get("font", &i))
	assert.Equal(t, 3, i)

	require.NoError(t, backend.Write(context.Background(), "broken", []byte("{not json")))
	var m map[string]any
	assert.False(t, s.Get("broken", &m))

	assert.True(t, s.Remove("missing"), "removing a missing key is not a failure")
}

func TestFileBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "storage.json")

	b, err := NewFileBackend(path, nil)
	require.NoError(t, err)
	s := NewStore(b, nil)
	require.True(t, s.Set(ThemeKey, ThemeDark))

	reopened, err := NewFileBackend(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, NewThemeRepository(NewStore(reopened, nil)).Get())

	require.NoError(t, reopened.Delete(context.Background(), ThemeKey))
	_, err = reopened.Read(context.Background(), ThemeKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackend_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	require.NoError(t, os.WriteFile(path, []byte("[1,2"), 0o644))

	_, err := NewFileBackend(path, nil)
	assert.Error(t, err)
}

func TestThemeRepository_UsesSingleSharedKey(t *testing.T) {
	backend := NewMemoryBackend()
	repo := NewThemeRepository(NewStore(backend, nil))

	assert.Equal(t, ThemeLight, repo.Get())
	assert.Equal(t, ThemeDark, repo.Toggle())
	assert.Equal(t, ThemeLight, repo.Toggle())
	assert.False(t, repo.Set("sepia"))

	assert.Equal(t, []string{ThemeKey}, backend.Keys())
}

func TestFontSizeRepository_Clamps(t *testing.T) {
	repo := NewFontSizeRepository(NewStore(NewMemoryBackend(), nil))

	assert.Equal(t, DefaultFontSizeIndex, repo.Get())
	assert.Equal(t, len(FontSizes)-1, repo.Set(99))
	assert.Equal(t, len(FontSizes)-1, repo.Get())
	assert.Equal(t, 0, repo.Set(-4))
}

func TestListeningProgressRepository(t *testing.T) {
	repo := NewListeningProgressRepository(NewStore(NewMemoryBackend(), nil))

	_, ok := repo.Load("42")
	assert.False(t, ok)

	require.True(t, repo.Save("42", model.ListeningProgress{ActivePart: 2, AudioTimes: map[int]float64{1: 312.5, 2: 14}}))
	p, ok := repo.Load("42")
	require.True(t, ok)
	assert.Equal(t, 2, p.ActivePart)
	assert.Equal(t, 312.5, p.AudioTimes[1])
	assert.NotZero(t, p.Timestamp)

	_, ok = repo.Load("43")
	assert.False(t, ok, "progress is keyed per attempt")

	repo.Clear("42")
	_, ok = repo.Load("42")
	assert.False(t, ok)
}

func TestHighlightRepository_KeyedPerAttempt(t *testing.T) {
	repo := NewHighlightRepository(NewStore(NewMemoryBackend(), nil))
	rec := model.HighlightRecord{ID: "h1", Text: "tidal", ColorIndex: 1, FormatFlags: []string{"bold"}, Timestamp: 100}

	require.True(t, repo.Add("a1", "reading_1", rec))
	require.True(t, repo.Add("a1", "reading_1", rec))
	require.True(t, repo.Add("a1", "reading_2", model.HighlightRecord{Text: "estuary", Timestamp: 200}))

	assert.Len(t, repo.List("a1", "reading_1"), 1, "same record is stored once")
	assert.Empty(t, repo.List("a2", "reading_1"))

	require.True(t, repo.ClearSection("a1", "reading_1"))
	assert.Empty(t, repo.List("a1", "reading_1"))
	assert.Len(t, repo.List("a1", "reading_2"), 1)

	require.True(t, repo.ClearAttempt("a1"))
	assert.Empty(t, repo.List("a1", "reading_2"))
}
