package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type playRecorder struct {
	mu    sync.Mutex
	plays []string
}

func (p *playRecorder) Play(src string, _ float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays = append(p.plays, src)
	return nil
}

func (p *playRecorder) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.plays...)
}

func listeningSection() *model.SectionData {
	mcq := model.TestHead{ID: 9, QuestionType: model.TypeMCQ, Questions: []model.Question{{ID: 21}, {ID: 22}}}
	return &model.SectionData{
		NextSectionName: strPtr(model.SectionReading),
		Parts: []model.ListeningPart{
			{ID: 1, PartNumber: 1, AudioURL: "/media/p1.mp3", TestHeads: []model.TestHead{mcq}},
			{ID: 2, PartNumber: 2, AudioURL: "/media/p2.mp3"},
			{ID: 3, PartNumber: 3},
			{ID: 4, PartNumber: 4, AudioURL: "/media/p4.mp3"},
		},
	}
}

func newListeningFixture(t *testing.T) (*Session, *repository.ListeningProgressRepository, *fakeGateway) {
	t.Helper()
	g := newFakeGateway()
	g.sections[model.SectionListening] = listeningSection()
	s := newTestSession(t, g, model.SectionListening, Options{})
	require.NoError(t, s.LoadSectionData(context.Background()))
	progress := repository.NewListeningProgressRepository(repository.NewStore(repository.NewMemoryBackend(), nil))
	return s, progress, g
}

func TestListeningController_EndedAudioSkipsPartWithoutAudio(t *testing.T) {
	s, progress, _ := newListeningFixture(t)
	player := &playRecorder{}
	c := NewListeningController(s, progress, nil, player, ListeningConfig{AutoplayDelay: 10 * time.Millisecond}, nil)
	_, err := c.Mount()
	require.NoError(t, err)
	_, err = c.SelectPart(2)
	require.NoError(t, err)

	c.OnAudioEnded(2)
	require.Eventually(t, func() bool { return c.View().ActivePart == 3 }, time.Second, 2*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, player.all(), "part 3 has no audio to start")

	palette := c.Palette()
	require.Len(t, palette, 4)
	assert.True(t, palette[2].Navigable)
	assert.False(t, palette[2].HasAudio)
	assert.True(t, palette[2].Active)

	c.OnAudioEnded(3)
	require.Eventually(t, func() bool { return len(player.all()) == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, []string{"/media/p4.mp3"}, player.all())
}

func TestListeningController_RestoresProgressOnMount(t *testing.T) {
	s, progress, _ := newListeningFixture(t)
	first := NewListeningController(s, progress, nil, nil, ListeningConfig{}, nil)
	_, err := first.Mount()
	require.NoError(t, err)
	_, err = first.SelectPart(2)
	require.NoError(t, err)
	first.UpdatePlayback(2, 95.5)
	first.Unmount()

	second := NewListeningController(s, progress, nil, nil, ListeningConfig{}, nil)
	view, err := second.Mount()
	require.NoError(t, err)
	assert.Equal(t, 2, view.ActivePart)
	assert.Equal(t, 95.5, view.AudioTimes[2])
	assert.Equal(t, "/media/p2.mp3", view.AudioSrc)
}

func TestListeningController_SavesPlaybackOnInterval(t *testing.T) {
	s, progress, _ := newListeningFixture(t)
	c := NewListeningController(s, progress, nil, nil, ListeningConfig{SaveInterval: 2 * time.Second}, nil)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	_, err := c.Mount()
	require.NoError(t, err)

	c.UpdatePlayback(1, 1)
	saved, _ := progress.Load("7")
	assert.Equal(t, 1.0, saved.AudioTimes[1], "first update saves")

	now = now.Add(500 * time.Millisecond)
	c.UpdatePlayback(1, 1.5)
	saved, _ = progress.Load("7")
	assert.Equal(t, 1.0, saved.AudioTimes[1], "inside the interval nothing is written")

	now = now.Add(2 * time.Second)
	c.UpdatePlayback(1, 3.5)
	saved, _ = progress.Load("7")
	assert.Equal(t, 3.5, saved.AudioTimes[1])
}

func TestListeningController_ChoiceAnswersSaveImmediately(t *testing.T) {
	s, progress, g := newListeningFixture(t)
	c := NewListeningController(s, progress, nil, nil, ListeningConfig{}, nil)
	_, err := c.Mount()
	require.NoError(t, err)

	data, _ := s.SectionData()
	head := data.Parts[0].TestHeads[0]
	c.Answer(head, 21, "C")

	require.Eventually(t, func() bool { return len(g.answersFor(21)) == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, model.Progress{Answered: 1, Total: 2}, c.Palette()[0].Progress)
}

func TestListeningController_PrefersPreloadedBlob(t *testing.T) {
	s, progress, _ := newListeningFixture(t)
	data, _ := s.SectionData()
	pre := NewAudioPreloader(newCountingFetcher(), NewBlobRegistry(), nil)
	pre.Preload(context.Background(), data.Parts)

	c := NewListeningController(s, progress, pre, nil, ListeningConfig{}, nil)
	view, err := c.Mount()
	require.NoError(t, err)
	assert.Contains(t, view.AudioSrc, "blob:")
}

func TestListeningController_RejectsOtherSections(t *testing.T) {
	g := newFakeGateway()
	g.sections[model.SectionReading] = readingData(nil, nil)
	s := newTestSession(t, g, model.SectionReading, Options{})
	require.NoError(t, s.LoadSectionData(context.Background()))

	c := NewListeningController(s, nil, nil, nil, ListeningConfig{}, nil)
	_, err := c.Mount()
	assert.ErrorIs(t, err, ErrNotListening)
}

func TestListeningController_LeavingSectionStopsScheduledAutoplay(t *testing.T) {
	s, progress, g := newListeningFixture(t)
	g.sections[model.SectionReading] = readingData(nil, strPtr(model.SectionWriting))
	g.nextResults = []*model.NextSectionResult{{Success: true, CurrentSection: model.SectionReading}}

	player := &playRecorder{}
	c := NewListeningController(s, progress, nil, player, ListeningConfig{AutoplayDelay: 100 * time.Millisecond}, nil)
	s.OnSectionExit(c.Detach)
	_, err := c.Mount()
	require.NoError(t, err)

	c.OnAudioEnded(1)
	require.NoError(t, s.HandleNextSection(context.Background(), true))
	require.Equal(t, model.SectionReading, s.Snapshot().Section)

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, player.all(), "no audio starts after the section is left")
	assert.Equal(t, 1, c.View().ActivePart)
	_, saved := progress.Load("7")
	assert.False(t, saved)

	c.UpdatePlayback(1, 30)
	c.Unmount()
	_, saved = progress.Load("7")
	assert.False(t, saved, "a detached controller writes nothing")
}
