package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"IELTS-Exam-Runtime/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func newWritingFixture(t *testing.T, debounce time.Duration) (*WritingController, *fakeGateway) {
	t.Helper()
	g := newFakeGateway()
	g.sections[model.SectionWriting] = writingData(nil)
	s := newTestSession(t, g, model.SectionWriting, Options{})
	require.NoError(t, s.LoadSectionData(context.Background()))

	c := NewWritingController(s, debounce, nil)
	data, _ := s.SectionData()
	c.Mount(data.Tasks)
	t.Cleanup(c.Unmount)
	return c, g
}

func (g *fakeGateway) writingTexts(taskID int) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, w := range g.writing {
		if w.TaskID == taskID {
			out = append(out, w.AnswerText)
		}
	}
	return out
}

func TestWritingController_MinimumWordGate(t *testing.T) {
	c, _ := newWritingFixture(t, time.Hour)

	st, err := c.SetText(11, words(149))
	require.NoError(t, err)
	assert.Equal(t, 149, st.Words)
	assert.Equal(t, 150, st.MinWords)
	assert.False(t, st.MeetsMinimum)

	st, err = c.SetText(11, words(150))
	require.NoError(t, err)
	assert.True(t, st.MeetsMinimum)

	st, err = c.Status(12)
	require.NoError(t, err)
	assert.Equal(t, 250, st.MinWords)
}

func TestWritingController_SavesOnlyAfterPause(t *testing.T) {
	c, g := newWritingFixture(t, 40*time.Millisecond)

	for i := 1; i <= 5; i++ {
		_, err := c.SetText(11, words(i))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	assert.Empty(t, g.writingTexts(11), "a continuous typist never triggers a save")

	require.Eventually(t, func() bool { return len(g.writingTexts(11)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{words(5)}, g.writingTexts(11))

	st, _ := c.Status(11)
	assert.True(t, st.Saved)
}

func TestWritingController_SwitchingTaskFlushes(t *testing.T) {
	c, g := newWritingFixture(t, time.Hour)

	_, err := c.SetText(11, "The chart shows")
	require.NoError(t, err)
	require.NoError(t, c.SelectTask(12))

	assert.Equal(t, []string{"The chart shows"}, g.writingTexts(11))
	assert.Equal(t, 12, c.Active())
	assert.ErrorIs(t, c.SelectTask(99), ErrUnknownPart)
}

func TestWritingController_SeedsFromServerAnswer(t *testing.T) {
	c := NewWritingController(nil, time.Hour, nil)
	c.Mount([]model.WritingTask{{ID: 5, TaskNumber: 2, MinWords: 10, UserAnswer: strPtr("already saved text")}})

	assert.Equal(t, "already saved text", c.Text(5))
	st, err := c.Status(5)
	require.NoError(t, err)
	assert.True(t, st.Saved)
	assert.Equal(t, 10, st.MinWords)
}
