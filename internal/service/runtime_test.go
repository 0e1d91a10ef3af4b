package service

import (
	"context"
	"testing"
	"time"

	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRuntime(t *testing.T, g *fakeGateway) (*Runtime, *repository.ListeningProgressRepository) {
	t.Helper()
	store := repository.NewStore(repository.NewMemoryBackend(), nil)
	progress := repository.NewListeningProgressRepository(store)
	rt := NewRuntime(g, newCountingFetcher(), NewBlobRegistry(), NewDialogBroker(), nil,
		repository.NewHighlightRepository(store), progress,
		RuntimeConfig{AnswerDebounce: 10 * time.Millisecond, SpeakingMaxPrompt: time.Minute}, nil)
	t.Cleanup(func() { rt.CloseSession() })
	return rt, progress
}

func TestRuntime_SubmittedListeningLeavesNoProgress(t *testing.T) {
	tests := []struct {
		name  string
		leave func(t *testing.T, rt *Runtime, a *ActiveSession)
	}{
		{name: "submit test", leave: func(t *testing.T, _ *Runtime, a *ActiveSession) {
			require.NoError(t, a.HandleSubmitTest(context.Background()))
		}},
		{name: "last section confirmed", leave: func(t *testing.T, rt *Runtime, a *ActiveSession) {
			done := make(chan error, 1)
			go func() { done <- a.HandleNextSection(context.Background(), false) }()
			require.Eventually(t, func() bool {
				_, open := rt.Dialogs().Pending()
				return open
			}, waitFor, time.Millisecond)
			require.NoError(t, rt.Dialogs().Resolve(true))
			require.NoError(t, <-done)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newFakeGateway()
			data := listeningSection()
			data.NextSectionName = nil
			g.sections[model.SectionListening] = data
			rt, progress := newTestRuntime(t, g)

			a := rt.Open("7", model.SectionListening)
			require.NoError(t, a.LoadSectionData(context.Background()))
			require.NoError(t, a.MountSection())
			_, err := a.Listening.SelectPart(2)
			require.NoError(t, err)
			a.Listening.UpdatePlayback(2, 42)
			_, saved := progress.Load("7")
			require.True(t, saved)

			tt.leave(t, rt, a)
			require.Equal(t, PhaseDone, a.Snapshot().Phase)
			a.Listening.UpdatePlayback(2, 50)
			require.True(t, rt.CloseSession())

			_, saved = progress.Load("7")
			assert.False(t, saved, "closing after submit must not restore listening progress")
		})
	}
}

func TestRuntime_CloseStopsSpeakingRun(t *testing.T) {
	g := newFakeGateway()
	g.sections[model.SectionSpeaking] = &model.SectionData{Topics: speakingTopics(nil)}
	rt, _ := newTestRuntime(t, g)
	core, logs := observer.New(zap.WarnLevel)

	a := rt.Open("7", model.SectionSpeaking)
	require.NoError(t, a.LoadSectionData(context.Background()))
	require.NoError(t, a.RunSpeaking(zap.New(core)))
	require.Eventually(t, func() bool { return a.Speaking.Status().State == SpeakingPlayingQuestion }, waitFor, time.Millisecond)

	require.True(t, rt.CloseSession())
	assert.ErrorIs(t, a.ctx.Err(), context.Canceled)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("speaking run ended early").Len() == 1
	}, waitFor, 5*time.Millisecond, "the run ends with the session")

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Empty(t, g.speaking)
}
