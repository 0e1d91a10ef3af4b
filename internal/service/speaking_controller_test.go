package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"IELTS-Exam-Runtime/internal/event"
	"IELTS-Exam-Runtime/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu     sync.Mutex
	starts int
}

func (r *fakeRecorder) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return nil
}

func (r *fakeRecorder) Stop() ([]byte, error) {
	return []byte("OggS"), nil
}

type promptRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (p *promptRecorder) PlayQuestion(_ context.Context, q model.SpeakingQuestion) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, q.Key)
	return nil
}

type flakyUploader struct {
	mu       sync.Mutex
	failKeys map[string]bool
	uploaded []string
}

func (u *flakyUploader) SubmitSpeaking(_ context.Context, key, fileName string, audio []byte) (*model.SubmitResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failKeys[key] {
		return nil, errors.New("upload timed out")
	}
	u.uploaded = append(u.uploaded, fileName)
	return &model.SubmitResult{Success: true}, nil
}

type noticeSink struct {
	mu      sync.Mutex
	notices []event.Notice
}

func (n *noticeSink) Notify(notice event.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func speakingTopics(responseTime *int) []model.SpeakingTopic {
	return []model.SpeakingTopic{
		{ID: 2, PartNumber: 2, Questions: []model.SpeakingQuestion{{Key: "p2q1", ResponseTime: responseTime}}},
		{ID: 1, PartNumber: 1, Questions: []model.SpeakingQuestion{
			{Key: "p1q1", ResponseTime: responseTime},
			{Key: "p1q2", ResponseTime: responseTime},
		}},
	}
}

func TestSpeakingController_UploadFailureAdvancesAndNotifies(t *testing.T) {
	prompts := &promptRecorder{}
	uploader := &flakyUploader{failKeys: map[string]bool{"p1q2": true}}
	notices := &noticeSink{}
	c := NewSpeakingController("7", uploader, prompts, &fakeRecorder{}, notices,
		SpeakingConfig{CountdownSeconds: 1, TimeUnit: 2 * time.Millisecond}, nil)

	require.NoError(t, c.Run(context.Background(), speakingTopics(intPtr(1))))

	st := c.Status()
	assert.Equal(t, SpeakingCompleted, st.State)
	assert.Equal(t, []string{"p1q1", "p1q2", "p2q1"}, prompts.keys, "questions run in part order")
	assert.Equal(t, []string{"p1q1", "p2q1"}, st.Submitted)
	assert.Equal(t, []string{"p1q2"}, st.FailedUploads)
	assert.Equal(t, []string{"7_p1q1.webm", "7_p2q1.webm"}, uploader.uploaded)

	require.Len(t, notices.notices, 1)
	assert.Equal(t, event.KindUploadFailed, notices.notices[0].Kind)
	assert.Equal(t, "p1q2", notices.notices[0].Subject)
}

func TestSpeakingController_StopRecordingEndsAnswerEarly(t *testing.T) {
	c := NewSpeakingController("7", &flakyUploader{}, nil, &fakeRecorder{}, nil,
		SpeakingConfig{CountdownSeconds: 1, TimeUnit: time.Millisecond}, nil)
	topics := []model.SpeakingTopic{{PartNumber: 1, Questions: []model.SpeakingQuestion{{Key: "p1q1"}}}}

	assert.ErrorIs(t, c.StopRecording(), ErrNotRecording)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), topics) }()

	require.Eventually(t, func() bool { return c.Status().State == SpeakingRecording }, time.Second, time.Millisecond)
	assert.ErrorIs(t, c.Run(context.Background(), topics), ErrBusy)
	require.NoError(t, c.StopRecording())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("recording without a time limit did not stop")
	}
	assert.Equal(t, []string{"p1q1"}, c.Status().Submitted)
}

func TestSpeakingController_ContextEndsRun(t *testing.T) {
	c := NewSpeakingController("7", &flakyUploader{}, nil, &fakeRecorder{}, nil,
		SpeakingConfig{CountdownSeconds: 1, TimeUnit: time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.Run(ctx, []model.SpeakingTopic{{PartNumber: 1, Questions: []model.SpeakingQuestion{{Key: "p1q1"}}}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
