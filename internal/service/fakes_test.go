package service

import (
	"context"
	"errors"
	"sync"

	"IELTS-Exam-Runtime/internal/model"
)

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

type fakeGateway struct {
	mu          sync.Mutex
	sections    map[string]*model.SectionData
	loadErr     error
	answers     []model.AnswerSubmission
	answerErr   error
	nextResults []*model.NextSectionResult
	nextErr     error
	nextCalls   int
	submitErrs  []error
	submitCalls int
	writing     []model.WritingSubmission
	speaking    []model.SpeakingSubmission
	pingErr     error

	// answerHook runs before an answer is recorded, outside the lock.
	answerHook func(model.AnswerSubmission)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sections: make(map[string]*model.SectionData)}
}

func (g *fakeGateway) GetSectionData(_ context.Context, _ string, section string) (*model.SectionData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loadErr != nil {
		return nil, g.loadErr
	}
	data, ok := g.sections[section]
	if !ok {
		return nil, errors.New("no such section")
	}
	return data, nil
}

func (g *fakeGateway) SubmitAnswer(_ context.Context, _ string, sub model.AnswerSubmission) (*model.SubmitResult, error) {
	if g.answerHook != nil {
		g.answerHook(sub)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answers = append(g.answers, sub)
	if g.answerErr != nil {
		return nil, g.answerErr
	}
	return &model.SubmitResult{Success: true}, nil
}

func (g *fakeGateway) SubmitWriting(_ context.Context, _ string, sub model.WritingSubmission) (*model.WritingResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writing = append(g.writing, sub)
	return &model.WritingResult{Success: true}, nil
}

func (g *fakeGateway) SubmitSpeaking(_ context.Context, _ string, sub model.SpeakingSubmission) (*model.SubmitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.speaking = append(g.speaking, sub)
	return &model.SubmitResult{Success: true}, nil
}

func (g *fakeGateway) NextSection(_ context.Context, _ string) (*model.NextSectionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextCalls++
	if g.nextErr != nil {
		return nil, g.nextErr
	}
	if len(g.nextResults) == 0 {
		return nil, errors.New("unexpected advance")
	}
	res := g.nextResults[0]
	g.nextResults = g.nextResults[1:]
	return res, nil
}

func (g *fakeGateway) SubmitTest(_ context.Context, _ string) (*model.SubmitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls++
	if len(g.submitErrs) > 0 {
		err := g.submitErrs[0]
		g.submitErrs = g.submitErrs[1:]
		return nil, err
	}
	return &model.SubmitResult{Success: true}, nil
}

func (g *fakeGateway) Ping(context.Context) (*model.PingResult, error) {
	if g.pingErr != nil {
		return nil, g.pingErr
	}
	return &model.PingResult{Success: true}, nil
}

func (g *fakeGateway) answersFor(qid int) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, a := range g.answers {
		if a.QuestionID == qid {
			out = append(out, a.Answer)
		}
	}
	return out
}

func (g *fakeGateway) counts() (next, submit int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextCalls, g.submitCalls
}

type fakeCleaner struct {
	mu       sync.Mutex
	attempts []string
}

func (c *fakeCleaner) ClearAttempt(attemptID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, attemptID)
	return true
}

func (c *fakeCleaner) Clear(attemptID string) bool {
	return c.ClearAttempt(attemptID)
}

func (c *fakeCleaner) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.attempts...)
}

type navRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (n *navRecorder) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *navRecorder) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func readingHead(ids ...int) model.TestHead {
	head := model.TestHead{ID: 1, QuestionType: model.TypeSA}
	for _, id := range ids {
		head.Questions = append(head.Questions, model.Question{ID: id, Order: id})
	}
	return head
}

func readingData(remaining *int, next *string) *model.SectionData {
	return &model.SectionData{
		Attempt:         &model.ExamAttempt{ID: 7, CurrentSection: model.SectionReading, Status: model.AttemptInProgress},
		TimeRemaining:   remaining,
		NextSectionName: next,
		Passages: []model.ReadingPassage{
			{ID: 1, PassageNumber: 1, Text: "The estuary floods twice a day.", TestHeads: []model.TestHead{readingHead(1, 2, 3)}},
		},
	}
}

func writingData(next *string) *model.SectionData {
	return &model.SectionData{
		NextSectionName: next,
		Tasks: []model.WritingTask{
			{ID: 11, TaskNumber: 1, TaskType: "task1", Prompt: "Describe the chart."},
			{ID: 12, TaskNumber: 2, TaskType: "task2", Prompt: "Discuss both views."},
		},
	}
}
