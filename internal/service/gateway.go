package service

import (
	"context"

	"IELTS-Exam-Runtime/internal/model"
)

// SectionGateway is the backend surface the session drives.
type SectionGateway interface {
	GetSectionData(ctx context.Context, attemptID, section string) (*model.SectionData, error)
	SubmitAnswer(ctx context.Context, attemptID string, sub model.AnswerSubmission) (*model.SubmitResult, error)
	SubmitWriting(ctx context.Context, attemptID string, sub model.WritingSubmission) (*model.WritingResult, error)
	SubmitSpeaking(ctx context.Context, attemptID string, sub model.SpeakingSubmission) (*model.SubmitResult, error)
	NextSection(ctx context.Context, attemptID string) (*model.NextSectionResult, error)
	SubmitTest(ctx context.Context, attemptID string) (*model.SubmitResult, error)
	Ping(ctx context.Context) (*model.PingResult, error)
}

// Display is the fullscreen capability of whatever shell hosts the exam.
type Display interface {
	FullscreenSupported() bool
	RequestFullscreen() error
}

type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

type highlightCleaner interface {
	ClearAttempt(attemptID string) bool
}

type progressCleaner interface {
	Clear(attemptID string) bool
}
