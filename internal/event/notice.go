package event

import "time"

type Kind string

const (
	KindOffline           Kind = "offline"
	KindServerUnavailable Kind = "server_unavailable"
	KindLoggedOut         Kind = "logged_out"
	KindAutosaveFailed    Kind = "autosave_failed"
	KindUploadFailed      Kind = "upload_failed"
	KindSessionError      Kind = "session_error"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a non-blocking message for the candidate's notification area.
type Notice struct {
	Kind      Kind      `json:"kind"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	AttemptID string    `json:"attempt_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Time      time.Time `json:"time"`
}

func NewNotice(kind Kind, level Level, message string) Notice {
	return Notice{Kind: kind, Level: level, Message: message, Time: time.Now()}
}

// Notifier is injected wherever a component needs to tell the candidate
// something without blocking.
type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type NopNotifier struct{}

func (NopNotifier) Notify(Notice) {}
