package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrDialogPending = errors.New("a confirmation dialog is already open")
	ErrNoDialog      = errors.New("no confirmation dialog is open")
)

type ConfirmRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	ConfirmText string `json:"confirm_text"`
	CancelText  string `json:"cancel_text"`
}

type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) (bool, error)
}

type ConfirmFunc func(ctx context.Context, req ConfirmRequest) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	return f(ctx, req)
}

// DialogBroker holds at most one pending confirmation until the UI resolves it.
type DialogBroker struct {
	mu       sync.Mutex
	pending  *ConfirmRequest
	answer   chan bool
	onChange func()
}

func NewDialogBroker() *DialogBroker {
	return &DialogBroker{}
}

// OnChange registers fn to run whenever a dialog opens or closes.
func (b *DialogBroker) OnChange(fn func()) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

func (b *DialogBroker) changed() {
	b.mu.Lock()
	fn := b.onChange
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (b *DialogBroker) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	b.mu.Lock()
	if b.pending != nil {
		b.mu.Unlock()
		return false, ErrDialogPending
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	answer := make(chan bool, 1)
	b.pending, b.answer = &req, answer
	b.mu.Unlock()
	b.changed()

	defer func() {
		b.mu.Lock()
		if b.pending != nil && b.pending.ID == req.ID {
			b.pending, b.answer = nil, nil
		}
		b.mu.Unlock()
		b.changed()
	}()

	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (b *DialogBroker) Pending() (ConfirmRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return ConfirmRequest{}, false
	}
	return *b.pending, true
}

// Resolve answers the open dialog. The request is discarded right after.
func (b *DialogBroker) Resolve(ok bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return ErrNoDialog
	}
	b.answer <- ok
	b.pending, b.answer = nil, nil
	return nil
}
