package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrOffline means the request never reached the backend.
	ErrOffline = errors.New("network unavailable")
	// ErrServerUnavailable covers 5xx answers; stored credentials are kept.
	ErrServerUnavailable = errors.New("server unavailable")
	// ErrUnauthorized is a 401 that survived one refresh and replay.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSessionExpired means the refresh token itself was rejected and the user was logged out.
	ErrSessionExpired = errors.New("session expired")
	ErrNoCredentials  = errors.New("no stored credentials")
)

type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrServerUnavailable && isServerFailure(e.Status)
}

// ValidationError is a well-formed 2xx response carrying an application-level failure.
type ValidationError struct {
	Op      string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return e.Op + ": request rejected"
	}
	return e.Op + ": " + e.Message
}

func isServerFailure(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
