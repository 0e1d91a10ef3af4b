package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"IELTS-Exam-Runtime/internal/client"
	"IELTS-Exam-Runtime/internal/service"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrNoSession, http.StatusNotFound},
		{fmt.Errorf("select: %w", service.ErrUnknownPart), http.StatusNotFound},
		{service.ErrBusy, http.StatusConflict},
		{fmt.Errorf("advance from reading: %w", service.ErrStaleTransition), http.StatusConflict},
		{service.ErrDialogPending, http.StatusConflict},
		{fmt.Errorf("GET /x: %w", client.ErrSessionExpired), http.StatusUnauthorized},
		{fmt.Errorf("GET /x: %w: dial tcp", client.ErrOffline), http.StatusServiceUnavailable},
		{&client.ValidationError{Op: "POST /answers/", Message: "bad"}, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
