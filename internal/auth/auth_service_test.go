package auth

import (
	"context"
	"errors"
	"testing"

	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLoginGateway struct {
	mock.Mock
}

func (m *MockLoginGateway) Login(ctx context.Context, username, password string) (*model.Credentials, error) {
	args := m.Called(ctx, username, password)
	if c, ok := args.Get(0).(*model.Credentials); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

type fakeLogouter struct {
	tokens *TokenStore
	calls  int
}

func (f *fakeLogouter) Logout() {
	f.calls++
	f.tokens.ClearCredentials()
}

func TestTokenStore_SurvivesReload(t *testing.T) {
	store := repository.NewStore(repository.NewMemoryBackend(), nil)

	first := NewTokenStore(store)
	_, ok := first.Credentials()
	assert.False(t, ok)
	first.SetCredentials(model.Credentials{Access: "a", Refresh: "r"})

	second := NewTokenStore(store)
	creds, ok := second.Credentials()
	require.True(t, ok)
	assert.Equal(t, "a", creds.Access)

	second.ClearCredentials()
	_, ok = NewTokenStore(store).Credentials()
	assert.False(t, ok)
}

func TestAuthService_Login(t *testing.T) {
	tokens := NewTokenStore(repository.NewStore(repository.NewMemoryBackend(), nil))
	gw := new(MockLoginGateway)
	gw.On("Login", mock.Anything, "candidate", "secret").Return(&model.Credentials{Access: "acc", Refresh: "ref"}, nil)
	gw.On("Login", mock.Anything, "candidate", "wrong").Return(nil, errors.New("401"))
	logout := &fakeLogouter{tokens: tokens}

	svc := NewAuthService(gw, tokens, logout, nil)

	assert.ErrorIs(t, svc.Login(context.Background(), " ", "x"), ErrMissingCredentials)
	assert.Error(t, svc.Login(context.Background(), "candidate", "wrong"))
	assert.False(t, svc.Authenticated())

	require.NoError(t, svc.Login(context.Background(), " candidate ", "secret"))
	assert.True(t, svc.Authenticated())

	svc.Logout()
	assert.False(t, svc.Authenticated())
	assert.Equal(t, 1, logout.calls)
	gw.AssertExpectations(t)
}
