package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/repository"
	"IELTS-Exam-Runtime/internal/utils"

	"go.uber.org/zap"
)

const credentialsKey = "auth_tokens"

var ErrMissingCredentials = errors.New("username and password are required")

// TokenStore keeps credentials in memory and mirrors them to local storage
// so a reload does not log the candidate out.
type TokenStore struct {
	store  *repository.Store
	mu     sync.RWMutex
	creds  model.Credentials
	loaded bool
}

func NewTokenStore(store *repository.Store) *TokenStore {
	t := &TokenStore{store: store}
	var creds model.Credentials
	if store.Get(credentialsKey, &creds) && creds.Access != "" {
		t.creds, t.loaded = creds, true
	}
	return t
}

func (t *TokenStore) Credentials() (model.Credentials, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.creds, t.loaded
}

func (t *TokenStore) SetCredentials(creds model.Credentials) {
	t.mu.Lock()
	t.creds, t.loaded = creds, true
	t.mu.Unlock()
	t.store.Set(credentialsKey, creds)
}

func (t *TokenStore) ClearCredentials() {
	t.mu.Lock()
	t.creds, t.loaded = model.Credentials{}, false
	t.mu.Unlock()
	t.store.Remove(credentialsKey)
}

type LoginGateway interface {
	Login(ctx context.Context, username, password string) (*model.Credentials, error)
}

type Logouter interface {
	Logout()
}

type AuthService struct {
	gateway LoginGateway
	tokens  *TokenStore
	client  Logouter
	logger  *zap.Logger
}

func NewAuthService(gateway LoginGateway, tokens *TokenStore, client Logouter, logger *zap.Logger) *AuthService {
	return &AuthService{
		gateway: gateway,
		tokens:  tokens,
		client:  client,
		logger:  utils.OrNop(logger).Named("auth"),
	}
}

func (s *AuthService) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrMissingCredentials
	}
	creds, err := s.gateway.Login(ctx, username, password)
	if err != nil {
		s.logger.Warn("login failed", zap.String("username", username), zap.Error(err))
		return fmt.Errorf("sign in: %w", err)
	}
	s.tokens.SetCredentials(*creds)
	s.logger.Info("signed in", zap.String("username", username))
	return nil
}

func (s *AuthService) Logout() {
	s.client.Logout()
}

func (s *AuthService) Authenticated() bool {
	_, ok := s.tokens.Credentials()
	return ok
}
