package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"IELTS-Exam-Runtime/internal/event"
	"IELTS-Exam-Runtime/internal/metrics"
	"IELTS-Exam-Runtime/internal/model"
	"IELTS-Exam-Runtime/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultRefreshPath = "/auth/token/refresh/"

// CredentialStore holds the bearer and refresh tokens between requests.
type CredentialStore interface {
	Credentials() (model.Credentials, bool)
	SetCredentials(creds model.Credentials)
	ClearCredentials()
}

// Handlers are installed once by the application shell and used deep inside the client.
type Handlers struct {
	Notifier event.Notifier
	OnLogout func()
}

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RefreshPath string
}

type ApiClient struct {
	BaseURL     string
	HTTPClient  *http.Client
	refreshPath string
	creds       CredentialStore
	handlers    Handlers
	refreshes   singleflight.Group
	logger      *zap.Logger
}

func NewApiClient(cfg Config, creds CredentialStore, handlers Handlers, logger *zap.Logger) *ApiClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = DefaultRefreshPath
	}
	if handlers.Notifier == nil {
		handlers.Notifier = event.NopNotifier{}
	}
	return &ApiClient{
		BaseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		refreshPath: cfg.RefreshPath,
		creds:       creds,
		handlers:    handlers,
		logger:      utils.OrNop(logger).Named("api_client"),
	}
}

type requestBuilder func(ctx context.Context) (*http.Request, error)

func (c *ApiClient) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.BaseURL + path
}

func jsonBuilder(method, url string, body any) (requestBuilder, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}
	return func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if payload != nil {
			r = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, r)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}, nil
}

// Do sends an authenticated JSON request and decodes a 2xx body into out.
func (c *ApiClient) Do(ctx context.Context, method, path string, body, out any) error {
	build, err := jsonBuilder(method, c.url(path), body)
	if err != nil {
		return err
	}
	return c.execute(ctx, method+" "+path, build, true, out)
}

// DoPublic sends a JSON request without credentials, used by login.
func (c *ApiClient) DoPublic(ctx context.Context, method, path string, body, out any) error {
	build, err := jsonBuilder(method, c.url(path), body)
	if err != nil {
		return err
	}
	return c.execute(ctx, method+" "+path, build, false, out)
}

type FilePart struct {
	Field    string
	FileName string
	Content  []byte
}

// DoMultipart posts form fields plus one file. The body is rebuilt on replay.
func (c *ApiClient) DoMultipart(ctx context.Context, path string, fields map[string]string, file FilePart, out any) error {
	url := c.url(path)
	build := func(ctx context.Context) (*http.Request, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for k, v := range fields {
			if err := w.WriteField(k, v); err != nil {
				return nil, err
			}
		}
		fw, err := w.CreateFormFile(file.Field, file.FileName)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(file.Content); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}
	return c.execute(ctx, "POST "+path, build, true, out)
}

func (c *ApiClient) execute(ctx context.Context, op string, build requestBuilder, authed bool, out any) error {
	resp, err := c.roundTrip(ctx, op, build, authed)
	if err != nil {
		return err
	}
	if authed && resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.logger.Info("access token rejected, refreshing", zap.String("op", op))
		if err := c.refresh(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		resp, err = c.roundTrip(ctx, op, build, authed)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			metrics.BackendRequests.WithLabelValues(resp.Request.Method, "unauthorized").Inc()
			return fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
	}
	defer resp.Body.Close()
	return c.decode(op, resp, out)
}

func (c *ApiClient) roundTrip(ctx context.Context, op string, build requestBuilder, authed bool) (*http.Response, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if authed && c.creds != nil {
		if creds, ok := c.creds.Credentials(); ok && creds.Access != "" {
			req.Header.Set("Authorization", "Bearer "+creds.Access)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", op, ctxErr)
		}
		metrics.BackendRequests.WithLabelValues(req.Method, "offline").Inc()
		c.logger.Warn("request did not reach the backend", zap.String("op", op), zap.Error(err))
		c.handlers.Notifier.Notify(event.NewNotice(event.KindOffline, event.LevelWarning,
			"Connection lost. Your work is kept and will be saved when the connection returns."))
		return nil, fmt.Errorf("%s: %w: %v", op, ErrOffline, err)
	}
	return resp, nil
}

func (c *ApiClient) decode(op string, resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Op: op, Status: resp.StatusCode, Message: errorText(body)}
		if isServerFailure(resp.StatusCode) {
			metrics.BackendRequests.WithLabelValues(resp.Request.Method, "server_unavailable").Inc()
			c.logger.Warn("backend unavailable", zap.String("op", op), zap.Int("status", resp.StatusCode))
			c.handlers.Notifier.Notify(event.NewNotice(event.KindServerUnavailable, event.LevelWarning,
				"The exam server is temporarily unavailable. Please wait a moment."))
		} else {
			metrics.BackendRequests.WithLabelValues(resp.Request.Method, "rejected").Inc()
		}
		return apiErr
	}

	metrics.BackendRequests.WithLabelValues(resp.Request.Method, metrics.ResultOK).Inc()
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("response is not the expected JSON", zap.String("op", op), zap.Int("size", len(body)), zap.Error(err))
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func errorText(body []byte) string {
	var e model.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Text() != "" {
		return e.Text()
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// refresh joins an in-flight refresh instead of starting a parallel one.
func (c *ApiClient) refresh(ctx context.Context) error {
	ch := c.refreshes.DoChan("refresh", func() (any, error) {
		return nil, c.doRefresh()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ApiClient) doRefresh() error {
	if c.creds == nil {
		return ErrNoCredentials
	}
	creds, ok := c.creds.Credentials()
	if !ok || creds.Refresh == "" {
		return ErrNoCredentials
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.HTTPClient.Timeout)
	defer cancel()

	build, err := jsonBuilder(http.MethodPost, c.url(c.refreshPath), map[string]string{"refresh": creds.Refresh})
	if err != nil {
		return err
	}
	resp, err := c.roundTrip(ctx, "refresh", build, false)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("offline").Inc()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		c.logger.Warn("refresh token rejected, logging out")
		c.logout()
		return ErrSessionExpired
	}

	var out refreshResponse
	if err := c.decode("refresh", resp, &out); err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.ResultFailed).Inc()
		return err
	}
	if out.Access == "" {
		metrics.TokenRefreshes.WithLabelValues(metrics.ResultFailed).Inc()
		return errors.New("refresh: response carried no access token")
	}
	if out.Refresh == "" {
		out.Refresh = creds.Refresh
	}
	c.creds.SetCredentials(model.Credentials{Access: out.Access, Refresh: out.Refresh})
	metrics.TokenRefreshes.WithLabelValues(metrics.ResultOK).Inc()
	return nil
}

func (c *ApiClient) logout() {
	if c.creds != nil {
		c.creds.ClearCredentials()
	}
	c.handlers.Notifier.Notify(event.NewNotice(event.KindLoggedOut, event.LevelError,
		"Your session has expired. Please sign in again."))
	if c.handlers.OnLogout != nil {
		c.handlers.OnLogout()
	}
}

// Logout clears credentials and runs the logout handler.
func (c *ApiClient) Logout() {
	c.logout()
}
