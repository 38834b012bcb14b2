package streamvideo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/ApexAgent/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

const defaultBaseURL = "https://video.stream-io-api.com/api/v2"

// ErrNotConfigured is returned when the API key or secret is missing
var ErrNotConfigured = errors.New("stream video api key/secret are not configured")

// APIError is a non-2xx answer from the platform
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stream video request failed: status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a platform 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Config struct {
	APIKey       string
	Secret       string
	BaseURL      string
	RealtimeURL  string
	OpenAIAPIKey string
	HTTPClient   *http.Client
}

func NewConfigFromEnv() Config {
	return Config{
		APIKey:       strings.TrimSpace(env.GetEnv("STREAM_VIDEO_API_KEY", "")),
		Secret:       strings.TrimSpace(env.GetEnv("STREAM_VIDEO_SECRET_KEY", "")),
		BaseURL:      strings.TrimSpace(env.GetEnv("STREAM_VIDEO_BASE_URL", defaultBaseURL)),
		RealtimeURL:  strings.TrimSpace(env.GetEnv("STREAM_VIDEO_REALTIME_URL", "")),
		OpenAIAPIKey: strings.TrimSpace(env.GetEnv("OPENAI_API_KEY", "")),
	}
}

// Client talks to the video platform's server-side REST API. It is safe for
// concurrent use and is meant to be created once per process.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	sessions   *Sessions
	now        func() time.Time
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: httpClient,
		sessions:   NewSessions(),
		now:        time.Now,
	}
}

// Sessions returns the registry of live agent connections
func (c *Client) Sessions() *Sessions {
	return c.sessions
}

func (c *Client) configured() error {
	if c.cfg.APIKey == "" || c.cfg.Secret == "" {
		return ErrNotConfigured
	}
	return nil
}

// CreateCall creates the call if it does not exist yet
func (c *Client) CreateCall(ctx context.Context, callType, callID string, req CreateCallRequest) (*Call, error) {
	var out callResponse
	body := map[string]interface{}{"data": req}
	if err := c.do(ctx, http.MethodPost, callPath(callType, callID), body, &out); err != nil {
		return nil, err
	}
	return &out.Call, nil
}

// UpsertUsers creates or replaces platform users
func (c *Client) UpsertUsers(ctx context.Context, users ...User) error {
	if len(users) == 0 {
		return nil
	}
	byID := make(map[string]User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return c.do(ctx, http.MethodPost, "/users", map[string]interface{}{"users": byID}, nil)
}

// EndCall ends the call for every participant and disconnects the agent.
// A call the platform no longer knows counts as ended.
func (c *Client) EndCall(ctx context.Context, callType, callID string) error {
	c.sessions.Close(callID)

	err := c.do(ctx, http.MethodPost, callPath(callType, callID)+"/mark_ended", map[string]interface{}{}, nil)
	if err != nil && IsNotFound(err) {
		log.Debugf("[StreamVideo] Call %s:%s already gone", callType, callID)
		return nil
	}
	return err
}

// DisconnectAgent closes the agent connection of a call, if any
func (c *Client) DisconnectAgent(callID string) {
	c.sessions.Close(callID)
}

// SessionParticipants lists who is currently in the call's active session
func (c *Client) SessionParticipants(ctx context.Context, callType, callID string) ([]Participant, error) {
	var out callResponse
	if err := c.do(ctx, http.MethodGet, callPath(callType, callID), nil, &out); err != nil {
		return nil, err
	}
	if out.Call.Session == nil {
		return nil, nil
	}
	return out.Call.Session.Participants, nil
}

func callPath(callType, callID string) string {
	return "/video/call/" + url.PathEscape(callType) + "/" + url.PathEscape(callID)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := c.configured(); err != nil {
		return err
	}
	token, err := c.serverToken()
	if err != nil {
		return err
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("api_key", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("stream-auth-type", "jwt")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
