package streamvideo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gofiber/fiber/v2/log"
)

const agentTokenTTL = time.Hour

type ConnectAgentRequest struct {
	CallType     string
	CallID       string
	AgentUserID  string
	OpenAIAPIKey string
}

// SessionUpdate configures the realtime model that speaks for the agent
type SessionUpdate struct {
	Instructions string `json:"instructions,omitempty"`
	Voice        string `json:"voice,omitempty"`
}

// RealtimeClient is a live connection that makes an AI agent a participant of a
// call. It stays open after the webhook that created it has returned and is
// closed through the Sessions registry when the call ends.
type RealtimeClient struct {
	callID    string
	conn      *websocket.Conn
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// ConnectAgent joins the agent user to the call and bridges it to the realtime
// model. The returned client is registered under the call id.
func (c *Client) ConnectAgent(ctx context.Context, req ConnectAgentRequest) (*RealtimeClient, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	openAIKey := req.OpenAIAPIKey
	if openAIKey == "" {
		openAIKey = c.cfg.OpenAIAPIKey
	}
	if openAIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}

	token, err := c.GenerateUserToken(req.AgentUserID, agentTokenTTL)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(c.realtimeURL() + "/video/connect_agent")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("api_key", c.cfg.APIKey)
	q.Set("call_type", req.CallType)
	q.Set("call_id", req.CallID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization":    []string{token},
			"Stream-Auth-Type": []string{"jwt"},
			"X-Openai-Api-Key": []string{openAIKey},
		},
	})
	if err != nil {
		return nil, err
	}

	rc := newRealtimeClient(req.CallID, conn, c.sessions.remove)
	c.sessions.Add(rc)
	log.Infof("[StreamVideo] Agent %s connected to call %s:%s", req.AgentUserID, req.CallType, req.CallID)
	return rc, nil
}

func (c *Client) realtimeURL() string {
	if c.cfg.RealtimeURL != "" {
		return strings.TrimRight(c.cfg.RealtimeURL, "/")
	}
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://")
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://")
	}
	return c.baseURL
}

func newRealtimeClient(callID string, conn *websocket.Conn, onDone func(*RealtimeClient)) *RealtimeClient {
	ctx, cancel := context.WithCancel(context.Background())
	rc := &RealtimeClient{
		callID: callID,
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go rc.readLoop(ctx, onDone)
	return rc
}

// CallID returns the call the agent is connected to
func (rc *RealtimeClient) CallID() string {
	return rc.callID
}

// UpdateSession sends a session.update message with the agent configuration
func (rc *RealtimeClient) UpdateSession(ctx context.Context, update SessionUpdate) error {
	return wsjson.Write(ctx, rc.conn, map[string]interface{}{
		"type":    "session.update",
		"session": update,
	})
}

// Done is closed once the connection has terminated
func (rc *RealtimeClient) Done() <-chan struct{} {
	return rc.done
}

func (rc *RealtimeClient) Close() {
	rc.closeOnce.Do(func() {
		_ = rc.conn.Close(websocket.StatusNormalClosure, "call ended")
		rc.cancel()
	})
}

func (rc *RealtimeClient) readLoop(ctx context.Context, onDone func(*RealtimeClient)) {
	defer func() {
		close(rc.done)
		if onDone != nil {
			onDone(rc)
		}
	}()

	for {
		_, data, err := rc.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				log.Warnf("[StreamVideo] Agent connection for call %s closed: %v", rc.callID, err)
			}
			return
		}

		var msg struct {
			Type  string          `json:"type"`
			Error json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "error" {
			log.Warnf("[StreamVideo] Realtime error on call %s: %s", rc.callID, string(msg.Error))
		}
	}
}

// Sessions tracks the live agent connection of each call
type Sessions struct {
	mu     sync.Mutex
	byCall map[string]*RealtimeClient
}

func NewSessions() *Sessions {
	return &Sessions{byCall: make(map[string]*RealtimeClient)}
}

// Add registers rc, closing any older connection for the same call
func (s *Sessions) Add(rc *RealtimeClient) {
	s.mu.Lock()
	old := s.byCall[rc.callID]
	s.byCall[rc.callID] = rc
	s.mu.Unlock()

	if old != nil && old != rc {
		old.Close()
	}
}

func (s *Sessions) Get(callID string) (*RealtimeClient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.byCall[callID]
	return rc, ok
}

// Close disconnects the agent of a call. It reports whether one was connected.
func (s *Sessions) Close(callID string) bool {
	s.mu.Lock()
	rc, ok := s.byCall[callID]
	delete(s.byCall, callID)
	s.mu.Unlock()

	if ok {
		rc.Close()
	}
	return ok
}

// CloseAll disconnects every agent, used on shutdown
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	all := make([]*RealtimeClient, 0, len(s.byCall))
	for _, rc := range s.byCall {
		all = append(all, rc)
	}
	s.byCall = make(map[string]*RealtimeClient)
	s.mu.Unlock()

	for _, rc := range all {
		rc.Close()
	}
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byCall)
}

// remove drops rc once its connection ended on its own
func (s *Sessions) remove(rc *RealtimeClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byCall[rc.callID] == rc {
		delete(s.byCall, rc.callID)
	}
}
