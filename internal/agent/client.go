// Package agent is the headless exam client. It speaks the proctoring API over
// HTTP and WebSocket and adapts it to the interfaces of package proctor.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/alert"
	"github.com/stemsi/exstem-proctor/internal/model"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

var ErrNotLoggedIn = errors.New("agent is not logged in")

// APIError is a non-2xx answer of the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("api error %d %s", e.Status, e.Code)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the proctoring API as one student.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for the API rooted at baseURL, e.g. http://localhost:8080.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "api_client").Logger(),
	}
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login authenticates and keeps the token for every later call.
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	var out model.LoginResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()

	c.log.Info().Str("email", email).Msg("Logged in")
	return out.User, nil
}

// Logout invalidates the current token on the server.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return nil
}

// GetTest fetches the paper of one assigned test.
func (c *Client) GetTest(ctx context.Context, testID uuid.UUID) (*model.StudentPaper, error) {
	var out struct {
		Test *model.StudentPaper `json:"test"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/student/tests/"+testID.String(), nil, &out); err != nil {
		return nil, err
	}
	return out.Test, nil
}

// OpenSession starts a server-side proctoring session for testID.
func (c *Client) OpenSession(ctx context.Context, testID uuid.UUID) (*model.ProctorSession, error) {
	var out struct {
		Session *model.ProctorSession `json:"session"`
	}
	path := fmt.Sprintf("/api/v1/student/tests/%s/proctor-sessions", testID)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// CloseSession ends the proctoring session. Closing an expired session is not an error.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/api/v1/student/proctor-sessions/"+url.PathEscape(sessionID), nil, nil)
	if IsCode(err, "SESSION_NOT_FOUND") {
		return nil
	}
	return err
}

// DetectFaces uploads one frame as multipart field "image".
func (c *Client) DetectFaces(ctx context.Context, sessionID string, frame []byte) (*model.FrameResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	var out model.FrameResult
	path := fmt.Sprintf("/api/v1/student/proctor-sessions/%s/frames", url.PathEscape(sessionID))
	if err := c.do(ctx, http.MethodPost, path, &body, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportViolation records an escalated warning against the session.
func (c *Client) ReportViolation(ctx context.Context, sessionID string, req model.ViolationReportRequest) error {
	path := fmt.Sprintf("/api/v1/student/proctor-sessions/%s/violations", url.PathEscape(sessionID))
	return c.doJSON(ctx, http.MethodPost, path, req, nil)
}

// Receipt is the server's acknowledgement of a submission.
type Receipt struct {
	ID          uuid.UUID `json:"id"`
	TestID      uuid.UUID `json:"test_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Forced      bool      `json:"forced"`
}

// Submit sends the attempt.
func (c *Client) Submit(ctx context.Context, testID uuid.UUID, req model.SubmitTestRequest) (*Receipt, error) {
	var out struct {
		Submission *Receipt `json:"submission"`
	}
	path := fmt.Sprintf("/api/v1/student/tests/%s/submit", testID)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return out.Submission, nil
}

// StreamAlerts subscribes to the session's alert socket and calls fn for every
// alert until ctx is cancelled or the server closes the connection.
func (c *Client) StreamAlerts(ctx context.Context, sessionID string, fn func(alert.Alert)) error {
	token := c.Token()
	if token == "" {
		return ErrNotLoggedIn
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = fmt.Sprintf("/ws/v1/student/proctor-sessions/%s/alerts", url.PathEscape(sessionID))
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode, Code: "WS_HANDSHAKE", Message: err.Error()}
		}
		return fmt.Errorf("dial alert stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var msg struct {
			Event ws.Event    `json:"event"`
			Alert alert.Alert `json:"alert"`
			Error string      `json:"error"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read alert stream: %w", err)
		}

		switch msg.Event {
		case ws.EventAlert:
			fn(msg.Alert)
		case ws.EventError:
			c.log.Warn().Str("error", msg.Error).Msg("Alert stream error event")
		case ws.EventConnected:
			c.log.Debug().Str("session_id", sessionID).Msg("Alert stream connected")
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 300 || env.Error != nil {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
