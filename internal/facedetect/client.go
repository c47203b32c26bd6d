// Package facedetect calls the external face-detection capability.
//
// A failed call is always reported as an error wrapping ErrUnavailable or
// ErrNotConfigured, never as a zero face count.
package facedetect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

var (
	ErrNotConfigured = errors.New("face detector is not configured")
	ErrUnavailable   = errors.New("face detector unavailable")
)

// Result is the detector's answer for a single frame.
type Result struct {
	FaceCount int    `json:"faceCount"`
	Message   string `json:"message"`
}

// Client posts frames to the detector as multipart field "image".
type Client struct {
	httpClient *http.Client
	url        string
}

// NewClient creates a detector client. An empty url yields a client whose
// every call fails with ErrNotConfigured.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
}

// Configured reports whether a detector URL was provided.
func (c *Client) Configured() bool {
	return c.url != ""
}

// Detect submits one frame and returns the detected face count.
func (c *Client) Detect(ctx context.Context, frame []byte) (Result, error) {
	if c.url == "" {
		return Result{}, ErrNotConfigured
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "snapshot.jpg")
	if err != nil {
		return Result{}, fmt.Errorf("build form: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return Result{}, fmt.Errorf("build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded struct {
		FaceCount *int   `json:"faceCount"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.FaceCount == nil || *decoded.FaceCount < 0 {
		return Result{}, fmt.Errorf("%w: undecodable response", ErrUnavailable)
	}

	return Result{FaceCount: *decoded.FaceCount, Message: decoded.Message}, nil
}
