// Package client talks to the remote detection and effect services.
//
// Both contracts are synchronous JSON request/response over HTTP. Transport
// failures and non-2xx answers are returned as errors wrapping ErrRemote.
// Malformed bodies are not errors: they degrade to an empty result so the
// processing loop keeps going.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andresmejia3/sentinel-live/internal/types"
	"go.uber.org/zap"
)

const (
	DetectPath = "/detect-faces"

	DefaultBaseURL = "http://127.0.0.1:8080"
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 32 << 20
)

// ErrRemote marks any transport or service failure.
var ErrRemote = errors.New("remote call failed")

// errMalformed is internal: callers turn it into an empty result.
var errMalformed = errors.New("malformed response")

// RemoteError describes a failed round trip.
type RemoteError struct {
	Endpoint   string
	StatusCode int // 0 when the request never got an answer
	Message    string
	Cause      error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Endpoint, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
}

func (e *RemoteError) Unwrap() error { return e.Cause }

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// Client calls the detection and effect endpoints of one service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	log     *zap.SugaredLogger
}

// New builds a client for baseURL. A zero timeout uses DefaultTimeout.
func New(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		log:     logger,
	}
}

// post sends body as JSON to path and decodes the answer into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &RemoteError{Endpoint: path, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &RemoteError{Endpoint: path, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &RemoteError{Endpoint: path, StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Check if it's a service error object (e.g. {"error": "..."})
		var errorResult types.ErrorResult
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &errorResult) == nil && errorResult.Error != "" {
			msg = errorResult.Error
		}
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return &RemoteError{Endpoint: path, StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w from %s: %v", errMalformed, path, err)
	}
	return nil
}
