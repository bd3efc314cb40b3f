package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/chatsync/internal/model/chat"
)

// DefaultMaxResponseSize bounds how much of a response body is read.
const DefaultMaxResponseSize int64 = 16 << 20

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "http://dummy-chat-server.tribechat.pro/api".
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	// Request timeouts belong here.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// RequestsPerSecond caps outgoing requests. Zero disables the limit.
	RequestsPerSecond float64
	// Burst is the limiter burst size. Defaults to 1 when a limit is set.
	Burst int
	// MaxResponseSize bounds response body reads. Zero means DefaultMaxResponseSize.
	MaxResponseSize int64
}

// Client is the HTTP implementation of Source.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	logger          *slog.Logger
	limiter         *rate.Limiter
	maxResponseSize int64
}

// NewClient creates a Client for the server at config.BaseURL.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("remote: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("remote: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	maxResponseSize := config.MaxResponseSize
	if maxResponseSize <= 0 {
		maxResponseSize = DefaultMaxResponseSize
	}

	return &Client{
		baseURL:         strings.TrimRight(config.BaseURL, "/"),
		httpClient:      httpClient,
		logger:          logger,
		limiter:         limiter,
		maxResponseSize: maxResponseSize,
	}, nil
}

// FetchSessionMarker calls GET /info.
func (c *Client) FetchSessionMarker(ctx context.Context) (chat.SessionMarker, error) {
	const op = "fetch session marker"
	var info infoJSON
	if err := c.getJSON(ctx, op, "/info", &info); err != nil {
		return "", err
	}
	if info.SessionUUID == "" {
		return "", &Error{Op: op, Kind: ErrUnavailable, Message: "response has no sessionUuid"}
	}
	return chat.SessionMarker(info.SessionUUID), nil
}

// FetchAllMessages calls GET /messages/all.
func (c *Client) FetchAllMessages(ctx context.Context) ([]chat.Message, error) {
	return c.fetchMessages(ctx, "fetch messages", "/messages/all")
}

// FetchAllParticipants calls GET /participants/all.
func (c *Client) FetchAllParticipants(ctx context.Context) ([]chat.Participant, error) {
	return c.fetchParticipants(ctx, "fetch participants", "/participants/all")
}

// FetchMessageUpdates calls GET /messages/updates/{sinceEpochMillis}.
func (c *Client) FetchMessageUpdates(ctx context.Context, since time.Time) ([]chat.Message, error) {
	return c.fetchMessages(ctx, "fetch message updates", "/messages/updates/"+epochMillis(since))
}

// FetchParticipantUpdates calls GET /participants/updates/{sinceEpochMillis}.
func (c *Client) FetchParticipantUpdates(ctx context.Context, since time.Time) ([]chat.Participant, error) {
	return c.fetchParticipants(ctx, "fetch participant updates", "/participants/updates/"+epochMillis(since))
}

// SubmitMessage calls POST /messages/new. The returned message carries the
// server-assigned id and timestamps.
func (c *Client) SubmitMessage(ctx context.Context, text string) (chat.Message, error) {
	const op = "submit message"
	body, err := c.doRequest(ctx, op, http.MethodPost, "/messages/new", newMessageJSON{Text: text})
	if err != nil {
		return chat.Message{}, err
	}

	var created messageJSON
	if err := json.Unmarshal(body, &created); err != nil {
		return chat.Message{}, &Error{Op: op, Kind: ErrUnavailable, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if created.UUID == "" {
		return chat.Message{}, &Error{Op: op, Kind: ErrUnavailable, Message: "response has no message uuid"}
	}
	return created.toModel(), nil
}

func (c *Client) fetchMessages(ctx context.Context, op, path string) ([]chat.Message, error) {
	var wire []messageJSON
	if err := c.getJSON(ctx, op, path, &wire); err != nil {
		return nil, err
	}
	messages := make([]chat.Message, 0, len(wire))
	for _, m := range wire {
		messages = append(messages, m.toModel())
	}
	return messages, nil
}

func (c *Client) fetchParticipants(ctx context.Context, op, path string) ([]chat.Participant, error) {
	var wire []participantJSON
	if err := c.getJSON(ctx, op, path, &wire); err != nil {
		return nil, err
	}
	participants := make([]chat.Participant, 0, len(wire))
	for _, p := range wire {
		participants = append(participants, p.toModel())
	}
	return participants, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	body, err := c.doRequest(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Op: op, Kind: ErrUnavailable, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// doRequest performs one HTTP request and returns the body of a 2xx response.
// Any other outcome is an *Error.
func (c *Client) doRequest(ctx context.Context, op, method, path string, requestBody any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Op: op, Kind: ErrUnavailable, Err: err}
		}
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("remote: %s: encoding request body: %w", op, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("remote: %s: creating request: %w", op, err)
	}
	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrUnavailable, Err: err}
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, c.maxResponseSize))
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrUnavailable, StatusCode: response.StatusCode, Err: fmt.Errorf("reading response body: %w", err)}
	}

	c.logger.Debug("remote request",
		"method", method,
		"path", path,
		"status", response.StatusCode,
		"bytes", len(responseBody),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	return nil, &Error{
		Op:         op,
		Kind:       kindForStatus(response.StatusCode),
		StatusCode: response.StatusCode,
		Message:    errorMessage(responseBody),
	}
}

// errorMessage extracts {"error": "..."} from an error body, falling back to
// the trimmed raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	message := strings.TrimSpace(string(body))
	if len(message) > 200 {
		message = message[:200]
	}
	return message
}

func epochMillis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}
