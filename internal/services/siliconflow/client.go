// Package siliconflow is a client for the SiliconFlow speech recognition API.
package siliconflow

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
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.siliconflow.cn/v1"
	// DefaultModel is the speech recognition model used when none is configured.
	DefaultModel = "FunAudioLLM/SenseVoiceSmall"

	defaultTimeout         = 300 * time.Second
	defaultRetryMaxElapsed = time.Minute
	producerRevision       = "v1"
)

// Config captures the runtime settings for the transcription endpoint.
type Config struct {
	APIKey                 string
	BaseURL                string
	Model                  string
	TimeoutSeconds         int
	RetryMaxElapsedSeconds int
}

// Client uploads audio and returns recognized text.
type Client struct {
	cfg        Config
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBackOff overrides the retry schedule. The factory is called once per
// Transcribe call.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(c *Client) {
		if factory != nil {
			c.newBackOff = factory
		}
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	maxElapsed := defaultRetryMaxElapsed
	if cfg.RetryMaxElapsedSeconds > 0 {
		maxElapsed = time.Duration(cfg.RetryMaxElapsedSeconds) * time.Second
	}

	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 2 * time.Second
			bo.MaxInterval = 20 * time.Second
			bo.MaxElapsedTime = maxElapsed
			return bo
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Model returns the configured recognition model.
func (c *Client) Model() string { return c.cfg.Model }

// ProducerVersion identifies results produced by this client and model so
// cached transcripts from another model are not reused.
func (c *Client) ProducerVersion() string {
	return "siliconflow/" + c.cfg.Model + "/" + producerRevision
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("siliconflow: http %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

type transcriptionResponse struct {
	Text *string `json:"text"`
}

// Transcribe uploads audio read from r and returns the recognized text. A
// missing or empty text field yields "" with a nil error.
func (c *Client) Transcribe(ctx context.Context, r io.Reader, filename string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("siliconflow transcribe: api key required")
	}
	if r == nil {
		return "", errors.New("siliconflow transcribe: audio reader required")
	}
	if strings.TrimSpace(filename) == "" {
		filename = "audio.mp3"
	}
	audio, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("siliconflow transcribe: read audio: %w", err)
	}
	if len(audio) == 0 {
		return "", errors.New("siliconflow transcribe: audio is empty")
	}

	var text string
	operation := func() error {
		result, err := c.send(ctx, audio, filename)
		if err != nil {
			return classify(ctx, err)
		}
		text = result
		return nil
	}
	bo := backoff.WithContext(c.newBackOff(), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return "", fmt.Errorf("siliconflow transcribe: %w (last error: %v)", ctxErr, err)
		}
		return "", fmt.Errorf("siliconflow transcribe: %w", err)
	}
	return text, nil
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(err)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}
	var decodeErr *decodeError
	if errors.As(err, &decodeErr) {
		return backoff.Permanent(err)
	}
	// transport failure
	return err
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) send(ctx context.Context, audio []byte, filename string) (string, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "audio", "transcriptions")
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("build url: %w", err))
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.WriteField("model", c.cfg.Model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: snippet(string(payload))}
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", &decodeError{err: fmt.Errorf("%w (body: %s)", err, snippet(string(payload)))}
	}
	if parsed.Text == nil {
		return "", nil
	}
	return *parsed.Text, nil
}

func snippet(body string) string {
	clean := strings.Join(strings.Fields(body), " ")
	const limit = 200
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	if clean == "" {
		return "<empty>"
	}
	return clean
}
