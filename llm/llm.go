// Package llm provides text generation clients for Ollama and Gemini.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/chaosshowdown/mitsuha/config"
)

// Generator produces a single completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmpty is returned when a provider answers with no text.
var ErrEmpty = errors.New("empty completion")

// New returns the generator selected by cfg.Provider.
func New(ctx context.Context, cfg *config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(ctx, cfg)
	default:
		return NewOllama(cfg), nil
	}
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

// Ollama talks to the native Ollama chat endpoint (local or ollama.com).
type Ollama struct {
	host    string
	key     string
	model   string
	timeout time.Duration
}

func NewOllama(cfg *config.LLMConfig) *Ollama {
	return &Ollama{
		host:    strings.TrimRight(cfg.OllamaHost, "/"),
		key:     cfg.OllamaKey,
		model:   cfg.Model,
		timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	}
}

func (c *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	return c.Chat(ctx, []Message{{Role: "user", Content: prompt}})
}

func (c *Ollama) Chat(ctx context.Context, messages []Message) (string, error) {
	body := map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   false,
	}
	respBody, err := c.post(ctx, c.host+"/api/chat", body)
	if err != nil {
		return "", err
	}
	defer respBody.Close()

	var result chatResponse
	if err := json.NewDecoder(respBody).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama: %s", result.Error)
	}
	text := strings.TrimSpace(result.Message.Content)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// cancelOnClose wraps an io.ReadCloser to call a cancel function on Close.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

var retryDelays = []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}

// post sends a JSON POST request to the given URL with retry on transient errors.
// Returns the response body on success; the caller must close it.
func (c *Ollama) post(ctx context.Context, url string, body any) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelays[attempt-1]):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptCtx, attemptCancel := context.WithTimeout(ctx, c.timeout)
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			attemptCancel()
			return nil, fmt.Errorf("build request: %w", err)
		}
		if c.key != "" {
			req.Header.Set("Authorization", "Bearer "+c.key)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			attemptCancel()
			lastErr = err
			continue // all network errors are transient
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			attemptCancel()
			lastErr = fmt.Errorf("transient HTTP %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			attemptCancel()
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}

		// Cancel the per-attempt context when the caller closes the body,
		// not before — the context must remain live while the body is being read.
		return &cancelOnClose{ReadCloser: resp.Body, cancel: attemptCancel}, nil
	}
	return nil, lastErr
}

const generateAttempts = 3

var generateBackoff = 5 * time.Second

// GenerateWithRetry asks g up to three times, pausing between attempts, and
// returns fallback when every attempt fails or yields no text.
func GenerateWithRetry(ctx context.Context, g Generator, prompt, fallback string) string {
	attempt := 0
	text, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		out, err := g.Generate(ctx, prompt)
		if err != nil {
			return "", err
		}
		if out = strings.TrimSpace(out); out == "" {
			return "", ErrEmpty
		}
		return out, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(generateBackoff)),
		backoff.WithMaxTries(generateAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("generation failed, retrying", "error", err, "attempt", attempt, "max", generateAttempts, "retry_in", next)
		}),
	)
	if err != nil {
		slog.Error("generation failed, using fallback", "error", err, "attempts", attempt)
		return fallback
	}
	return text
}
