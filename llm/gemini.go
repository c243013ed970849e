package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/chaosshowdown/mitsuha/config"
)

// Gemini generates text with the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a Gemini client. Extra options are appended after the API key,
// which lets tests point the client at a local endpoint.
func NewGemini(ctx context.Context, cfg *config.LLMConfig, opts ...option.ClientOption) (*Gemini, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(cfg.GeminiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client:  client,
		model:   client.GenerativeModel(cfg.GeminiModel),
		timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
