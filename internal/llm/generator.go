// Package llm produces in-character replies from a transcript via an
// OpenAI-compatible chat-completion endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/belief0714/AINarrativeRPG/pkg/conversation"
)

// Generator turns a transcript into the next reply.
type Generator interface {
	Generate(ctx context.Context, log []conversation.Message) (string, error)
}

// Config holds chat-completion settings. BaseURL points at any
// OpenAI-compatible endpoint; DeepSeek is the stock choice.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

// ChatGenerator implements Generator on the OpenAI chat-completions API.
type ChatGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewChatGenerator creates a generator for the configured endpoint.
func NewChatGenerator(cfg Config) (*ChatGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("chat API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("chat model is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &ChatGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Generate submits the transcript and returns the trimmed reply text.
func (g *ChatGenerator) Generate(ctx context.Context, log []conversation.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, len(log))
	for i, m := range log {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.New("chat completion returned an empty reply")
	}
	return reply, nil
}
