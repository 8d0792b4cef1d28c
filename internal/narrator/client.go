// Package narrator talks to the external language-model service that
// writes the story, and renders the prompts it is fed.
package narrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"aiquest/internal/game"
)

const fallbackNarration = "The narrator stumbles..."

// Client implements narration against an OpenAI-compatible chat API.
// Transport failures degrade to a short fallback fragment so a flaky
// upstream never stalls a turn.
type Client struct {
	client *openai.Client
	model  string

	temperature      float32
	topP             float32
	frequencyPenalty float32
	maxTokens        int
}

type ClientOpt func(*Client)

func WithTemperature(temperature float32) ClientOpt {
	return func(c *Client) {
		c.temperature = temperature
	}
}

func WithTopP(topP float32) ClientOpt {
	return func(c *Client) {
		c.topP = topP
	}
}

func WithFrequencyPenalty(penalty float32) ClientOpt {
	return func(c *Client) {
		c.frequencyPenalty = penalty
	}
}

func WithMaxTokens(n int) ClientOpt {
	return func(c *Client) {
		c.maxTokens = n
	}
}

// NewClient builds a client for the given endpoint. baseURL may be empty
// for the upstream default.
func NewClient(apiKey, baseURL, model string, opts ...ClientOpt) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("narrator api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("narrator model is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	c := &Client{
		client:           openai.NewClientWithConfig(config),
		model:            model,
		temperature:      0.55,
		topP:             0.94,
		frequencyPenalty: 1.2,
		maxTokens:        2048,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// StreamNarration streams the model's reply, forwarding each content
// fragment to fn, and returns the assembled text. Upstream errors are
// swallowed into a fallback fragment; only context cancellation and fn
// failures propagate.
func (c *Client) StreamNarration(ctx context.Context, prompt string, fn func(fragment string) error) (string, error) {
	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream:           true,
		MaxTokens:        c.maxTokens,
		Temperature:      c.temperature,
		TopP:             c.topP,
		FrequencyPenalty: c.frequencyPenalty,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Error("opening narration stream", "model", c.model, "error", err)
		return c.emitFallback(fn)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		response, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			slog.Error("reading narration stream", "model", c.model, "error", err)
			if text.Len() > 0 {
				// Partial narration already reached the players; keep it.
				return text.String(), nil
			}
			return c.emitFallback(fn)
		}

		if len(response.Choices) == 0 {
			continue
		}
		// Reasoning models interleave hidden deliberation chunks with
		// empty content; only story text is forwarded.
		chunk := response.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		text.WriteString(chunk)
		if err := fn(chunk); err != nil {
			return text.String(), err
		}
	}

	return text.String(), nil
}

func (c *Client) emitFallback(fn func(string) error) (string, error) {
	if err := fn(fallbackNarration); err != nil {
		return "", err
	}
	return fallbackNarration, nil
}

// ExtractChanges asks the model for a structured world delta and parses
// it. A nil delta with the raw response means the reply was not usable;
// the caller treats that as an empty turn.
func (c *Client) ExtractChanges(ctx context.Context, prompt string) (*game.TurnDelta, string, error) {
	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:        c.maxTokens,
		Temperature:      c.temperature,
		TopP:             c.topP,
		FrequencyPenalty: c.frequencyPenalty,
	}

	response, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		slog.Error("requesting state changes", "model", c.model, "error", err)
		return nil, "", nil
	}
	if len(response.Choices) == 0 {
		return nil, "", nil
	}

	raw := response.Choices[0].Message.Content
	delta, err := parseDeltaResponse(raw)
	if err != nil {
		slog.Warn("discarding unusable state response", "error", err)
		return nil, raw, nil
	}
	return delta, raw, nil
}

// parseDeltaResponse digs the JSON object out of a model reply that may
// wrap it in code fences or prose.
func parseDeltaResponse(raw string) (*game.TurnDelta, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+3:]
		text = strings.TrimPrefix(text, "json")
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no json object found")
	}

	return game.ParseTurnDelta(json.RawMessage(text[start : end+1]))
}
