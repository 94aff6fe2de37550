// Package llm drafts multiple-choice questions through an OpenAI-compatible API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/edutest/internal/authoring"
	"github.com/pavelanni/edutest/internal/llm/prompts"
	"github.com/pavelanni/edutest/internal/model"
)

// MaxDraftQuestions bounds how many questions one request may ask for.
const MaxDraftQuestions = 20

// ErrBadDraft is returned when the model's reply cannot be turned into valid questions.
var ErrBadDraft = errors.New("LLM returned an unusable draft")

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api      *openai.Client
	model    string
	language string
}

// New creates a new LLM client. language, when set, is the language questions are
// written in.
func New(baseURL, apiKey, modelName, language string) (*Client, error) {
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, err
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:      openai.NewClientWithConfig(config),
		model:    modelName,
		language: language,
	}, nil
}

type draftReply struct {
	Questions json.RawMessage `json:"questions"`
}

// DraftQuestions asks the model for count questions about topic. The reply goes through
// the same strict checks as a bulk import, so every returned question is valid.
func (c *Client) DraftQuestions(ctx context.Context, topic string, count int, difficulty prompts.Difficulty) ([]model.Question, error) {
	if count < 1 || count > MaxDraftQuestions {
		return nil, fmt.Errorf("question count %d out of range 1..%d", count, MaxDraftQuestions)
	}
	prompt, err := prompts.BuildDraftPrompt(difficulty, prompts.DraftData{
		Topic:    topic,
		Count:    count,
		Language: c.language,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrBadDraft)
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM draft response", "raw", raw)

	qs, err := parseDraft(raw)
	if err != nil {
		return nil, err
	}
	if len(qs) > count {
		qs = qs[:count]
	}
	slog.Info("drafted questions", "topic", prompts.SanitizeTopic(topic), "difficulty", difficulty, "count", len(qs))
	return qs, nil
}

func parseDraft(raw string) ([]model.Question, error) {
	var reply draftReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDraft, err)
	}
	if len(reply.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions field", ErrBadDraft)
	}
	qs, err := authoring.ParseImport(reply.Questions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDraft, err)
	}
	return qs, nil
}
