// Package moderation implements the upstream analysis endpoint on top of
// OpenAI: a moderation call decides flagged and categories, and a chat
// completion writes review insights.
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/tbourn/go-content-review/internal/transport"
)

const (
	DefaultModerationModel = "omni-moderation-latest"
	DefaultChatModel       = openai.GPT3Dot5Turbo

	systemPrompt = "You are a user-generated content analyst. Reply with short findings, one per line."
	userPrompt   = "Evaluate this content for quality and engagement: %s"
	maxTokens    = 300
)

// ErrNoResult is returned when the moderation response has no results.
var ErrNoResult = errors.New("moderation returned no results")

// API is the subset of *openai.Client the analyzer needs.
type API interface {
	Moderations(ctx context.Context, req openai.ModerationRequest) (openai.ModerationResponse, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIAnalyzer answers analysis requests in the remote endpoint format.
type OpenAIAnalyzer struct {
	API             API
	ModerationModel string
	ChatModel       string
}

// NewOpenAIAnalyzer builds an analyzer from an API key.
func NewOpenAIAnalyzer(apiKey, moderationModel, chatModel string) *OpenAIAnalyzer {
	return &OpenAIAnalyzer{
		API:             openai.NewClient(apiKey),
		ModerationModel: moderationModel,
		ChatModel:       chatModel,
	}
}

// Analyze moderates text and collects insights.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, text string) (transport.RawResponse, error) {
	modModel := a.ModerationModel
	if modModel == "" {
		modModel = DefaultModerationModel
	}
	mod, err := a.API.Moderations(ctx, openai.ModerationRequest{Input: text, Model: modModel})
	if err != nil {
		return transport.RawResponse{}, fmt.Errorf("moderation: %w", err)
	}
	if len(mod.Results) == 0 {
		return transport.RawResponse{}, ErrNoResult
	}
	res := mod.Results[0]
	cats, err := trueCategories(res.Categories)
	if err != nil {
		return transport.RawResponse{}, err
	}

	chatModel := a.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	completion, err := a.API.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     chatModel,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(userPrompt, text)},
		},
	})
	if err != nil {
		return transport.RawResponse{}, fmt.Errorf("chat completion: %w", err)
	}
	var insights []string
	if len(completion.Choices) > 0 {
		insights = splitInsights(completion.Choices[0].Message.Content)
	}

	flagged := res.Flagged
	return transport.RawResponse{Flagged: &flagged, Categories: cats, Insights: insights}, nil
}

// trueCategories returns the names of the categories set to true, sorted.
// Names are the JSON keys of the moderation response.
func trueCategories(c openai.ResultCategories) ([]string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]bool
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	out := []string{}
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// splitInsights turns a completion into one insight per non-empty line,
// dropping list markers.
func splitInsights(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
