package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"adorable/internal/logging"
)

// GeminiConfig holds configuration for the Gemini API client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int32
}

// GeminiClient wraps the Google Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key required: set GEMINI_API_KEY")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		config: &genai.GenerateContentConfig{
			Temperature:     Ptr(cfg.Temperature),
			MaxOutputTokens: cfg.MaxTokens,
		},
	}, nil
}

func (c *GeminiClient) Name() string {
	return "gemini"
}

// Complete streams one generation and folds it into a turn.
func (c *GeminiClient) Complete(ctx context.Context, req *Request) (*AssistantTurn, error) {
	system, contents := toGeminiContents(req.Messages)

	config := *c.config
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: req.Tools}}
	}

	var (
		text strings.Builder
		raw  []RawToolCall
	)
	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, &config) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("gemini: %w", ctx.Err())
			}
			return nil, c.wrapError(err)
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Thought {
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
				if req.OnToken != nil {
					req.OnToken(part.Text)
				}
			}
			if part.FunctionCall != nil {
				raw = append(raw, RawToolCall{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
			}
		}
	}

	return NewTurn(text.String(), raw, req.Tools), nil
}

func (c *GeminiClient) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		logging.Warn("gemini API error", "code", apiErr.Code, "status", apiErr.Status)
		return &ProviderError{Provider: c.Name(), StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	return &ProviderError{Provider: c.Name(), Err: err}
}

// toGeminiContents converts the conversation. System messages become the
// system instruction and consecutive tool results share one user content.
func toGeminiContents(msgs []Message) (string, []*genai.Content) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Args,
				}})
			}
			if len(parts) == 0 {
				parts = append(parts, genai.NewPartFromText(" "))
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case RoleTool:
			part := genai.NewPartFromFunctionResponse(m.Name, toolResponseMap(m.Content))
			part.FunctionResponse.ID = m.ToolCallID
			if n := len(contents); n > 0 && isFunctionResponseContent(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
		}
	}
	return strings.Join(system, "\n\n"), contents
}

func isFunctionResponseContent(c *genai.Content) bool {
	return c.Role == genai.RoleUser && len(c.Parts) > 0 && c.Parts[0].FunctionResponse != nil
}

func toolResponseMap(content string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(content), &m); err == nil && m != nil {
		return m
	}
	return map[string]any{"content": content}
}
