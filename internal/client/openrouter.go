package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"

	"adorable/internal/logging"
)

// OpenRouterConfig holds configuration for an OpenAI-compatible chat
// completions endpoint.
type OpenRouterConfig struct {
	APIKey      string
	BaseURL     string // Default: "https://openrouter.ai/api/v1"
	Model       string
	Temperature float32
	MaxTokens   int32
	Referer     string
	Title       string
	HTTPTimeout time.Duration
}

// OpenRouterClient streams chat completions over server-sent events.
type OpenRouterClient struct {
	config     OpenRouterConfig
	httpClient *http.Client
}

// NewOpenRouterClient creates a new OpenRouter client.
func NewOpenRouterClient(config OpenRouterConfig) (*OpenRouterClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenRouter API key required: set OPENROUTER_API_KEY")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://openrouter.ai/api/v1"
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 120 * time.Second
	}

	return &OpenRouterClient{
		config: config,
		// HTTPTimeout bounds the wait for response headers; the stream
		// itself is bounded by ctx.
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: config.HTTPTimeout,
			},
		},
	}, nil
}

func (c *OpenRouterClient) Name() string {
	return "openrouter"
}

type chatToolCall struct {
	Index    *int   `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string         `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// Complete sends the conversation and accumulates the streamed turn.
func (c *OpenRouterClient) Complete(ctx context.Context, req *Request) (*AssistantTurn, error) {
	body := map[string]any{
		"model":       c.config.Model,
		"messages":    toChatMessages(req.Messages),
		"stream":      true,
		"temperature": c.config.Temperature,
	}
	if c.config.MaxTokens > 0 {
		body["max_tokens"] = c.config.MaxTokens
	}
	if tools := toChatTools(req.Tools); len(tools) > 0 {
		body["tools"] = tools
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	logging.Debug("openrouter request", "model", c.config.Model, "messages", len(req.Messages), "body", truncateString(string(jsonData), 2000))

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if c.config.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.config.Referer)
	}
	if c.config.Title != "" {
		httpReq.Header.Set("X-Title", c.config.Title)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("openrouter: %w", ctx.Err())
		}
		return nil, &ProviderError{Provider: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if readErr != nil {
			data = []byte("(failed to read response body)")
		}
		logging.Warn("openrouter API error", "status", resp.StatusCode, "body", truncateString(string(data), 500))
		return nil, &ProviderError{
			Provider:   c.Name(),
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
		}
	}

	return c.readStream(ctx, resp.Body, req)
}

func (c *OpenRouterClient) readStream(ctx context.Context, r io.Reader, req *Request) (*AssistantTurn, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var text strings.Builder
	partials := make(map[int]*partialCall)

	for scanner.Scan() {
		line := scanner.Text()

		// SSE format: "data: {...}" or "data:{...}"; ": ..." lines are keepalives
		var data string
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
		} else if strings.HasPrefix(line, "data:") {
			data = strings.TrimPrefix(line, "data:")
		} else {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logging.Debug("skipping unparsable SSE event", "data", truncateString(data, 200))
			continue
		}
		if chunk.Error != nil {
			return nil, &ProviderError{Provider: c.Name(), Message: chunk.Error.Message}
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				if req.OnToken != nil {
					req.OnToken(choice.Delta.Content)
				}
			}
			for pos, tc := range choice.Delta.ToolCalls {
				idx := pos
				if tc.Index != nil {
					idx = *tc.Index
				}
				p, ok := partials[idx]
				if !ok {
					p = &partialCall{}
					partials[idx] = p
				}
				if tc.ID != "" {
					p.id = tc.ID
				}
				if tc.Function.Name != "" {
					p.name = tc.Function.Name
				}
				p.args.WriteString(tc.Function.Arguments)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("openrouter: %w", ctx.Err())
		}
		return nil, &ProviderError{Provider: c.Name(), Message: "stream interrupted", Err: err}
	}

	indexes := make([]int, 0, len(partials))
	for idx := range partials {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	raw := make([]RawToolCall, 0, len(indexes))
	for _, idx := range indexes {
		p := partials[idx]
		raw = append(raw, RawToolCall{ID: p.id, Name: p.name, Args: p.args.String()})
	}

	return NewTurn(text.String(), raw, req.Tools), nil
}

func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return truncateString(strings.TrimSpace(string(body)), 500)
}

func toChatMessages(msgs []Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := chatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == RoleTool {
			cm.Name = m.Name
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Args)
			if err != nil {
				args = []byte("{}")
			}
			var ct chatToolCall
			ct.ID = tc.ID
			ct.Type = "function"
			ct.Function.Name = tc.Name
			ct.Function.Arguments = string(args)
			cm.ToolCalls = append(cm.ToolCalls, ct)
		}
		out = append(out, cm)
	}
	return out
}

func toChatTools(decls []*genai.FunctionDeclaration) []map[string]any {
	tools := make([]map[string]any, 0, len(decls))
	for _, decl := range decls {
		params := convertSchemaToJSON(decl.Parameters)
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        decl.Name,
				"description": decl.Description,
				"parameters":  params,
			},
		})
	}
	return tools
}
