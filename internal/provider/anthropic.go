// Anthropic messages-API client. The reasoning-effort level maps onto the
// extended-thinking token budget.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient calls the Anthropic messages endpoint.
type AnthropicClient struct {
	apiKey string
	url    string
	http   *http.Client
}

// NewAnthropicClient constructs a client for the given endpoint and key.
func NewAnthropicClient(apiKey, url string, timeout time.Duration) *AnthropicClient {
	return &AnthropicClient{apiKey: apiKey, url: url, http: newHTTPClient(timeout)}
}

// Name implements Client.
func (c *AnthropicClient) Name() string { return "anthropic" }

type anthropicContent struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Source *struct {
		Type      string `json:"type"`
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Thinking  *anthropicThinking `json:"thinking,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// thinkingBudget maps the gateway effort level to an extended-thinking token
// budget. "low" disables thinking entirely.
func thinkingBudget(effort string) *anthropicThinking {
	switch effort {
	case "medium":
		return &anthropicThinking{Type: "enabled", BudgetTokens: 2048}
	case "high":
		return &anthropicThinking{Type: "enabled", BudgetTokens: 8192}
	default:
		return nil
	}
}

// Generate implements Client.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (*Result, error) {
	content := []anthropicContent{{Type: "text", Text: req.UserPrompt}}
	if req.ImageBase64 != "" {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		src := &struct {
			Type      string `json:"type"`
			MediaType string `json:"media_type"`
			Data      string `json:"data"`
		}{Type: "base64", MediaType: mime, Data: req.ImageBase64}
		content = append([]anthropicContent{{Type: "image", Source: src}}, content...)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body := anthropicRequest{
		Model:     req.Model,
		MaxTokens: maxTokens,
		System:    req.SystemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: content}},
		Thinking:  thinkingBudget(req.Effort),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &AttemptError{Provider: c.Name(), Kind: KindMalformed}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &AttemptError{Provider: c.Name(), Kind: KindHTTP}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &AttemptError{Provider: c.Name(), Kind: KindHTTP, StatusCode: resp.StatusCode}
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &AttemptError{Provider: c.Name(), Kind: KindMalformed, StatusCode: resp.StatusCode}
	}

	// Thinking blocks precede the text block; take the first text content.
	var text string
	for _, blk := range parsed.Content {
		if blk.Type == "text" && blk.Text != "" {
			text = blk.Text
			break
		}
	}
	if text == "" {
		return nil, &AttemptError{Provider: c.Name(), Kind: KindEmpty, StatusCode: resp.StatusCode}
	}

	return &Result{
		Text:         text,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}
