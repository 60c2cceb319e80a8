// OpenAI-compatible chat-completions client. Also fronts any endpoint that
// speaks the same wire shape (Azure OpenAI, local gateways).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// OpenAIClient calls an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	apiKey string
	url    string
	http   *http.Client
}

// NewOpenAIClient constructs a client for the given endpoint and key.
func NewOpenAIClient(apiKey, url string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{apiKey: apiKey, url: url, http: newHTTPClient(timeout)}
}

// Name implements Client.
func (c *OpenAIClient) Name() string { return "openai" }

type openAIContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type openAIRequest struct {
	Model           string          `json:"model"`
	Messages        []openAIMessage `json:"messages"`
	MaxTokens       int             `json:"max_tokens,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate implements Client.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Result, error) {
	userContent := interface{}(req.UserPrompt)
	if req.ImageBase64 != "" {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		img := &struct {
			URL string `json:"url"`
		}{URL: "data:" + mime + ";base64," + req.ImageBase64}
		userContent = []openAIContentPart{
			{Type: "text", Text: req.UserPrompt},
			{Type: "image_url", ImageURL: img},
		}
	}

	body := openAIRequest{
		Model: req.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: userContent},
		},
		MaxTokens:       req.MaxTokens,
		ReasoningEffort: req.Effort,
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
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain without surfacing the body anywhere.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &AttemptError{Provider: c.Name(), Kind: KindHTTP, StatusCode: resp.StatusCode}
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &AttemptError{Provider: c.Name(), Kind: KindMalformed, StatusCode: resp.StatusCode}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, &AttemptError{Provider: c.Name(), Kind: KindEmpty, StatusCode: resp.StatusCode}
	}

	return &Result{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}
