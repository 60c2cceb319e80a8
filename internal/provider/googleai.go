// Google AI (Gemini) generateContent client. Typically the cheapest and most
// available provider, which is why the default last-resort cascade entry
// points here.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GoogleAIClient calls the Gemini generateContent endpoint. baseURL is the
// models root (".../v1beta/models"); the model name and action are appended
// per request.
type GoogleAIClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewGoogleAIClient constructs a client for the given models root and key.
func NewGoogleAIClient(apiKey, baseURL string, timeout time.Duration) *GoogleAIClient {
	return &GoogleAIClient{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), http: newHTTPClient(timeout)}
}

// Name implements Client.
func (c *GoogleAIClient) Name() string { return "googleai" }

type geminiPart struct {
	Text       string `json:"text,omitempty"`
	InlineData *struct {
		MimeType string `json:"mime_type"`
		Data     string `json:"data"`
	} `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  *struct {
		MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Generate implements Client. Gemini has no effort knob on this endpoint;
// degradation for this provider happens through model choice alone.
func (c *GoogleAIClient) Generate(ctx context.Context, req Request) (*Result, error) {
	parts := []geminiPart{{Text: req.UserPrompt}}
	if req.ImageBase64 != "" {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		inline := &struct {
			MimeType string `json:"mime_type"`
			Data     string `json:"data"`
		}{MimeType: mime, Data: req.ImageBase64}
		parts = append([]geminiPart{{InlineData: inline}}, parts...)
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	if req.MaxTokens > 0 {
		body.GenerationConfig = &struct {
			MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
		}{MaxOutputTokens: req.MaxTokens}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &AttemptError{Provider: c.Name(), Kind: KindMalformed}
	}

	endpoint := c.baseURL + "/" + url.PathEscape(req.Model) + ":generateContent?key=" + url.QueryEscape(c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &AttemptError{Provider: c.Name(), Kind: KindHTTP}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &AttemptError{Provider: c.Name(), Kind: KindHTTP, StatusCode: resp.StatusCode}
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &AttemptError{Provider: c.Name(), Kind: KindMalformed, StatusCode: resp.StatusCode}
	}
	if len(parsed.Candidates) == 0 {
		return nil, &AttemptError{Provider: c.Name(), Kind: KindEmpty, StatusCode: resp.StatusCode}
	}
	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return nil, &AttemptError{Provider: c.Name(), Kind: KindEmpty, StatusCode: resp.StatusCode}
	}

	return &Result{
		Text:         sb.String(),
		InputTokens:  parsed.UsageMetadata.PromptTokenCount,
		OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
	}, nil
}
