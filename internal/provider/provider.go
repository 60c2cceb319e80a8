// Package provider implements the external model-provider capability and the
// cascade executor that drives it. Each provider is a small hand-rolled HTTP
// client behind the Client interface; clients are constructed once at startup
// and dependency-injected (no ambient singletons), so tests can substitute
// fakes and the process owns provider lifecycle explicitly.
//
// Error hygiene: provider responses and prompts never appear in errors or
// logs. Failures carry only a redacted summary (provider, error kind, HTTP
// status), and API keys are masked before they can reach any log line.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Generation request/response shapes shared by all providers.

// Request is one generation call. ImageBase64 is set only for the OCR
// pre-step and for providers that accept inline images.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Effort       string // low|medium|high reasoning effort
	ImageBase64  string // optional; raw base64 without data-URI prefix
	ImageMIME    string // e.g. "image/jpeg"; defaults to jpeg when empty
	MaxTokens    int    // response cap; providers apply their own default when 0
}

// Result is a raw, unvalidated provider response. Output validation (the
// suggestion-array shape) happens in the executor, not in the clients.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Client is the opaque provider capability: generate text or fail. Clients
// must honor ctx cancellation and must not retry internally; retry strategy
// belongs to the cascade.
type Client interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Error kinds attached to failed attempts. These are the only diagnostic
// detail that leaves the provider layer.
const (
	KindTimeout   = "timeout"
	KindHTTP      = "provider_error"
	KindMalformed = "malformed_output"
	KindEmpty     = "empty_output"
)

// AttemptError is a redacted provider failure: kind, provider, and HTTP
// status only. It deliberately carries no response body.
type AttemptError struct {
	Provider   string
	Kind       string
	StatusCode int
}

// Error implements the error interface with a redacted summary.
func (e *AttemptError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

// ErrorKind classifies any error produced during an attempt into one of the
// redacted kinds.
func ErrorKind(err error) string {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindHTTP
}

// Registry maps provider names to constructed clients. A nil entry lookup
// returns (nil, false) so the executor can skip cascade entries whose
// provider is not configured in this deployment.
type Registry map[string]Client

// Get returns the client registered under name.
func (r Registry) Get(name string) (Client, bool) {
	c, ok := r[name]
	return c, ok && c != nil
}

// newHTTPClient builds the shared transport used by all provider clients.
// The client-level timeout is a backstop; per-attempt deadlines come from
// the executor's context.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
