package provider

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-wingman-backend/internal/policy"
)

// fakeClient is a scripted provider for cascade tests.
type fakeClient struct {
	name  string
	text  string
	err   error
	calls int
	sleep time.Duration
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Generate(ctx context.Context, req Request) (*Result, error) {
	f.calls++
	if f.sleep > 0 {
		select {
		case <-time.After(f.sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Text: f.text, InputTokens: 10, OutputTokens: 20}, nil
}

func entry(provider, model string) policy.Entry {
	return policy.Entry{Provider: provider, Model: model, Effort: "low"}
}

func TestExecute_FirstSuccessWins(t *testing.T) {
	a := &fakeClient{name: "a", text: `[{"message":"hi"}]`}
	b := &fakeClient{name: "b", text: `[{"message":"never"}]`}
	e := &Executor{Clients: Registry{"a": a, "b": b}}

	out := e.Execute(context.Background(), Request{}, []policy.Entry{entry("a", "m1"), entry("b", "m2")})
	if !out.Success {
		t.Fatalf("expected success: %+v", out)
	}
	if out.Provider != "a" || out.Model != "m1" {
		t.Fatalf("wrong winner: %s/%s", out.Provider, out.Model)
	}
	if b.calls != 0 {
		t.Fatalf("later entries must not be attempted after a success, b.calls=%d", b.calls)
	}
	if len(out.Attempts) != 1 || out.Attempts[0].ErrorKind != "" {
		t.Fatalf("unexpected attempt log: %+v", out.Attempts)
	}
	if out.InputTokens != 10 || out.OutputTokens != 20 {
		t.Fatalf("token counts not propagated: %+v", out)
	}
}

func TestExecute_CascadesPastFailures(t *testing.T) {
	a := &fakeClient{name: "a", err: &AttemptError{Provider: "a", Kind: KindHTTP, StatusCode: 500}}
	b := &fakeClient{name: "b", text: "not an array"}
	c := &fakeClient{name: "c", text: `[{"message":"worked"}]`}
	e := &Executor{Clients: Registry{"a": a, "b": b, "c": c}}

	out := e.Execute(context.Background(), Request{}, []policy.Entry{
		entry("a", "m1"), entry("b", "m2"), entry("c", "m3"),
	})
	if !out.Success || out.Model != "m3" {
		t.Fatalf("expected third entry to win: %+v", out)
	}
	if len(out.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(out.Attempts))
	}
	if out.Attempts[0].ErrorKind != KindHTTP {
		t.Fatalf("attempt 0 kind: %s", out.Attempts[0].ErrorKind)
	}
	if out.Attempts[1].ErrorKind != KindMalformed {
		t.Fatalf("attempt 1 kind: %s", out.Attempts[1].ErrorKind)
	}
	// Each entry is tried once; never retried in place.
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Fatalf("calls a=%d b=%d c=%d", a.calls, b.calls, c.calls)
	}
}

func TestExecute_AllFail(t *testing.T) {
	a := &fakeClient{name: "a", err: &AttemptError{Provider: "a", Kind: KindHTTP, StatusCode: 503}}
	b := &fakeClient{name: "b", err: &AttemptError{Provider: "b", Kind: KindHTTP, StatusCode: 429}}
	e := &Executor{Clients: Registry{"a": a, "b": b}}

	out := e.Execute(context.Background(), Request{}, []policy.Entry{entry("a", "m1"), entry("b", "m2")})
	if out.Success {
		t.Fatalf("expected failure outcome")
	}
	if len(out.Suggestions) != 0 {
		t.Fatalf("failed outcome must not carry suggestions")
	}
	if len(out.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(out.Attempts))
	}
}

func TestExecute_SkipsUnconfiguredProvider(t *testing.T) {
	b := &fakeClient{name: "b", text: `[{"message":"ok"}]`}
	e := &Executor{Clients: Registry{"b": b}}

	out := e.Execute(context.Background(), Request{}, []policy.Entry{entry("missing", "m1"), entry("b", "m2")})
	if !out.Success || out.Provider != "b" {
		t.Fatalf("expected configured provider to win: %+v", out)
	}
	if len(out.Attempts) != 2 {
		t.Fatalf("missing provider must still be logged as an attempt: %+v", out.Attempts)
	}
}

func TestExecute_OverallTimeoutStopsCascade(t *testing.T) {
	slow := &fakeClient{name: "slow", sleep: 5 * time.Second, text: `[{"message":"late"}]`}
	e := &Executor{
		Clients:        Registry{"slow": slow},
		AttemptTimeout: 50 * time.Millisecond,
		OverallTimeout: 80 * time.Millisecond,
	}

	out := e.Execute(context.Background(), Request{}, []policy.Entry{entry("slow", "m1"), entry("slow", "m2"), entry("slow", "m3")})
	if out.Success {
		t.Fatalf("expected deadline to exhaust the cascade: %+v", out)
	}
	for _, at := range out.Attempts {
		if at.ErrorKind == "" {
			t.Fatalf("no attempt should have succeeded: %+v", out.Attempts)
		}
	}
}

func TestErrorKind_Classification(t *testing.T) {
	if got := ErrorKind(&AttemptError{Provider: "p", Kind: KindMalformed}); got != KindMalformed {
		t.Fatalf("AttemptError kind not preserved: %s", got)
	}
	if got := ErrorKind(context.DeadlineExceeded); got != KindTimeout {
		t.Fatalf("deadline must classify as timeout: %s", got)
	}
	if got := ErrorKind(context.Canceled); got != KindTimeout {
		t.Fatalf("cancel must classify as timeout: %s", got)
	}
}
