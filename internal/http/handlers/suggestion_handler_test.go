package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wingman-backend/internal/domain"
	"github.com/tbourn/go-wingman-backend/internal/identity"
	"github.com/tbourn/go-wingman-backend/internal/ledger"
	"github.com/tbourn/go-wingman-backend/internal/services"
)

// ---------- flexible service stubs ----------

type stubSugSvc struct {
	generate func(context.Context, identity.Hint, services.SuggestionInput) (*services.SuggestionResult, error)
}

func (s stubSugSvc) Generate(ctx context.Context, hint identity.Hint, in services.SuggestionInput) (*services.SuggestionResult, error) {
	if s.generate != nil {
		return s.generate(ctx, hint, in)
	}
	return &services.SuggestionResult{Success: true, Suggestions: []string{"hi"}}, nil
}

type stubUnlockSvc struct {
	unlock func(context.Context, identity.Hint, string) (*services.UnlockResult, error)
	latest func(context.Context, identity.Hint) (*domain.LockedReply, []string, error)
}

func (s stubUnlockSvc) Unlock(ctx context.Context, hint identity.Hint, replyID string) (*services.UnlockResult, error) {
	if s.unlock != nil {
		return s.unlock(ctx, hint, replyID)
	}
	return &services.UnlockResult{Reply: &domain.LockedReply{ID: replyID}, Suggestions: []string{"full"}}, nil
}

func (s stubUnlockSvc) Latest(ctx context.Context, hint identity.Hint) (*domain.LockedReply, []string, error) {
	if s.latest != nil {
		return s.latest(ctx, hint)
	}
	return nil, nil, services.ErrReplyNotFound
}

type stubAcctSvc struct {
	status func(context.Context, identity.Hint) (*services.AccountStatus, error)
}

func (s stubAcctSvc) Status(ctx context.Context, hint identity.Hint) (*services.AccountStatus, error) {
	if s.status != nil {
		return s.status(ctx, hint)
	}
	return &services.AccountStatus{Tier: domain.TierGuest}, nil
}

type stubCopySvc struct {
	record func(context.Context, string, string, string) error
}

func (s stubCopySvc) RecordCopy(ctx context.Context, ownerKey, replyID, actionType string) error {
	if s.record != nil {
		return s.record(ctx, ownerKey, replyID, actionType)
	}
	return nil
}

func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/suggestions", h.PostSuggestions)
	r.POST("/locks/:id/unlock", h.Unlock)
	r.GET("/locks/latest", h.LatestLock)
	r.GET("/account", h.GetAccount)
	r.POST("/events/copy", h.PostCopyEvent)
	return r
}

func postJSON(r *gin.Engine, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

// ---------- callerHint ----------

func Test_callerHint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "header-user")
	req.Header.Set("X-Device-ID", " fp-1 ")
	c.Request = req

	h := callerHint(c)
	if h.UserID != "header-user" {
		t.Fatalf("header user = %q", h.UserID)
	}
	if h.Fingerprint != "fp-1" {
		t.Fatalf("fingerprint = %q", h.Fingerprint)
	}

	// Context value from upstream auth wins over the header.
	c.Set("userID", "ctx-user")
	if got := callerHint(c).UserID; got != "ctx-user" {
		t.Fatalf("ctx user = %q", got)
	}
}

// ---------- PostSuggestions ----------

func TestPostSuggestions_Success(t *testing.T) {
	var seen services.SuggestionInput
	h := New(stubSugSvc{generate: func(_ context.Context, _ identity.Hint, in services.SuggestionInput) (*services.SuggestionResult, error) {
		seen = in
		return &services.SuggestionResult{
			Success:          true,
			Suggestions:      []string{"one", "two"},
			Reply:            &domain.LockedReply{ID: "r1", Unlocked: true},
			Tier:             domain.TierGuest,
			ModelUsed:        "gemini-2.0-flash",
			CreditsRemaining: 2,
			TrialCredits:     true,
			EventID:          "e1",
		}, nil
	}}, stubUnlockSvc{}, stubAcctSvc{}, stubCopySvc{})
	r := newTestRouter(h)

	w := postJSON(r, "/suggestions?count=2",
		`{"action_type":"Opener","prompt_context":"bio text","tone":"playful"}`,
		map[string]string{"X-Device-ID": "fp-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}

	if seen.ActionType != "opener" {
		t.Fatalf("action type not normalized: %q", seen.ActionType)
	}
	if seen.Count != 2 {
		t.Fatalf("count query not plumbed: %d", seen.Count)
	}

	var resp SuggestionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Locked {
		t.Fatalf("flags: %+v", resp)
	}
	if len(resp.Suggestions) != 2 || resp.Suggestions[0].Message != "one" {
		t.Fatalf("suggestions: %+v", resp.Suggestions)
	}
	if resp.ReplyID != "r1" {
		t.Fatalf("reply id: %q", resp.ReplyID)
	}
	if resp.TrialCreditsRemaining == nil || *resp.TrialCreditsRemaining != 2 {
		t.Fatalf("trial credits: %+v", resp.TrialCreditsRemaining)
	}
	if resp.CreditsRemaining != nil {
		t.Fatalf("regular credits must be absent for a guest")
	}
}

func TestPostSuggestions_LockedCarriesPreviewsOnly(t *testing.T) {
	h := New(stubSugSvc{generate: func(_ context.Context, _ identity.Hint, _ services.SuggestionInput) (*services.SuggestionResult, error) {
		return &services.SuggestionResult{
			Success:          true,
			Locked:           true,
			Previews:         []string{"word1 word2"},
			Reply:            &domain.LockedReply{ID: "r1"},
			Tier:             domain.TierSubscriber,
			CreditsRemaining: -1,
		}, nil
	}}, stubUnlockSvc{}, stubAcctSvc{}, stubCopySvc{})
	r := newTestRouter(h)

	w := postJSON(r, "/suggestions", `{"action_type":"reply","prompt_context":"x"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp SuggestionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Locked || len(resp.Previews) != 1 || len(resp.Suggestions) != 0 {
		t.Fatalf("locked envelope: %+v", resp)
	}
	if resp.CreditsRemaining != nil || resp.TrialCreditsRemaining != nil {
		t.Fatalf("unlimited callers carry no credit fields")
	}
}

func TestPostSuggestions_QuotaEnvelopes(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{ledger.ErrTrialExpired, ErrCodeTrialExpired},
		{ledger.ErrQuotaExhausted, ErrCodeInsufficientCredits},
	}
	for _, tc := range cases {
		h := New(stubSugSvc{generate: func(_ context.Context, _ identity.Hint, _ services.SuggestionInput) (*services.SuggestionResult, error) {
			return nil, tc.err
		}}, stubUnlockSvc{}, stubAcctSvc{}, stubCopySvc{})
		r := newTestRouter(h)

		w := postJSON(r, "/suggestions", `{"action_type":"reply","prompt_context":"x"}`, nil)
		if w.Code != http.StatusPaymentRequired {
			t.Fatalf("%v: status %d", tc.err, w.Code)
		}
		var resp QuotaResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Success {
			t.Fatalf("quota envelope must carry success=false")
		}
		if resp.Error != tc.code {
			t.Fatalf("%v: code %q", tc.err, resp.Error)
		}
		if resp.Message == "" {
			t.Fatalf("quota envelope needs a user-facing message")
		}
	}
}

func TestPostSuggestions_CascadeFailureIs200(t *testing.T) {
	h := New(stubSugSvc{generate: func(_ context.Context, _ identity.Hint, _ services.SuggestionInput) (*services.SuggestionResult, error) {
		return &services.SuggestionResult{Success: false, Fallback: services.FallbackReply}, nil
	}}, stubUnlockSvc{}, stubAcctSvc{}, stubCopySvc{})
	r := newTestRouter(h)

	w := postJSON(r, "/suggestions", `{"action_type":"reply","prompt_context":"x"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("all-providers-failed must still be 200, got %d", w.Code)
	}
	var resp FallbackResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || resp.Reply != services.FallbackReply {
		t.Fatalf("fallback envelope: %+v", resp)
	}
}

func TestPostSuggestions_BadRequests(t *testing.T) {
	h := New(stubSugSvc{generate: func(_ context.Context, _ identity.Hint, _ services.SuggestionInput) (*services.SuggestionResult, error) {
		return nil, services.ErrUnknownAction
	}}, stubUnlockSvc{}, stubAcctSvc{}, stubCopySvc{})
	r := newTestRouter(h)

	// Missing action_type fails binding.
	if w := postJSON(r, "/suggestions", `{}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing action_type -> %d", w.Code)
	}
	// Malformed JSON.
	if w := postJSON(r, "/suggestions", `{bad`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json -> %d", w.Code)
	}
	// Service-level rejection.
	if w := postJSON(r, "/suggestions", `{"action_type":"roast","prompt_context":"x"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown action -> %d", w.Code)
	}
}

func TestPostSuggestions_ReplayHeader(t *testing.T) {
	h := New(stubSugSvc{generate: func(_ context.Context, _ identity.Hint, _ services.SuggestionInput) (*services.SuggestionResult, error) {
		return &services.SuggestionResult{
			Success:          true,
			Suggestions:      []string{"same as before"},
			Reply:            &domain.LockedReply{ID: "r1", Unlocked: true},
			Replayed:         true,
			CreditsRemaining: -1,
		}, nil
	}}, stubUnlockSvc{}, stubAcctSvc{}, stubCopySvc{})
	r := newTestRouter(h)

	w := postJSON(r, "/suggestions", `{"action_type":"reply","prompt_context":"x"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay header missing")
	}
}

func TestPostSuggestions_Unidentifiable(t *testing.T) {
	h := New(stubSugSvc{generate: func(_ context.Context, _ identity.Hint, _ services.SuggestionInput) (*services.SuggestionResult, error) {
		return nil, identity.ErrCallerUnidentifiable
	}}, stubUnlockSvc{}, stubAcctSvc{}, stubCopySvc{})
	r := newTestRouter(h)

	if w := postJSON(r, "/suggestions", `{"action_type":"reply","prompt_context":"x"}`, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unidentifiable -> %d", w.Code)
	}
}
