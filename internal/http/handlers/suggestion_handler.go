// Suggestion HTTP handlers.
//
// This file exposes the generation endpoint:
//   - POST /suggestions   (generate tiered AI suggestions for the caller)
//
// Handlers are transport-thin:
//   - extract the caller identity hint from headers/connection
//   - validate & normalize inputs
//   - delegate to application services (SuggestionService)
//   - translate quota and cascade outcomes into the wire protocol
//
// Protocol notes:
// Quota exhaustion is a business outcome, not a transport failure; it is
// answered with the {success:false, error, message} envelope. A cascade where
// every provider failed is still an HTTP 200 carrying a safe placeholder
// reply, because no credit was charged and the client can render it directly.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (caller, action, key), the handler returns that recorded
// generation and sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wingman-backend/internal/domain"
	"github.com/tbourn/go-wingman-backend/internal/http/middleware"
	"github.com/tbourn/go-wingman-backend/internal/identity"
	"github.com/tbourn/go-wingman-backend/internal/ledger"
	"github.com/tbourn/go-wingman-backend/internal/services"
	"github.com/tbourn/go-wingman-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SuggestionGenerator defines the generation flow consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SuggestionGenerator interface {
	// Generate runs one suggestion request end to end.
	Generate(ctx context.Context, hint identity.Hint, in services.SuggestionInput) (*services.SuggestionResult, error)
}

// Unlocker defines locked-reply reveal operations.
type Unlocker interface {
	// Unlock reveals the full text of a gated reply owned by the caller.
	Unlock(ctx context.Context, hint identity.Hint, replyID string) (*services.UnlockResult, error)
	// Latest returns the caller's most recent still-locked reply.
	Latest(ctx context.Context, hint identity.Hint) (*domain.LockedReply, []string, error)
}

// AccountReader resolves the caller's quota view.
type AccountReader interface {
	// Status classifies the caller and returns the rolled-over counters.
	Status(ctx context.Context, hint identity.Hint) (*services.AccountStatus, error)
}

// CopyRecorder records copy analytics events.
type CopyRecorder interface {
	// RecordCopy notes that the caller copied a suggestion.
	RecordCopy(ctx context.Context, ownerKey, replyID, actionType string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for suggestions, locks, and accounts.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	sugSvc    SuggestionGenerator
	unlockSvc Unlocker
	acctSvc   AccountReader
	copySvc   CopyRecorder
}

// New constructs and returns a Handlers instance bound to the given services.
func New(sug SuggestionGenerator, unlock Unlocker, acct AccountReader, cp CopyRecorder) *Handlers {
	return &Handlers{sugSvc: sug, unlockSvc: unlock, acctSvc: acct, copySvc: cp}
}

// callerHint assembles the identity hint for this request. Precedence is
// resolved downstream (user over device over IP); the hint just carries
// whatever the transport knows.
func callerHint(c *gin.Context) identity.Hint {
	h := identity.Hint{ClientIP: c.ClientIP()}
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok {
			h.UserID = s
		}
	}
	if h.UserID == "" {
		h.UserID = strings.TrimSpace(c.GetHeader("X-User-ID"))
	}
	h.Fingerprint = strings.TrimSpace(c.GetHeader("X-Device-ID"))
	return h
}

//
// DTOs
//

// SuggestionRequest is the JSON payload for requesting suggestions.
type SuggestionRequest struct {
	// ActionType selects the generation flavor: opener, reply, or ocr.
	ActionType string `json:"action_type" binding:"required" example:"opener"`
	// PromptContext is the match profile or conversation the model works from.
	PromptContext string `json:"prompt_context" example:"Her bio says she loves climbing and bad puns."`
	// Tone optionally steers style (e.g. playful, sincere).
	Tone string `json:"tone,omitempty" example:"playful"`
	// CustomInstructions are free-form user steering, appended verbatim.
	CustomInstructions string `json:"custom_instructions,omitempty"`
	// ImageBase64 carries a conversation screenshot for the ocr action.
	ImageBase64 string `json:"image_base64,omitempty"`
	// ImageMIME is the screenshot content type (default image/jpeg).
	ImageMIME string `json:"image_mime,omitempty" example:"image/jpeg"`
}

// SuggestionMessage wraps one generated suggestion.
type SuggestionMessage struct {
	Message string `json:"message"`
}

// SuggestionResponse is the success envelope for a generation.
type SuggestionResponse struct {
	Success bool `json:"success"`
	// Suggestions holds full texts for ungated results.
	Suggestions []SuggestionMessage `json:"suggestions,omitempty"`
	// Previews holds truncated texts when the result is soft-locked.
	Previews []SuggestionMessage `json:"previews,omitempty"`
	ReplyID  string              `json:"reply_id,omitempty"`
	Locked   bool                `json:"locked"`

	CreditsRemaining      *int   `json:"credits_remaining,omitempty"`
	TrialCreditsRemaining *int   `json:"trial_credits_remaining,omitempty"`
	ModelUsed             string `json:"model_used"`
	ThinkingUsed          bool   `json:"thinking_used"`
	GenerationEventID     string `json:"generation_event_id,omitempty"`
}

// QuotaResponse is the envelope for quota-exhausted outcomes.
type QuotaResponse struct {
	Success bool   `json:"success" example:"false"`
	Error   string `json:"error" example:"insufficient_credits"`
	Message string `json:"message" example:"daily limit reached"`
}

// FallbackResponse is the envelope when every provider failed. HTTP-level
// success is intentional: a safe placeholder was produced and nothing was
// charged.
type FallbackResponse struct {
	Success bool   `json:"success" example:"false"`
	Reply   string `json:"reply"`
}

func wrapMessages(texts []string) []SuggestionMessage {
	out := make([]SuggestionMessage, len(texts))
	for i, t := range texts {
		out[i] = SuggestionMessage{Message: t}
	}
	return out
}

//
// Handlers
//

// PostSuggestions godoc
// @ID          postSuggestions
// @Summary     Generate suggestions
// @Description Classifies the caller into a usage tier, resolves the model for that
// @Description tier and usage level, runs the provider cascade, and charges quota only
// @Description when generation succeeded. Supports idempotent retries via the
// @Description Idempotency-Key header.
// @Tags        Suggestions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Authenticated user id"  example(user123)
// @Param       X-Device-ID      header  string  false "Guest device fingerprint"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       count            query   int     false "Fewer suggestions than the default"  minimum(1)
// @Param       body             body    handlers.SuggestionRequest  true  "Generation request"
//
// @Success     200  {object}  handlers.SuggestionResponse  "Generated suggestions"
// @Failure     400  {object}  handlers.ErrorResponse       "Bad request"
// @Failure     402  {object}  handlers.QuotaResponse       "Quota exhausted"
// @Failure     500  {object}  handlers.ErrorResponse       "Internal error"
// @Router      /suggestions [post]
func (h *Handlers) PostSuggestions(c *gin.Context) {
	ctx := c.Request.Context()

	var req SuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action_type required")
		return
	}

	in := services.SuggestionInput{
		ActionType:         strings.ToLower(strings.TrimSpace(req.ActionType)),
		PromptContext:      req.PromptContext,
		Tone:               req.Tone,
		CustomInstructions: req.CustomInstructions,
		ImageBase64:        req.ImageBase64,
		ImageMIME:          req.ImageMIME,
		Count:              utils.AtoiDefault(c.Query("count"), 0),
	}
	if key, ok := middleware.GetIdempotencyKey(c); ok {
		in.IdempotencyKey = key
	}

	res, err := h.sugSvc.Generate(ctx, callerHint(c), in)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownAction):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action_type must be opener, reply, or ocr")
		case errors.Is(err, services.ErrEmptyContext):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "prompt_context or image required")
		case errors.Is(err, services.ErrContextTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "prompt_context too long")
		case errors.Is(err, identity.ErrCallerUnidentifiable):
			fail(c, http.StatusUnauthorized, ErrCodeUnidentifiable, "caller could not be identified")
		case errors.Is(err, ledger.ErrTrialExpired):
			c.JSON(http.StatusPaymentRequired, QuotaResponse{Error: ErrCodeTrialExpired, Message: "your free trial credits are used up"})
		case errors.Is(err, ledger.ErrQuotaExhausted):
			c.JSON(http.StatusPaymentRequired, QuotaResponse{Error: ErrCodeInsufficientCredits, Message: "daily limit reached, try again tomorrow"})
		default:
			fail(c, http.StatusInternalServerError, ErrCodeGenerationFailed, "generation failed")
		}
		return
	}

	if !res.Success {
		ok(c, http.StatusOK, FallbackResponse{Reply: res.Fallback})
		return
	}

	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}

	resp := SuggestionResponse{
		Success:           true,
		Locked:            res.Locked,
		ModelUsed:         res.ModelUsed,
		ThinkingUsed:      res.ThinkingUsed,
		GenerationEventID: res.EventID,
	}
	if res.Reply != nil {
		resp.ReplyID = res.Reply.ID
	}
	if res.Locked {
		resp.Previews = wrapMessages(res.Previews)
	} else {
		resp.Suggestions = wrapMessages(res.Suggestions)
	}
	if res.CreditsRemaining >= 0 {
		n := res.CreditsRemaining
		if res.TrialCredits {
			resp.TrialCreditsRemaining = &n
		} else {
			resp.CreditsRemaining = &n
		}
	}
	ok(c, http.StatusOK, resp)
}
