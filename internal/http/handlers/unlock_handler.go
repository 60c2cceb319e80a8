// Locked-reply HTTP handlers.
//
// This file exposes the vault endpoints:
//   - POST /locks/{id}/unlock   (reveal the full text of a gated reply)
//   - GET  /locks/latest        (most recent still-locked reply, previews only)
//
// Unlocking is idempotent: repeating the call returns identical content and
// reports unlocked=true without re-charging.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-wingman-backend/internal/identity"
	"github.com/tbourn/go-wingman-backend/internal/ledger"
	"github.com/tbourn/go-wingman-backend/internal/services"
)

// UnlockResponse is the envelope for a revealed reply.
type UnlockResponse struct {
	Success     bool                `json:"success"`
	ReplyID     string              `json:"reply_id"`
	Suggestions []SuggestionMessage `json:"suggestions"`
	// Charged reports whether this call consumed quota (deferred-charge mode).
	Charged bool `json:"charged"`
}

// LatestLockResponse describes the caller's most recent locked reply.
type LatestLockResponse struct {
	ReplyID    string              `json:"reply_id"`
	ActionType string              `json:"action_type"`
	ModelUsed  string              `json:"model_used"`
	Previews   []SuggestionMessage `json:"previews"`
	CreatedAt  string              `json:"created_at"`
}

// Unlock godoc
// @ID          unlockReply
// @Summary     Unlock a gated reply
// @Description Reveals the full text of a locked reply owned by the caller. Idempotent:
// @Description repeated calls return the same content without re-charging.
// @Tags        Locks
// @Produce     json
//
// @Param       X-User-ID    header  string  false "Authenticated user id"
// @Param       X-Device-ID  header  string  false "Guest device fingerprint"
// @Param       id           path    string  true  "Reply ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.UnlockResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     402  {object}  handlers.QuotaResponse  "Quota exhausted (deferred charge)"
// @Failure     404  {object}  handlers.ErrorResponse  "Reply not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /locks/{id}/unlock [post]
func (h *Handlers) Unlock(c *gin.Context) {
	ctx := c.Request.Context()
	replyID := c.Param("id")

	if _, err := uuid.Parse(replyID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reply id must be a UUID")
		return
	}

	res, err := h.unlockSvc.Unlock(ctx, callerHint(c), replyID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrReplyNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "reply not found")
		case errors.Is(err, identity.ErrCallerUnidentifiable):
			fail(c, http.StatusUnauthorized, ErrCodeUnidentifiable, "caller could not be identified")
		case errors.Is(err, ledger.ErrTrialExpired):
			c.JSON(http.StatusPaymentRequired, QuotaResponse{Error: ErrCodeTrialExpired, Message: "your free trial credits are used up"})
		case errors.Is(err, ledger.ErrQuotaExhausted):
			c.JSON(http.StatusPaymentRequired, QuotaResponse{Error: ErrCodeInsufficientCredits, Message: "daily limit reached, try again tomorrow"})
		default:
			fail(c, http.StatusInternalServerError, ErrCodeUnlockFailed, "unlock failed")
		}
		return
	}

	ok(c, http.StatusOK, UnlockResponse{
		Success:     true,
		ReplyID:     res.Reply.ID,
		Suggestions: wrapMessages(res.Suggestions),
		Charged:     res.Charged,
	})
}

// LatestLock godoc
// @ID          latestLock
// @Summary     Latest locked reply
// @Description Returns the caller's most recent still-locked reply with previews only.
// @Description When concurrent generations created several locks, the newest wins.
// @Tags        Locks
// @Produce     json
//
// @Param       X-User-ID    header  string  false "Authenticated user id"
// @Param       X-Device-ID  header  string  false "Guest device fingerprint"
//
// @Success     200  {object}  handlers.LatestLockResponse
// @Failure     404  {object}  handlers.ErrorResponse  "No locked reply"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /locks/latest [get]
func (h *Handlers) LatestLock(c *gin.Context) {
	ctx := c.Request.Context()

	r, previews, err := h.unlockSvc.Latest(ctx, callerHint(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrReplyNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no locked reply")
		case errors.Is(err, identity.ErrCallerUnidentifiable):
			fail(c, http.StatusUnauthorized, ErrCodeUnidentifiable, "caller could not be identified")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "lookup failed")
		}
		return
	}

	ok(c, http.StatusOK, LatestLockResponse{
		ReplyID:    r.ID,
		ActionType: r.ActionType,
		ModelUsed:  r.ModelUsed,
		Previews:   wrapMessages(previews),
		CreatedAt:  r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}
