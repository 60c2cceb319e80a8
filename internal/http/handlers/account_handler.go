// Account and analytics HTTP handlers.
//
// This file exposes:
//   - GET  /account       (caller's tier and remaining allowance)
//   - POST /events/copy   (record that a suggestion was copied)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wingman-backend/internal/identity"
	"github.com/tbourn/go-wingman-backend/internal/services"
)

// CopyEventRequest is the JSON payload for recording a copy event.
type CopyEventRequest struct {
	// ReplyID references the stored reply, when the client has one.
	ReplyID string `json:"reply_id,omitempty"`
	// ActionType is the flavor of the copied suggestion.
	ActionType string `json:"action_type" binding:"required" example:"opener"`
}

// GetAccount godoc
// @ID          getAccount
// @Summary     Account status
// @Description Returns the caller's tier and quota counters after lazy period rollover.
// @Tags        Account
// @Produce     json
//
// @Param       X-User-ID    header  string  false "Authenticated user id"
// @Param       X-Device-ID  header  string  false "Guest device fingerprint"
//
// @Success     200  {object}  services.AccountStatus
// @Failure     401  {object}  handlers.ErrorResponse  "Caller unidentifiable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /account [get]
func (h *Handlers) GetAccount(c *gin.Context) {
	ctx := c.Request.Context()

	st, err := h.acctSvc.Status(ctx, callerHint(c))
	if err != nil {
		if errors.Is(err, identity.ErrCallerUnidentifiable) {
			fail(c, http.StatusUnauthorized, ErrCodeUnidentifiable, "caller could not be identified")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "account lookup failed")
		return
	}
	ok(c, http.StatusOK, st)
}

// PostCopyEvent godoc
// @ID          postCopyEvent
// @Summary     Record a copy event
// @Description Records that the caller copied a generated suggestion. Analytics only.
// @Tags        Events
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID    header  string  false "Authenticated user id"
// @Param       X-Device-ID  header  string  false "Guest device fingerprint"
// @Param       body         body    handlers.CopyEventRequest  true  "Copy event payload"
//
// @Success     204  "Recorded"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /events/copy [post]
func (h *Handlers) PostCopyEvent(c *gin.Context) {
	ctx := c.Request.Context()

	var req CopyEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action_type required")
		return
	}

	hint := callerHint(c)
	id, found := identity.Resolve(hint)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnidentifiable, "caller could not be identified")
		return
	}

	err := h.copySvc.RecordCopy(ctx, id.OwnerKey(), strings.TrimSpace(req.ReplyID), strings.ToLower(req.ActionType))
	if err != nil {
		if errors.Is(err, services.ErrUnknownAction) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action_type must be opener, reply, or ocr")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "event not recorded")
		return
	}
	noContent(c)
}
