package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-wingman-backend/internal/domain"
	"github.com/tbourn/go-wingman-backend/internal/provider"
	"github.com/tbourn/go-wingman-backend/internal/repo"
)

// EventService records immutable analytics events. Recording is best effort:
// a failed event write is logged and swallowed so it can never fail a
// request that already produced output for the user.
type EventService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewEventService constructs an EventService.
func NewEventService(db *gorm.DB) *EventService {
	return &EventService{DB: db}
}

// RecordGeneration summarizes one cascade execution into a GenerationEvent
// and returns its ID, or "" when the write failed.
func (s *EventService) RecordGeneration(ctx context.Context, ownerKey, tier, actionType, source string, out provider.Outcome) string {
	ev := &domain.GenerationEvent{
		OwnerKey:     ownerKey,
		Tier:         tier,
		ActionType:   actionType,
		Provider:     out.Provider,
		ModelUsed:    out.Model,
		Effort:       out.Effort,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
		Attempts:     len(out.Attempts),
		Success:      out.Success,
		Source:       source,
	}
	saved, err := repo.CreateGenerationEvent(ctx, s.DB, ev)
	if err != nil {
		log.Error().Err(err).Str("owner_key", ownerKey).Msg("record generation event")
		return ""
	}
	return saved.ID
}

// RecordCopy records that the caller copied a suggestion. ReplyID may be
// empty for ungated generations the client never persisted.
func (s *EventService) RecordCopy(ctx context.Context, ownerKey, replyID, actionType string) error {
	switch actionType {
	case domain.ActionOpener, domain.ActionReply, domain.ActionOCR:
	default:
		return ErrUnknownAction
	}
	_, err := repo.CreateCopyEvent(ctx, s.DB, ownerKey, replyID, actionType)
	return err
}
