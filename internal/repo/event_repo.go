// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the immutable
// analytics events emitted by the gateway.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-wingman-backend/internal/domain"
)

// CreateGenerationEvent inserts an immutable generation record. The event ID
// is a randomly generated UUID, and CreatedAt is set to UTC.
func CreateGenerationEvent(ctx context.Context, db *gorm.DB, ev *domain.GenerationEvent) (*domain.GenerationEvent, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// CreateCopyEvent inserts a copy analytics record.
func CreateCopyEvent(ctx context.Context, db *gorm.DB, ownerKey, replyID, actionType string) (*domain.CopyEvent, error) {
	ev := &domain.CopyEvent{
		ID:         uuid.NewString(),
		OwnerKey:   ownerKey,
		ReplyID:    replyID,
		ActionType: actionType,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// CountGenerationEvents returns the number of generation events recorded for
// ownerKey since the given time. Used by analytics queries, not by quota
// enforcement (the ledger owns quota state).
func CountGenerationEvents(ctx context.Context, db *gorm.DB, ownerKey string, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.GenerationEvent{}).
		Where("owner_key = ? AND created_at >= ?", ownerKey, since).
		Count(&total).Error
	return total, err
}
