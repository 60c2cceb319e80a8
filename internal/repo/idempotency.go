// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to implement safe-retry semantics for the generation endpoint.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-wingman-backend/internal/domain"
)

// ErrDuplicate indicates that an idempotency record already exists for the
// given (owner_key, action_type, key) tuple.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, ownerKey, actionType, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(ownerKey) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("owner_key = ? AND action_type = ? AND key = ? AND expires_at > ?", ownerKey, actionType, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &rec, err
}

// HasIdempotency reports whether any non-expired record exists for the owner
// and key, regardless of action type. Used by the transport-level replay
// detection, which runs before the request body (and thus the action type)
// has been read.
func HasIdempotency(ctx context.Context, db *gorm.DB, ownerKey, key string, now time.Time) (bool, error) {
	if strings.TrimSpace(ownerKey) == "" {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).Model(&domain.Idempotency{}).
		Where("owner_key = ? AND key = ? AND expires_at > ?", ownerKey, key, now).
		Count(&n).Error
	return n > 0, err
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique violation.
func CreateIdempotency(ctx context.Context, db *gorm.DB, ownerKey, actionType, key, replyID, eventID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		OwnerKey:   ownerKey,
		ActionType: actionType,
		Key:        key,
		ReplyID:    replyID,
		EventID:    eventID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
