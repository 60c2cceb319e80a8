// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the LockedReply
// model used by the content vault.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-wingman-backend/internal/domain"
)

// CreateLockedReply inserts a stored reply row owned by ownerKey. The reply
// ID is a randomly generated UUID, and CreatedAt is set to UTC.
func CreateLockedReply(ctx context.Context, db *gorm.DB, ownerKey, actionType, fullText, preview, modelUsed string, unlocked bool) (*domain.LockedReply, error) {
	r := &domain.LockedReply{
		ID:         uuid.NewString(),
		OwnerKey:   ownerKey,
		ActionType: actionType,
		FullText:   fullText,
		Preview:    preview,
		ModelUsed:  modelUsed,
		Unlocked:   unlocked,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetLockedReply fetches a single reply by its ID and owner. If the record
// does not exist (or is owned by someone else), it returns ErrNotFound.
func GetLockedReply(ctx context.Context, db *gorm.DB, id, ownerKey string) (*domain.LockedReply, error) {
	var r domain.LockedReply
	err := db.WithContext(ctx).
		Where("id = ? AND owner_key = ?", id, ownerKey).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReply fetches a reply by ID regardless of owner. Used by the
// idempotency replay path, which has already proven ownership through the
// (owner, key) lookup.
func GetReply(ctx context.Context, db *gorm.DB, id string) (*domain.LockedReply, error) {
	var r domain.LockedReply
	if err := db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestLockedReply returns the most recent still-locked reply for ownerKey,
// or ErrNotFound. Duplicate pending locks from concurrent generations are
// possible by design; latest wins for display.
func LatestLockedReply(ctx context.Context, db *gorm.DB, ownerKey string) (*domain.LockedReply, error) {
	var r domain.LockedReply
	err := db.WithContext(ctx).
		Where("owner_key = ? AND unlocked = ?", ownerKey, false).
		Order("created_at desc").
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkUnlocked flips the unlocked flag for a reply owned by ownerKey. It
// only matches still-locked rows, so the flip happens at most once; callers
// distinguish "already unlocked" from "missing" by reading the row first.
func MarkUnlocked(ctx context.Context, db *gorm.DB, id, ownerKey string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.LockedReply{}).
		Where("id = ? AND owner_key = ? AND unlocked = ?", id, ownerKey, false).
		Update("unlocked", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
