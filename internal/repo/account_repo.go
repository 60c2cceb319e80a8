// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// UsageAccount model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. The single exception is the family of
// atomic counter mutations, which exist here because lost-update prevention
// is a property of the SQL they emit, not of the calling service.
//
// Error semantics:
//   - When an account is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-wingman-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetAccount fetches the usage account for ownerKey, or ErrNotFound.
func GetAccount(ctx context.Context, db *gorm.DB, ownerKey string) (*domain.UsageAccount, error) {
	var a domain.UsageAccount
	err := db.WithContext(ctx).
		Where("owner_key = ?", ownerKey).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetOrCreateAccount returns the account for ownerKey, creating it with the
// given initial credit grant when no row exists yet. Creation races from
// concurrent first requests are resolved by the unique owner index: on a
// conflict the insert is a no-op and the winner's row is re-read.
func GetOrCreateAccount(ctx context.Context, db *gorm.DB, ownerKey, ownerKind string, initialCredits int, now time.Time) (*domain.UsageAccount, error) {
	if a, err := GetAccount(ctx, db, ownerKey); err == nil {
		return a, nil
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	fresh := &domain.UsageAccount{
		ID:                       uuid.NewString(),
		OwnerKey:                 ownerKey,
		OwnerKind:                ownerKind,
		LifetimeCreditsRemaining: initialCredits,
		DailyResetAt:             now.Add(24 * time.Hour),
		WeeklyResetAt:            now.Add(7 * 24 * time.Hour),
		CreatedAt:                now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_key"}},
			DoNothing: true,
		}).
		Create(fresh).Error
	if err != nil {
		return nil, err
	}
	// Re-fetch: on conflict the struct above was not populated from the
	// existing row.
	return GetAccount(ctx, db, ownerKey)
}

// DecrementCredits atomically spends one lifetime credit for ownerKey,
// refusing to go below zero. It reports whether a credit was actually spent:
// RowsAffected == 0 means the balance was already exhausted (or the account
// is missing), in which case (false, nil) is returned.
func DecrementCredits(ctx context.Context, db *gorm.DB, ownerKey string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.UsageAccount{}).
		Where("owner_key = ? AND lifetime_credits_remaining >= 1", ownerKey).
		Update("lifetime_credits_remaining", gorm.Expr("lifetime_credits_remaining - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementDaily atomically increments the daily action counter for ownerKey.
// The caller is responsible for applying period rollover first (see the
// ledger package); this function only performs the raw increment.
func IncrementDaily(ctx context.Context, db *gorm.DB, ownerKey string) error {
	return incrementCounter(ctx, db, ownerKey, "daily_action_count")
}

// IncrementWeekly atomically increments the legacy weekly counter for ownerKey.
func IncrementWeekly(ctx context.Context, db *gorm.DB, ownerKey string) error {
	return incrementCounter(ctx, db, ownerKey, "weekly_action_count")
}

func incrementCounter(ctx context.Context, db *gorm.DB, ownerKey, column string) error {
	res := db.WithContext(ctx).
		Model(&domain.UsageAccount{}).
		Where("owner_key = ?", ownerKey).
		Update(column, gorm.Expr(column+" + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ResetPeriod zeroes one counter and advances its reset stamp in a single
// guarded UPDATE. The resetAt predicate makes concurrent rollovers idempotent:
// only the request that observes the stale stamp performs the reset, later
// ones see RowsAffected == 0 and that is fine.
func ResetPeriod(ctx context.Context, db *gorm.DB, ownerKey, counterCol, resetCol string, staleBefore, nextReset time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.UsageAccount{}).
		Where("owner_key = ? AND "+resetCol+" <= ?", ownerKey, staleBefore).
		Updates(map[string]interface{}{
			counterCol: 0,
			resetCol:   nextReset,
		})
	return res.Error
}

// DeleteAccount soft-deletes the account row (account deletion flow only;
// quota logic never deletes accounts).
func DeleteAccount(ctx context.Context, db *gorm.DB, ownerKey string) error {
	res := db.WithContext(ctx).
		Where("owner_key = ?", ownerKey).
		Delete(&domain.UsageAccount{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
