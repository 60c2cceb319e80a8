package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-wingman-backend/internal/domain"
	"github.com/tbourn/go-wingman-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.UsageAccount{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newLedger(db *gorm.DB) *Ledger {
	return &Ledger{
		DB:                 db,
		FreeDailyCap:       5,
		RegisteredDailyCap: 10,
		DailyPeriod:        24 * time.Hour,
		WeeklyPeriod:       7 * 24 * time.Hour,
	}
}

func seedAccount(t *testing.T, db *gorm.DB, ownerKey, ownerKind string, credits int) *domain.UsageAccount {
	t.Helper()
	a, err := repo.GetOrCreateAccount(context.Background(), db, ownerKey, ownerKind, credits, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

func TestRollover_ZeroesStaleCountersOnly(t *testing.T) {
	now := time.Now().UTC()
	a := domain.UsageAccount{
		DailyActionCount:  7,
		DailyResetAt:      now.Add(-time.Minute),
		WeeklyActionCount: 12,
		WeeklyResetAt:     now.Add(time.Hour),
	}

	out := Rollover(a, now, 24*time.Hour, 7*24*time.Hour)
	if out.DailyActionCount != 0 {
		t.Fatalf("stale daily counter not zeroed: %d", out.DailyActionCount)
	}
	if !out.DailyResetAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("daily reset stamp not advanced: %v", out.DailyResetAt)
	}
	if out.WeeklyActionCount != 12 {
		t.Fatalf("fresh weekly counter must survive, got %d", out.WeeklyActionCount)
	}

	// Input is passed by value; the caller's copy must be untouched.
	if a.DailyActionCount != 7 {
		t.Fatalf("Rollover mutated its input: %d", a.DailyActionCount)
	}
}

func TestRollover_ExactBoundaryResets(t *testing.T) {
	now := time.Now().UTC()
	a := domain.UsageAccount{
		DailyActionCount: 3,
		DailyResetAt:     now, // exactly due
		WeeklyResetAt:    now.Add(time.Hour),
	}
	out := Rollover(a, now, 24*time.Hour, 7*24*time.Hour)
	if out.DailyActionCount != 0 {
		t.Fatalf("counter due exactly now must reset, got %d", out.DailyActionCount)
	}
}

func TestAllowance_GuestCredits(t *testing.T) {
	db := newTestDB(t)
	l := newLedger(db)
	now := time.Now().UTC()

	withCredits := seedAccount(t, db, "device:d1", "device", 2)
	if err := l.Allowance(withCredits, domain.TierGuest, now); err != nil {
		t.Fatalf("guest with credits must pass, got %v", err)
	}

	broke := seedAccount(t, db, "device:d2", "device", 0)
	if err := l.Allowance(broke, domain.TierGuest, now); err != ErrTrialExpired {
		t.Fatalf("expected ErrTrialExpired, got %v", err)
	}
}

func TestAllowance_DailyCaps(t *testing.T) {
	db := newTestDB(t)
	l := newLedger(db)
	now := time.Now().UTC()

	a := seedAccount(t, db, "user:u1", "user", 0)
	a.DailyActionCount = l.FreeDailyCap
	a.DailyResetAt = now.Add(time.Hour)

	if err := l.Allowance(a, domain.TierFreeRegistered, now); err != ErrQuotaExhausted {
		t.Fatalf("free at cap: expected ErrQuotaExhausted, got %v", err)
	}
	// The registered cap is higher; the same count passes there.
	if err := l.Allowance(a, domain.TierRegistered, now); err != nil {
		t.Fatalf("registered under cap must pass, got %v", err)
	}

	a.DailyActionCount = l.RegisteredDailyCap
	if err := l.Allowance(a, domain.TierRegistered, now); err != ErrQuotaExhausted {
		t.Fatalf("registered at cap: expected ErrQuotaExhausted, got %v", err)
	}
}

func TestAllowance_StaleCounterPassesAfterRollover(t *testing.T) {
	db := newTestDB(t)
	l := newLedger(db)
	now := time.Now().UTC()

	a := seedAccount(t, db, "user:u1", "user", 0)
	a.DailyActionCount = l.FreeDailyCap + 3
	a.DailyResetAt = now.Add(-time.Minute)

	if err := l.Allowance(a, domain.TierFreeRegistered, now); err != nil {
		t.Fatalf("stale period must roll over before the cap check, got %v", err)
	}
}

func TestAllowance_SubscriberNeverRejected(t *testing.T) {
	db := newTestDB(t)
	l := newLedger(db)
	now := time.Now().UTC()

	a := seedAccount(t, db, "user:sub", "user", 0)
	a.DailyActionCount = 100000
	a.DailyResetAt = now.Add(time.Hour)

	if err := l.Allowance(a, domain.TierSubscriber, now); err != nil {
		t.Fatalf("subscriber must never be rejected, got %v", err)
	}
}

func TestCommit_GuestSpendsOneCreditAndFloors(t *testing.T) {
	db := newTestDB(t)
	l := newLedger(db)

	a := seedAccount(t, db, "device:d1", "device", 1)

	updated, err := l.Commit(context.Background(), a, domain.TierGuest)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if updated.LifetimeCreditsRemaining != 0 {
		t.Fatalf("expected 0 credits, got %d", updated.LifetimeCreditsRemaining)
	}

	// The race-loser commit bottoms out instead of going negative.
	updated, err = l.Commit(context.Background(), a, domain.TierGuest)
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if updated.LifetimeCreditsRemaining != 0 {
		t.Fatalf("credits went negative: %d", updated.LifetimeCreditsRemaining)
	}
}

func TestCommit_RegisteredIncrementsDaily(t *testing.T) {
	db := newTestDB(t)
	l := newLedger(db)

	a := seedAccount(t, db, "user:u1", "user", 0)

	for i := 1; i <= 3; i++ {
		updated, err := l.Commit(context.Background(), a, domain.TierRegistered)
		if err != nil {
			t.Fatalf("Commit %d: %v", i, err)
		}
		if updated.DailyActionCount != i {
			t.Fatalf("expected count %d, got %d", i, updated.DailyActionCount)
		}
	}
}

func TestCommit_SubscriberWeeklyPath(t *testing.T) {
	db := newTestDB(t)
	l := newLedger(db)

	a := seedAccount(t, db, "user:legacy", "user", 0)
	if err := db.Model(a).Update("legacy_weekly", true).Error; err != nil {
		t.Fatalf("mark legacy: %v", err)
	}
	a.LegacyWeekly = true

	updated, err := l.Commit(context.Background(), a, domain.TierSubscriber)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if updated.WeeklyActionCount != 1 {
		t.Fatalf("expected weekly count 1, got %d", updated.WeeklyActionCount)
	}
	if updated.DailyActionCount != 0 {
		t.Fatalf("daily counter must be untouched on the weekly path, got %d", updated.DailyActionCount)
	}
}

func TestCommit_ConcurrentChargesExactlyN(t *testing.T) {
	db := newTestDB(t)
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	l := newLedger(db)

	a := seedAccount(t, db, "user:u1", "user", 0)

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := l.Commit(context.Background(), a, domain.TierRegistered); err != nil {
				t.Errorf("Commit: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := repo.GetAccount(context.Background(), db, a.OwnerKey)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.DailyActionCount != n {
		t.Fatalf("expected exactly %d charges, got %d", n, got.DailyActionCount)
	}
}
