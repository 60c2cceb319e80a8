// Package ledger owns every quota and credit mutation in the gateway. Its
// central invariant: a caller is charged only for generations that produced
// usable output. The pre-check (Allowance) runs before any provider cost is
// incurred; the charge (Commit) runs only after the cascade succeeded.
// Nothing else in the codebase writes UsageAccount rows.
//
// Period rollover is an explicit pure function, not a persistence side
// effect, so the reset-before-increment ordering is directly testable.
//
// Concurrency: all persistent mutations are single-row atomic SQL
// (conditional UPDATE with increment expressions); two simultaneous
// successful generations for the same caller are both charged, never
// collapsed into one.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/tbourn/go-wingman-backend/internal/domain"
	"github.com/tbourn/go-wingman-backend/internal/repo"
)

// Quota rejections, distinguished so the transport layer can answer with the
// matching user-facing error code.
var (
	// ErrTrialExpired means a guest trial row has no lifetime credits left.
	ErrTrialExpired = errors.New("trial credits exhausted")

	// ErrQuotaExhausted means a registered caller hit its daily cap.
	ErrQuotaExhausted = errors.New("daily quota exhausted")
)

var quotaRejections = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quota_rejections_total",
		Help: "Requests rejected by the ledger pre-check, by tier.",
	},
	[]string{"tier"},
)

func init() {
	prometheus.MustRegister(quotaRejections)
}

// Ledger applies quota policy against UsageAccount rows.
type Ledger struct {
	// DB is the GORM handle used for all account mutations.
	DB *gorm.DB

	// FreeDailyCap caps free-registered accounts per daily period.
	FreeDailyCap int
	// RegisteredDailyCap caps registered non-subscribers per daily period.
	RegisteredDailyCap int
	// DailyPeriod is the rolling fair-use window (normally 24h).
	DailyPeriod time.Duration
	// WeeklyPeriod is the legacy fair-use window (normally 7d).
	WeeklyPeriod time.Duration
}

// Rollover returns a copy of the account with lazy period resets applied: a
// counter whose reset stamp has passed is zeroed and its stamp advanced by
// one period, before any increment the caller may apply. The stored row is
// not touched; persistent rollover happens inside Commit.
func Rollover(a domain.UsageAccount, now time.Time, daily, weekly time.Duration) domain.UsageAccount {
	if !now.Before(a.DailyResetAt) {
		a.DailyActionCount = 0
		a.DailyResetAt = now.Add(daily)
	}
	if !now.Before(a.WeeklyResetAt) {
		a.WeeklyActionCount = 0
		a.WeeklyResetAt = now.Add(weekly)
	}
	return a
}

// Allowance is the pre-check: it decides, before any provider call, whether
// the caller still has allowance for one more action. It never mutates
// anything. A nil return means the request may proceed to generation.
func (l *Ledger) Allowance(acct *domain.UsageAccount, tier string, now time.Time) error {
	view := Rollover(*acct, now, l.DailyPeriod, l.WeeklyPeriod)

	switch tier {
	case domain.TierGuest:
		if view.LifetimeCreditsRemaining < 1 {
			quotaRejections.WithLabelValues(tier).Inc()
			return ErrTrialExpired
		}
	case domain.TierFreeRegistered:
		if view.DailyActionCount >= l.FreeDailyCap {
			quotaRejections.WithLabelValues(tier).Inc()
			return ErrQuotaExhausted
		}
	case domain.TierRegistered:
		if view.DailyActionCount >= l.RegisteredDailyCap {
			quotaRejections.WithLabelValues(tier).Inc()
			return ErrQuotaExhausted
		}
	case domain.TierSubscriber:
		// Fair use degrades model quality instead of rejecting.
	}
	return nil
}

// Commit charges the caller for one successful generation and returns the
// account as stored afterwards. It must only be called after the cascade
// produced usable output; callers handle the Failure case by simply not
// calling Commit.
//
// Rollover is persisted first with a guarded UPDATE (idempotent under
// concurrency), then the tier's counter moves by exactly one via an atomic
// SQL increment.
func (l *Ledger) Commit(ctx context.Context, acct *domain.UsageAccount, tier string) (*domain.UsageAccount, error) {
	return l.CommitTx(ctx, l.DB, acct, tier)
}

// CommitTx is Commit against a caller-supplied handle, so the charge can
// share a transaction with another row mutation. The deferred unlock charge
// pairs with the lock-row flip this way.
func (l *Ledger) CommitTx(ctx context.Context, db *gorm.DB, acct *domain.UsageAccount, tier string) (*domain.UsageAccount, error) {
	now := time.Now().UTC()

	switch tier {
	case domain.TierGuest:
		// Floor at zero: a concurrent request may have spent the last credit
		// between pre-check and commit. The generation already happened, so
		// the charge simply bottoms out.
		if _, err := repo.DecrementCredits(ctx, db, acct.OwnerKey); err != nil {
			return nil, err
		}

	case domain.TierFreeRegistered, domain.TierRegistered:
		if err := l.rolloverDaily(ctx, db, acct, now); err != nil {
			return nil, err
		}
		if err := repo.IncrementDaily(ctx, db, acct.OwnerKey); err != nil {
			return nil, err
		}

	case domain.TierSubscriber:
		if acct.LegacyWeekly {
			if err := repo.ResetPeriod(ctx, db, acct.OwnerKey, "weekly_action_count", "weekly_reset_at", now, now.Add(l.WeeklyPeriod)); err != nil {
				return nil, err
			}
			if err := repo.IncrementWeekly(ctx, db, acct.OwnerKey); err != nil {
				return nil, err
			}
		} else {
			if err := l.rolloverDaily(ctx, db, acct, now); err != nil {
				return nil, err
			}
			if err := repo.IncrementDaily(ctx, db, acct.OwnerKey); err != nil {
				return nil, err
			}
		}
	}

	return repo.GetAccount(ctx, db, acct.OwnerKey)
}

// rolloverDaily persists the daily reset when the stored stamp is stale.
// The guarded UPDATE makes concurrent rollovers collapse to one.
func (l *Ledger) rolloverDaily(ctx context.Context, db *gorm.DB, acct *domain.UsageAccount, now time.Time) error {
	return repo.ResetPeriod(ctx, db, acct.OwnerKey, "daily_action_count", "daily_reset_at", now, now.Add(l.DailyPeriod))
}
