package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-wingman-backend/internal/domain"
	"github.com/tbourn/go-wingman-backend/internal/identity"
	"github.com/tbourn/go-wingman-backend/internal/ledger"
)

// AccountStatus is the caller-facing view of their quota state. Counters are
// shown after lazy rollover, so a stale stored row never surfaces.
type AccountStatus struct {
	Tier             string    `json:"tier"`
	OwnerKind        string    `json:"owner_kind"`
	CreditsRemaining int       `json:"credits_remaining"`
	TrialCredits     bool      `json:"trial_credits"`
	DailyActionCount int       `json:"daily_action_count"`
	DailyResetAt     time.Time `json:"daily_reset_at"`
	IsSubscribed     bool      `json:"is_subscribed"`
}

// AccountService resolves the caller's current tier and counters.
type AccountService struct {
	DB         *gorm.DB
	Classifier *identity.Classifier
	Ledger     *ledger.Ledger
}

// Status classifies the caller and returns the rolled-over quota view.
func (s *AccountService) Status(ctx context.Context, hint identity.Hint) (*AccountStatus, error) {
	id, tier, acct, err := s.Classifier.Classify(ctx, hint)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rolled := ledger.Rollover(*acct, now, s.Ledger.DailyPeriod, s.Ledger.WeeklyPeriod)

	st := &AccountStatus{
		Tier:             tier,
		OwnerKind:        id.Kind,
		DailyActionCount: rolled.DailyActionCount,
		DailyResetAt:     rolled.DailyResetAt,
		IsSubscribed:     rolled.SubscriptionActive(now),
	}
	st.CreditsRemaining, st.TrialCredits = remaining(tier, &rolled, s.Ledger)
	if tier == domain.TierSubscriber && rolled.LegacyWeekly {
		st.DailyActionCount = rolled.WeeklyActionCount
		st.DailyResetAt = rolled.WeeklyResetAt
	}
	return st, nil
}
