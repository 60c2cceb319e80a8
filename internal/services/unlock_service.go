// Package services – UnlockService
//
// Unlocking reveals the full text of a gated reply. The operation is
// idempotent: the first call flips the row (and, when the gateway is
// configured to charge at unlock time, commits the deferred charge); every
// later call returns identical content without re-flagging or re-charging.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-wingman-backend/internal/domain"
	"github.com/tbourn/go-wingman-backend/internal/identity"
	"github.com/tbourn/go-wingman-backend/internal/ledger"
	"github.com/tbourn/go-wingman-backend/internal/repo"
	"github.com/tbourn/go-wingman-backend/internal/vault"
)

// UnlockResult carries the revealed reply.
type UnlockResult struct {
	Reply       *domain.LockedReply
	Suggestions []string
	// Flipped is true only on the call that actually performed the unlock.
	Flipped bool
	Charged bool
}

// UnlockService handles reveal and latest-lock lookups.
type UnlockService struct {
	DB         *gorm.DB
	Classifier *identity.Classifier
	Vault      *vault.Vault
	Ledger     *ledger.Ledger

	// ChargeOnUnlock mirrors the gateway-wide policy decision: when true,
	// gated replies were stored without a charge and the unlock pays for them.
	ChargeOnUnlock bool
}

// Unlock reveals the reply's full text for its owner. When the deferred
// charge policy is active, allowance is re-checked before the flip so an
// exhausted caller cannot keep unlocking for free.
func (s *UnlockService) Unlock(ctx context.Context, hint identity.Hint, replyID string) (*UnlockResult, error) {
	tr := otel.Tracer("services/UnlockService")
	ctx, span := tr.Start(ctx, "Unlock",
		trace.WithAttributes(attribute.String("reply.id", replyID)),
	)
	defer span.End()

	id, tier, acct, err := s.Classifier.Classify(ctx, hint)
	if err != nil {
		return nil, err
	}
	ownerKey := id.OwnerKey()

	current, err := repo.GetLockedReply(ctx, s.DB, replyID, ownerKey)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrReplyNotFound
		}
		return nil, err
	}

	// The guarded flip doubles as the charge claim: flip and charge share
	// one transaction, so racing reveals of the same reply pay exactly once
	// and a failed charge rolls the flip back.
	if s.ChargeOnUnlock && !current.Unlocked {
		if err := s.Ledger.Allowance(acct, tier, time.Now().UTC()); err != nil {
			return nil, err
		}
		var flipped bool
		err = s.DB.Transaction(func(tx *gorm.DB) error {
			won, err := repo.MarkUnlocked(ctx, tx, replyID, ownerKey)
			if err != nil {
				return err
			}
			if !won {
				// A concurrent reveal claimed the flip and paid.
				return nil
			}
			if _, err := s.Ledger.CommitTx(ctx, tx, acct, tier); err != nil {
				return err
			}
			flipped = true
			return nil
		})
		if err != nil {
			return nil, err
		}
		current.Unlocked = true
		current.UpdatedAt = time.Now().UTC()
		return &UnlockResult{
			Reply:       current,
			Suggestions: vault.Suggestions(current),
			Flipped:     flipped,
			Charged:     flipped,
		}, nil
	}

	r, flipped, err := s.Vault.Unlock(ctx, ownerKey, replyID)
	if err != nil {
		if errors.Is(err, vault.ErrLockNotFound) {
			return nil, ErrReplyNotFound
		}
		return nil, err
	}
	return &UnlockResult{
		Reply:       r,
		Suggestions: vault.Suggestions(r),
		Flipped:     flipped,
	}, nil
}

// Latest reveals nothing: it returns the caller's most recent still-locked
// reply with previews only, for the client's lock banner.
func (s *UnlockService) Latest(ctx context.Context, hint identity.Hint) (*domain.LockedReply, []string, error) {
	id, _, _, err := s.Classifier.Classify(ctx, hint)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.Vault.Latest(ctx, id.OwnerKey())
	if err != nil {
		if errors.Is(err, vault.ErrNoLockedReply) {
			return nil, nil, ErrReplyNotFound
		}
		return nil, nil, err
	}
	return r, vault.Previews(r), nil
}
