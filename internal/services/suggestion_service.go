// Package services – SuggestionService
//
// This file implements the central generation flow: classify the caller into
// a tier, pre-check allowance, resolve the degradation policy into a model
// cascade, execute the cascade, and on success commit the charge and persist
// the reply. Failed cascades never mutate the ledger; the caller receives a
// safe placeholder instead.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-wingman-backend/internal/domain"
	"github.com/tbourn/go-wingman-backend/internal/identity"
	"github.com/tbourn/go-wingman-backend/internal/ledger"
	"github.com/tbourn/go-wingman-backend/internal/policy"
	"github.com/tbourn/go-wingman-backend/internal/provider"
	"github.com/tbourn/go-wingman-backend/internal/repo"
	"github.com/tbourn/go-wingman-backend/internal/vault"
)

// FallbackReply is returned when every cascade entry failed. The request is
// still answered (no charge) so clients degrade gracefully.
const FallbackReply = "Sorry, I couldn't come up with anything just now. Please try again in a moment."

// SuggestionInput carries one generation request after transport decoding.
type SuggestionInput struct {
	ActionType         string
	PromptContext      string
	Tone               string
	CustomInstructions string
	ImageBase64        string
	ImageMIME          string

	// Count optionally lowers how many suggestions are generated; zero or
	// out-of-range values fall back to the configured default.
	Count int

	// IdempotencyKey, when set, makes retries of the same request replay the
	// recorded result instead of generating and charging again.
	IdempotencyKey string
}

// SuggestionResult is the service-level outcome handed to the handler.
type SuggestionResult struct {
	Success     bool
	Suggestions []string
	Previews    []string
	Reply       *domain.LockedReply
	Locked      bool

	Tier             string
	ModelUsed        string
	Effort           string
	ThinkingUsed     bool
	CreditsRemaining int
	TrialCredits     bool
	EventID          string
	Replayed         bool

	// Fallback holds the placeholder text when Success is false.
	Fallback string
}

// SuggestionService orchestrates the full generation flow.
type SuggestionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Classifier resolves caller identity and tier.
	Classifier *identity.Classifier
	// Policy resolves tier + usage into a model cascade.
	Policy *policy.Resolver
	// Ledger owns all quota mutation.
	Ledger *ledger.Ledger
	// Vault persists generated output.
	Vault *vault.Vault
	// Executor runs the provider cascade.
	Executor *provider.Executor
	// Events records analytics.
	Events *EventService

	// SuggestionCount is how many suggestions each generation requests.
	SuggestionCount int
	// MaxContextRunes caps the prompt context by rune length (0 disables).
	MaxContextRunes int
	// LockThreshold soft-locks subscriber replies once the daily count
	// reaches it (0 disables gating).
	LockThreshold int
	// ChargeOnUnlock defers the charge for gated replies to the unlock call.
	ChargeOnUnlock bool
	// IdempotencyTTL bounds how long a recorded key replays.
	IdempotencyTTL time.Duration
}

// Generate runs one suggestion request end to end.
func (s *SuggestionService) Generate(ctx context.Context, hint identity.Hint, in SuggestionInput) (*SuggestionResult, error) {
	tr := otel.Tracer("services/SuggestionService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(attribute.String("action.type", in.ActionType)),
	)
	defer span.End()

	if err := s.validate(&in); err != nil {
		return nil, err
	}

	id, tier, acct, err := s.Classifier.Classify(ctx, hint)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("caller.tier", tier))
	ownerKey := id.OwnerKey()

	if in.IdempotencyKey != "" {
		if res, ok := s.replay(ctx, ownerKey, tier, acct, in); ok {
			return res, nil
		}
	}

	now := time.Now().UTC()
	rolled := ledger.Rollover(*acct, now, s.Ledger.DailyPeriod, s.Ledger.WeeklyPeriod)

	// Allowance pre-check: nothing is spent on providers for a caller who
	// could not be charged afterwards.
	if err := s.Ledger.Allowance(acct, tier, now); err != nil {
		return nil, err
	}

	sel := s.Policy.Resolve(tier, in.ActionType, &rolled)

	count := s.SuggestionCount
	if in.Count > 0 && in.Count < count {
		count = in.Count
	}
	system, user := buildPrompts(in.ActionType, in.PromptContext, in.Tone, in.CustomInstructions, count)
	req := provider.Request{
		SystemPrompt: system,
		UserPrompt:   user,
		ImageBase64:  in.ImageBase64,
		ImageMIME:    in.ImageMIME,
	}

	out := s.Executor.Execute(ctx, req, sel.Cascade)

	// Post-response work must survive a client disconnect: once the cascade
	// succeeded the charge and the stored reply are owed regardless.
	bg := context.WithoutCancel(ctx)

	if !out.Success {
		eventID := s.Events.RecordGeneration(bg, ownerKey, tier, in.ActionType, "api", out)
		log.Warn().
			Str("owner_key", ownerKey).
			Str("tier", tier).
			Int("attempts", len(out.Attempts)).
			Msg("cascade exhausted; returning placeholder, no charge")
		return &SuggestionResult{
			Success:  false,
			Tier:     tier,
			EventID:  eventID,
			Fallback: FallbackReply,
		}, nil
	}

	locked := s.shouldLock(tier, &rolled)

	var updated *domain.UsageAccount
	if locked && s.ChargeOnUnlock {
		// Charge deferred to the unlock call.
		updated = acct
	} else {
		updated, err = s.Ledger.Commit(bg, acct, tier)
		if err != nil {
			return nil, err
		}
	}

	reply, err := s.Vault.Store(bg, ownerKey, in.ActionType, out.Model, out.Suggestions, locked)
	if err != nil {
		return nil, err
	}
	eventID := s.Events.RecordGeneration(bg, ownerKey, tier, in.ActionType, "api", out)

	if in.IdempotencyKey != "" {
		if _, err := repo.CreateIdempotency(bg, s.DB, ownerKey, in.ActionType, in.IdempotencyKey, reply.ID, eventID, 200, s.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			log.Error().Err(err).Msg("record idempotency key")
		}
	}

	res := &SuggestionResult{
		Success:      true,
		Reply:        reply,
		Locked:       locked,
		Tier:         tier,
		ModelUsed:    out.Model,
		Effort:       out.Effort,
		ThinkingUsed: thinkingUsed(out.Effort),
		EventID:      eventID,
	}
	if locked {
		res.Previews = vault.Previews(reply)
	} else {
		res.Suggestions = out.Suggestions
	}
	res.CreditsRemaining, res.TrialCredits = remaining(tier, updated, s.Ledger)
	return res, nil
}

func (s *SuggestionService) validate(in *SuggestionInput) error {
	switch in.ActionType {
	case domain.ActionOpener, domain.ActionReply, domain.ActionOCR:
	default:
		return ErrUnknownAction
	}
	in.PromptContext = strings.TrimSpace(in.PromptContext)
	if in.PromptContext == "" && in.ImageBase64 == "" {
		return ErrEmptyContext
	}
	if s.MaxContextRunes > 0 && utf8.RuneCountInString(in.PromptContext) > s.MaxContextRunes {
		return ErrContextTooLong
	}
	return nil
}

// replay answers a retried request from its recorded reply, without touching
// providers or the ledger.
func (s *SuggestionService) replay(ctx context.Context, ownerKey, tier string, acct *domain.UsageAccount, in SuggestionInput) (*SuggestionResult, bool) {
	now := time.Now().UTC()
	rec, err := repo.GetIdempotency(ctx, s.DB, ownerKey, in.ActionType, in.IdempotencyKey, now)
	if err != nil || rec == nil {
		return nil, false
	}
	reply, err := repo.GetReply(ctx, s.DB, rec.ReplyID)
	if err != nil {
		return nil, false
	}
	res := &SuggestionResult{
		Success:   true,
		Reply:     reply,
		Locked:    !reply.Unlocked,
		Tier:      tier,
		ModelUsed: reply.ModelUsed,
		EventID:   rec.EventID,
		Replayed:  true,
	}
	if reply.Unlocked {
		res.Suggestions = vault.Suggestions(reply)
	} else {
		res.Previews = vault.Previews(reply)
	}
	// Report the live balance, not the one recorded at first execution.
	view := ledger.Rollover(*acct, now, s.Ledger.DailyPeriod, s.Ledger.WeeklyPeriod)
	res.CreditsRemaining, res.TrialCredits = remaining(tier, &view, s.Ledger)
	return res, true
}

// shouldLock decides whether this generation is gated behind an unlock. Only
// subscriber fair-use traffic past the threshold is soft-locked.
func (s *SuggestionService) shouldLock(tier string, rolled *domain.UsageAccount) bool {
	if s.LockThreshold <= 0 || tier != domain.TierSubscriber {
		return false
	}
	n := rolled.DailyActionCount
	if rolled.LegacyWeekly {
		n = rolled.WeeklyActionCount
	}
	return n >= s.LockThreshold
}

func thinkingUsed(effort string) bool {
	return effort == "medium" || effort == "high"
}

// remaining computes the user-facing credit figure for tier. Subscribers get
// -1, meaning unlimited.
func remaining(tier string, acct *domain.UsageAccount, l *ledger.Ledger) (n int, trial bool) {
	switch tier {
	case domain.TierGuest:
		return acct.LifetimeCreditsRemaining, true
	case domain.TierFreeRegistered:
		return capRemaining(l.FreeDailyCap, acct.DailyActionCount), false
	case domain.TierRegistered:
		return capRemaining(l.RegisteredDailyCap, acct.DailyActionCount), false
	default:
		return -1, false
	}
}

func capRemaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}
