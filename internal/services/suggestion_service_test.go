package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-wingman-backend/internal/domain"
	"github.com/tbourn/go-wingman-backend/internal/identity"
	"github.com/tbourn/go-wingman-backend/internal/ledger"
	"github.com/tbourn/go-wingman-backend/internal/policy"
	"github.com/tbourn/go-wingman-backend/internal/provider"
	"github.com/tbourn/go-wingman-backend/internal/repo"
	"github.com/tbourn/go-wingman-backend/internal/vault"
)

// fakeProvider is a scripted provider.Client.
type fakeProvider struct {
	text  string
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req provider.Request) (*provider.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Result{Text: f.text, InputTokens: 5, OutputTokens: 15}, nil
}

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&domain.UsageAccount{},
		&domain.LockedReply{},
		&domain.GenerationEvent{},
		&domain.CopyEvent{},
		&domain.Idempotency{},
	)
	if err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakePolicy routes every tier and action to the fake provider.
func fakePolicy(t *testing.T) *policy.Resolver {
	t.Helper()
	fake := policy.Entry{Provider: "fake", Model: "fake-model", Effort: "low"}
	rf := map[string]interface{}{
		"rules": []map[string]interface{}{
			{"action_type": domain.ActionOpener, "threshold": 1000000, "provider": "fake", "model": "fake-model", "effort": "low", "sort_order": 1},
			{"action_type": domain.ActionReply, "threshold": 1000000, "provider": "fake", "model": "fake-model", "effort": "low", "sort_order": 1},
			{"action_type": domain.ActionOCR, "threshold": 1000000, "provider": "fake", "model": "fake-model", "effort": "low", "sort_order": 1},
		},
	}
	raw, err := json.Marshal(rf)
	if err != nil {
		t.Fatalf("marshal policy: %v", err)
	}
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return policy.Load(path, fake, fake, fake)
}

func newSuggestionService(t *testing.T, db *gorm.DB, client provider.Client) *SuggestionService {
	t.Helper()
	l := &ledger.Ledger{
		DB:                 db,
		FreeDailyCap:       2,
		RegisteredDailyCap: 5,
		DailyPeriod:        24 * time.Hour,
		WeeklyPeriod:       7 * 24 * time.Hour,
	}
	return &SuggestionService{
		DB:              db,
		Classifier:      identity.NewClassifier(db, 3, 3),
		Policy:          fakePolicy(t),
		Ledger:          l,
		Vault:           vault.New(db, 4),
		Executor:        &provider.Executor{Clients: provider.Registry{"fake": client}},
		Events:          NewEventService(db),
		SuggestionCount: 3,
		MaxContextRunes: 500,
		IdempotencyTTL:  time.Hour,
	}
}

func makeSubscriber(t *testing.T, db *gorm.DB, userID string) {
	t.Helper()
	// The payment flow maintains these columns; tests flip them directly.
	_, err := repo.GetOrCreateAccount(context.Background(), db, "user:"+userID, "user", 0, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed subscriber: %v", err)
	}
	err = db.Model(&domain.UsageAccount{}).
		Where("owner_key = ?", "user:"+userID).
		Updates(map[string]interface{}{"is_subscribed": true, "ever_subscribed": true}).Error
	if err != nil {
		t.Fatalf("flip subscription: %v", err)
	}
}

func TestGenerate_GuestSuccess(t *testing.T) {
	db := newServiceDB(t)
	client := &fakeProvider{text: `[{"message":"Hey there, love the hiking photos"}]`}
	svc := newSuggestionService(t, db, client)

	res, err := svc.Generate(context.Background(), identity.Hint{Fingerprint: "device-1"}, SuggestionInput{
		ActionType:    domain.ActionOpener,
		PromptContext: "Profile mentions hiking and a golden retriever",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Success || res.Replayed || res.Locked {
		t.Fatalf("unexpected result flags: %+v", res)
	}
	if len(res.Suggestions) != 1 {
		t.Fatalf("expected suggestions, got %v", res.Suggestions)
	}
	if res.Tier != domain.TierGuest || !res.TrialCredits {
		t.Fatalf("tier/credits flags: %+v", res)
	}
	if res.CreditsRemaining != 2 {
		t.Fatalf("one trial credit should be spent, remaining=%d", res.CreditsRemaining)
	}
	if res.Reply == nil || !res.Reply.Unlocked {
		t.Fatalf("ungated reply must be stored unlocked: %+v", res.Reply)
	}
	if res.EventID == "" {
		t.Fatalf("generation event not recorded")
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly one provider call, got %d", client.calls)
	}
}

func TestGenerate_TrialExpiryStopsProviderSpend(t *testing.T) {
	db := newServiceDB(t)
	client := &fakeProvider{text: `[{"message":"ok"}]`}
	svc := newSuggestionService(t, db, client)
	hint := identity.Hint{Fingerprint: "device-1"}
	in := SuggestionInput{ActionType: domain.ActionReply, PromptContext: "She asked about my weekend"}

	// The guest grant is 3 credits; spend them all.
	for i := 0; i < 3; i++ {
		if _, err := svc.Generate(context.Background(), hint, in); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
	}

	_, err := svc.Generate(context.Background(), hint, in)
	if err != ledger.ErrTrialExpired {
		t.Fatalf("expected ErrTrialExpired, got %v", err)
	}
	// The rejection happened in the pre-check; no provider money was spent.
	if client.calls != 3 {
		t.Fatalf("provider called %d times, want 3", client.calls)
	}
}

func TestGenerate_CascadeFailureNoCharge(t *testing.T) {
	db := newServiceDB(t)
	client := &fakeProvider{err: &provider.AttemptError{Provider: "fake", Kind: provider.KindHTTP, StatusCode: 503}}
	svc := newSuggestionService(t, db, client)

	res, err := svc.Generate(context.Background(), identity.Hint{Fingerprint: "device-1"}, SuggestionInput{
		ActionType:    domain.ActionReply,
		PromptContext: "What do I say next",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure outcome")
	}
	if res.Fallback != FallbackReply {
		t.Fatalf("expected placeholder reply, got %q", res.Fallback)
	}

	// No charge for output the caller never got.
	acct, err := repo.GetAccount(context.Background(), db, "device:"+hashOf("device-1"))
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acct.LifetimeCreditsRemaining != 3 {
		t.Fatalf("failed cascade must not spend credits, remaining=%d", acct.LifetimeCreditsRemaining)
	}

	// The failure itself is still recorded for analytics.
	var ev domain.GenerationEvent
	if err := db.First(&ev).Error; err != nil {
		t.Fatalf("expected a generation event: %v", err)
	}
	if ev.Success || ev.Attempts == 0 {
		t.Fatalf("event should record the failed attempts: %+v", ev)
	}
}

func TestGenerate_Validation(t *testing.T) {
	db := newServiceDB(t)
	svc := newSuggestionService(t, db, &fakeProvider{text: `[{"message":"ok"}]`})
	hint := identity.Hint{Fingerprint: "device-1"}

	if _, err := svc.Generate(context.Background(), hint, SuggestionInput{ActionType: "roast", PromptContext: "x"}); err != ErrUnknownAction {
		t.Fatalf("unknown action: got %v", err)
	}
	if _, err := svc.Generate(context.Background(), hint, SuggestionInput{ActionType: domain.ActionReply, PromptContext: "   "}); err != ErrEmptyContext {
		t.Fatalf("empty context: got %v", err)
	}
	long := strings.Repeat("a", 501)
	if _, err := svc.Generate(context.Background(), hint, SuggestionInput{ActionType: domain.ActionReply, PromptContext: long}); err != ErrContextTooLong {
		t.Fatalf("long context: got %v", err)
	}

	// An OCR request may carry an image instead of text context.
	res, err := svc.Generate(context.Background(), hint, SuggestionInput{
		ActionType:  domain.ActionOCR,
		ImageBase64: "aGVsbG8=",
		ImageMIME:   "image/jpeg",
	})
	if err != nil || !res.Success {
		t.Fatalf("image-only request must pass validation: %v", err)
	}
}

func TestGenerate_RegisteredDailyCap(t *testing.T) {
	db := newServiceDB(t)
	client := &fakeProvider{text: `[{"message":"ok"}]`}
	svc := newSuggestionService(t, db, client)
	hint := identity.Hint{UserID: "u1"}
	in := SuggestionInput{ActionType: domain.ActionReply, PromptContext: "conversation so far"}

	// FreeDailyCap is 2 in the test ledger.
	for i := 0; i < 2; i++ {
		res, err := svc.Generate(context.Background(), hint, in)
		if err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
		if res.Tier != domain.TierFreeRegistered {
			t.Fatalf("expected free-registered tier, got %s", res.Tier)
		}
	}

	if _, err := svc.Generate(context.Background(), hint, in); err != ledger.ErrQuotaExhausted {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("provider called %d times, want 2", client.calls)
	}
}

func TestGenerate_SubscriberLockThreshold(t *testing.T) {
	db := newServiceDB(t)
	client := &fakeProvider{text: `[{"message":"a full suggestion with many words in it"}]`}
	svc := newSuggestionService(t, db, client)
	svc.LockThreshold = 1
	makeSubscriber(t, db, "sub1")
	hint := identity.Hint{UserID: "sub1"}
	in := SuggestionInput{ActionType: domain.ActionReply, PromptContext: "conversation"}

	// First request of the day: under the threshold, delivered open.
	res, err := svc.Generate(context.Background(), hint, in)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if res.Locked || len(res.Suggestions) == 0 {
		t.Fatalf("first request must be open: %+v", res)
	}
	if res.CreditsRemaining != -1 {
		t.Fatalf("subscriber credits must read unlimited, got %d", res.CreditsRemaining)
	}

	// Second request: the daily count now sits on the threshold.
	res, err = svc.Generate(context.Background(), hint, in)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !res.Locked {
		t.Fatalf("expected gated result: %+v", res)
	}
	if len(res.Suggestions) != 0 {
		t.Fatalf("locked result must not carry full suggestions")
	}
	if len(res.Previews) == 0 {
		t.Fatalf("locked result must carry previews")
	}
	if res.Reply == nil || res.Reply.Unlocked {
		t.Fatalf("gated reply must be stored locked")
	}
}

func TestGenerate_ChargeOnUnlockDefersCommit(t *testing.T) {
	db := newServiceDB(t)
	client := &fakeProvider{text: `[{"message":"gated content here"}]`}
	svc := newSuggestionService(t, db, client)
	svc.LockThreshold = 1
	svc.ChargeOnUnlock = true
	makeSubscriber(t, db, "sub1")
	hint := identity.Hint{UserID: "sub1"}
	in := SuggestionInput{ActionType: domain.ActionReply, PromptContext: "conversation"}

	if _, err := svc.Generate(context.Background(), hint, in); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	res, err := svc.Generate(context.Background(), hint, in)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !res.Locked {
		t.Fatalf("expected gated result")
	}

	// The gated generation itself is unpaid until unlock.
	acct, err := repo.GetAccount(context.Background(), db, "user:sub1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acct.DailyActionCount != 1 {
		t.Fatalf("deferred charge must leave the counter at 1, got %d", acct.DailyActionCount)
	}
}

func TestGenerate_IdempotentReplay(t *testing.T) {
	db := newServiceDB(t)
	client := &fakeProvider{text: `[{"message":"the original answer"}]`}
	svc := newSuggestionService(t, db, client)
	hint := identity.Hint{Fingerprint: "device-1"}
	in := SuggestionInput{
		ActionType:     domain.ActionReply,
		PromptContext:  "conversation",
		IdempotencyKey: "retry-key-1",
	}

	first, err := svc.Generate(context.Background(), hint, in)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if first.Replayed {
		t.Fatalf("first call cannot be a replay")
	}

	second, err := svc.Generate(context.Background(), hint, in)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected replay")
	}
	if second.Reply.ID != first.Reply.ID {
		t.Fatalf("replay must return the recorded reply")
	}
	if client.calls != 1 {
		t.Fatalf("replay must not hit providers, calls=%d", client.calls)
	}
	if !second.TrialCredits || second.CreditsRemaining != 2 {
		t.Fatalf("replay must report the caller's live balance, got %d (trial=%v)",
			second.CreditsRemaining, second.TrialCredits)
	}

	// No double charge.
	acct, err := repo.GetAccount(context.Background(), db, "device:"+hashOf("device-1"))
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acct.LifetimeCreditsRemaining != 2 {
		t.Fatalf("replay must not re-charge, remaining=%d", acct.LifetimeCreditsRemaining)
	}
}

func TestGenerate_CountOverrideOnlyLowers(t *testing.T) {
	db := newServiceDB(t)
	svc := newSuggestionService(t, db, &fakeProvider{text: `[{"message":"ok"}]`})
	hint := identity.Hint{Fingerprint: "device-1"}

	// An inflated count must not raise the configured default; the request
	// still succeeds with the default.
	res, err := svc.Generate(context.Background(), hint, SuggestionInput{
		ActionType:    domain.ActionReply,
		PromptContext: "context",
		Count:         50,
	})
	if err != nil || !res.Success {
		t.Fatalf("Generate: %v", err)
	}
}

// hashOf mirrors the device fingerprint hashing for storage-key assertions.
func hashOf(fingerprint string) string {
	id, _ := identity.Resolve(identity.Hint{Fingerprint: fingerprint})
	return id.Value
}
