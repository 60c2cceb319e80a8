// Package domain defines the persistence models for usage accounts, locked
// replies, and generation events. These types are mapped with GORM and form
// the core data layer of the generation gateway.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Caller tiers. The tier is derived per request from the caller identity and
// the subscription fields on its UsageAccount; it is never stored.
const (
	TierGuest          = "guest"
	TierFreeRegistered = "free_registered"
	TierRegistered     = "registered_non_subscriber"
	TierSubscriber     = "subscriber"
)

// Action types accepted by the gateway.
const (
	ActionOpener = "opener"
	ActionReply  = "reply"
	ActionOCR    = "ocr"
)

// UsageAccount is the single mutable quota row for one caller identity.
// It is created lazily on first request and mutated exclusively by the
// ledger; concurrent requests from the same identity are serialized at the
// row level with atomic SQL increments.
//
// Fields:
//   - OwnerKey: stable identity key ("user:<id>", "device:<sha256>", "ip:<addr>").
//   - LifetimeCreditsRemaining: guest/free trial allowance, floor 0.
//   - DailyActionCount / DailyResetAt: rolling-24h fair-use counter.
//   - WeeklyActionCount / WeeklyResetAt: legacy weekly fair-use counter.
//   - LegacyWeekly: true for accounts still metered on the weekly window.
//   - IsSubscribed / SubscriptionExpiry: subscription state maintained by the
//     payment flow (external collaborator); read here to derive the tier.
//   - EverSubscribed: distinguishes lapsed subscribers from never-paid accounts.
type UsageAccount struct {
	ID                       string         `json:"id"        gorm:"type:char(36);primaryKey"`
	OwnerKey                 string         `json:"owner_key" gorm:"type:varchar(128);not null;uniqueIndex:ux_account_owner"`
	OwnerKind                string         `json:"owner_kind" gorm:"type:varchar(16);not null;check:owner_kind IN ('user','device','ip')"`
	LifetimeCreditsRemaining int            `json:"lifetime_credits_remaining" gorm:"not null;default:0;check:lifetime_credits_remaining >= 0"`
	DailyActionCount         int            `json:"daily_action_count" gorm:"not null;default:0;check:daily_action_count >= 0"`
	DailyResetAt             time.Time      `json:"daily_reset_at"`
	WeeklyActionCount        int            `json:"weekly_action_count" gorm:"not null;default:0;check:weekly_action_count >= 0"`
	WeeklyResetAt            time.Time      `json:"weekly_reset_at"`
	LegacyWeekly             bool           `json:"legacy_weekly" gorm:"not null;default:false"`
	IsSubscribed             bool           `json:"is_subscribed" gorm:"not null;default:false"`
	EverSubscribed           bool           `json:"ever_subscribed" gorm:"not null;default:false"`
	SubscriptionExpiry       *time.Time     `json:"subscription_expiry,omitempty"`
	CreatedAt                time.Time      `json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`
	DeletedAt                gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for UsageAccount.
func (UsageAccount) TableName() string { return "usage_accounts" }

// SubscriptionActive reports whether the account carries an active
// subscription at the given instant (subscribed, and expiry nil or in the
// future).
func (a *UsageAccount) SubscriptionActive(now time.Time) bool {
	if !a.IsSubscribed {
		return false
	}
	return a.SubscriptionExpiry == nil || a.SubscriptionExpiry.After(now)
}

// LockedReply stores the full generated output server-side. Every successful
// generation persists one row; gated responses are created with
// Unlocked=false and reveal the full text only through the audited unlock
// call. FullText and Preview hold the suggestion array as JSON.
//
// Creation is intentionally not uniqueness-enforced per (owner, day):
// concurrent requests may each create a row, and reads resolve latest-first.
type LockedReply struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	OwnerKey   string         `json:"owner_key"   gorm:"type:varchar(128);not null;index:idx_owner_replies,priority:1"`
	ActionType string         `json:"action_type" gorm:"type:varchar(16);not null;check:action_type IN ('opener','reply','ocr')"`
	FullText   string         `json:"-"           gorm:"type:text;not null"`
	Preview    string         `json:"preview"     gorm:"type:text;not null"`
	ModelUsed  string         `json:"model_used"  gorm:"type:varchar(64);not null"`
	Unlocked   bool           `json:"unlocked"    gorm:"not null;default:false"`
	CreatedAt  time.Time      `json:"created_at"  gorm:"index:idx_owner_replies,priority:2"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for LockedReply.
func (LockedReply) TableName() string { return "locked_replies" }

// GenerationEvent is an immutable analytics record summarizing one gateway
// request: which tier asked for what, which cascade entry served it, token
// usage, and how many attempts the cascade made. Failed cascades are recorded
// too (Success=false, no charge).
type GenerationEvent struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	OwnerKey     string    `json:"owner_key"     gorm:"type:varchar(128);not null;index"`
	Tier         string    `json:"tier"          gorm:"type:varchar(32);not null"`
	ActionType   string    `json:"action_type"   gorm:"type:varchar(16);not null"`
	Provider     string    `json:"provider"      gorm:"type:varchar(32)"`
	ModelUsed    string    `json:"model_used"    gorm:"type:varchar(64)"`
	Effort       string    `json:"effort"        gorm:"type:varchar(16)"`
	InputTokens  int       `json:"input_tokens"  gorm:"not null;default:0"`
	OutputTokens int       `json:"output_tokens" gorm:"not null;default:0"`
	Attempts     int       `json:"attempts"      gorm:"not null;default:0"`
	Success      bool      `json:"success"       gorm:"not null;default:false"`
	Source       string    `json:"source"        gorm:"type:varchar(32)"`
	CreatedAt    time.Time `json:"created_at"    gorm:"index"`
}

// TableName returns the database table name for GenerationEvent.
func (GenerationEvent) TableName() string { return "generation_events" }

// CopyEvent records that a caller copied a generated suggestion to their
// clipboard. Purely analytical; never read back by the gateway.
type CopyEvent struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	OwnerKey   string    `json:"owner_key"   gorm:"type:varchar(128);not null;index"`
	ReplyID    string    `json:"reply_id"    gorm:"type:char(36)"`
	ActionType string    `json:"action_type" gorm:"type:varchar(16);not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for CopyEvent.
func (CopyEvent) TableName() string { return "copy_events" }
