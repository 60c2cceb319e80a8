// Package identity implements the tier classifier: it resolves exactly one
// caller identity per request (authenticated user, guest device fingerprint,
// or legacy client IP, in that precedence order), derives the caller tier
// from the subscription state on the usage account, and lazily creates the
// account row on first contact.
//
// The identity is immutable for the lifetime of a request. The tier is
// recomputed on every request and never cached beyond request scope, so a
// subscription that expires between two requests downgrades the caller
// immediately.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-wingman-backend/internal/domain"
	"github.com/tbourn/go-wingman-backend/internal/repo"
)

// ErrCallerUnidentifiable is returned when no identity at all can be derived
// from a request (no user, no device fingerprint, no client IP). Behind a
// normal HTTP server this should not occur; it is the only fatal condition
// in this component.
var ErrCallerUnidentifiable = errors.New("caller unidentifiable")

// Identity kinds, in precedence order.
const (
	KindUser   = "user"
	KindDevice = "device"
	KindIP     = "ip"
)

// Identity is the discriminated caller identity for one request. Exactly one
// kind resolves per request: an authenticated user id, a hashed device
// fingerprint, or a legacy client IP.
type Identity struct {
	Kind  string
	Value string
}

// OwnerKey returns the stable storage key for this identity
// (e.g. "user:42", "device:9f2c…", "ip:203.0.113.7").
func (id Identity) OwnerKey() string { return id.Kind + ":" + id.Value }

// Hint carries the raw identity signals extracted from the transport layer.
type Hint struct {
	UserID      string // from upstream auth; empty when unauthenticated
	Fingerprint string // raw device fingerprint header value
	ClientIP    string // remote address as seen by the server
}

// Classifier resolves identities into (identity, tier, account) triples.
// Account rows are created lazily with the configured initial credit grants.
type Classifier struct {
	// DB is the GORM handle used for account get-or-create.
	DB *gorm.DB

	// GuestCredits is the lifetime trial grant for device/IP identities.
	GuestCredits int
	// RegisteredCredits is the lifetime grant for authenticated accounts.
	RegisteredCredits int
}

// NewClassifier constructs a Classifier with the given credit grants.
func NewClassifier(db *gorm.DB, guestCredits, registeredCredits int) *Classifier {
	return &Classifier{DB: db, GuestCredits: guestCredits, RegisteredCredits: registeredCredits}
}

// Classify resolves the caller identity, loads (or creates) its usage
// account, and derives the tier. Precedence is user > device > IP; the IP
// path is logged as a weaker fallback.
func (c *Classifier) Classify(ctx context.Context, hint Hint) (Identity, string, *domain.UsageAccount, error) {
	now := time.Now().UTC()

	id, ok := Resolve(hint)
	if !ok {
		return Identity{}, "", nil, ErrCallerUnidentifiable
	}
	if id.Kind == KindIP {
		log.Warn().
			Str("owner_key", id.OwnerKey()).
			Msg("no device fingerprint; falling back to IP trial identity")
	}

	grant := c.GuestCredits
	if id.Kind == KindUser {
		grant = c.RegisteredCredits
	}
	acct, err := repo.GetOrCreateAccount(ctx, c.DB, id.OwnerKey(), id.Kind, grant, now)
	if err != nil {
		return Identity{}, "", nil, err
	}

	return id, TierOf(id, acct, now), acct, nil
}

// Resolve maps raw signals to exactly one identity, or reports failure when
// none is available. Device fingerprints are hashed before use so the raw
// value never reaches storage or logs.
func Resolve(hint Hint) (Identity, bool) {
	if uid := strings.TrimSpace(hint.UserID); uid != "" {
		return Identity{Kind: KindUser, Value: uid}, true
	}
	if fp := strings.TrimSpace(hint.Fingerprint); fp != "" {
		return Identity{Kind: KindDevice, Value: hashFingerprint(fp)}, true
	}
	if ip := strings.TrimSpace(hint.ClientIP); ip != "" {
		return Identity{Kind: KindIP, Value: ip}, true
	}
	return Identity{}, false
}

// TierOf derives the caller tier at the given instant. Unauthenticated
// identities are always guests; authenticated callers are subscribers while
// their subscription is active, registered-non-subscribers once it has
// lapsed, and free-registered if they never paid.
func TierOf(id Identity, acct *domain.UsageAccount, now time.Time) string {
	if id.Kind != KindUser {
		return domain.TierGuest
	}
	if acct.SubscriptionActive(now) {
		return domain.TierSubscriber
	}
	if acct.EverSubscribed {
		return domain.TierRegistered
	}
	return domain.TierFreeRegistered
}

// hashFingerprint returns the lowercase hex SHA-256 of a raw device
// fingerprint.
func hashFingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
