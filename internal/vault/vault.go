// Package vault manages locked reply content: the full generated text is
// stored server side and only a short word-prefix preview leaves the API
// until the caller unlocks the row. The full text never rides along with a
// locked response in any serialized form.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/go-wingman-backend/internal/domain"
	"github.com/tbourn/go-wingman-backend/internal/repo"
)

var (
	// ErrLockNotFound means no reply row exists for the requested ID and owner.
	ErrLockNotFound = errors.New("locked reply not found")

	// ErrNoLockedReply means the owner has no still-locked reply at all.
	ErrNoLockedReply = errors.New("no locked reply")
)

var tracer = otel.Tracer("github.com/tbourn/go-wingman-backend/internal/vault")

// Vault persists generated suggestions and controls their visibility.
type Vault struct {
	DB *gorm.DB

	// PreviewWords is how many leading words of each suggestion survive
	// into the preview.
	PreviewWords int
}

// New returns a Vault over db.
func New(db *gorm.DB, previewWords int) *Vault {
	return &Vault{DB: db, PreviewWords: previewWords}
}

// Store persists one generation result. Suggestions are marshalled as a JSON
// array into the hidden full-text column; the stored preview holds the
// word-truncated form of each suggestion. Gated results are stored locked,
// everything else is stored already unlocked so the row still serves
// idempotent replays.
func (v *Vault) Store(ctx context.Context, ownerKey, actionType, modelUsed string, suggestions []string, locked bool) (*domain.LockedReply, error) {
	ctx, span := tracer.Start(ctx, "Vault.Store")
	defer span.End()

	full, err := json.Marshal(suggestions)
	if err != nil {
		return nil, err
	}
	previews := make([]string, len(suggestions))
	for i, s := range suggestions {
		previews[i] = Preview(s, v.PreviewWords)
	}
	pv, err := json.Marshal(previews)
	if err != nil {
		return nil, err
	}

	r, err := repo.CreateLockedReply(ctx, v.DB, ownerKey, actionType, string(full), string(pv), modelUsed, !locked)
	if err != nil {
		return nil, err
	}
	if locked {
		log.Info().
			Str("reply_id", r.ID).
			Str("action_type", actionType).
			Msg("stored locked reply")
	}
	return r, nil
}

// Unlock reveals the full text of a reply the owner holds. Unlocking is
// idempotent: repeating the call returns the same content and reports that
// no state changed this time.
func (v *Vault) Unlock(ctx context.Context, ownerKey, replyID string) (reply *domain.LockedReply, flipped bool, err error) {
	ctx, span := tracer.Start(ctx, "Vault.Unlock")
	defer span.End()

	r, err := repo.GetLockedReply(ctx, v.DB, replyID, ownerKey)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, ErrLockNotFound
		}
		return nil, false, err
	}
	if r.Unlocked {
		return r, false, nil
	}
	flipped, err = repo.MarkUnlocked(ctx, v.DB, replyID, ownerKey)
	if err != nil {
		return nil, false, err
	}
	r.Unlocked = true
	r.UpdatedAt = time.Now().UTC()
	return r, flipped, nil
}

// Latest returns the owner's most recent still-locked reply.
func (v *Vault) Latest(ctx context.Context, ownerKey string) (*domain.LockedReply, error) {
	r, err := repo.LatestLockedReply(ctx, v.DB, ownerKey)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNoLockedReply
		}
		return nil, err
	}
	return r, nil
}

// Suggestions decodes the hidden full-text column back into the suggestion
// list. Rows written before the JSON format carry a bare string; those come
// back as a single-element list.
func Suggestions(r *domain.LockedReply) []string {
	var out []string
	if err := json.Unmarshal([]byte(r.FullText), &out); err != nil {
		return []string{r.FullText}
	}
	return out
}

// Previews decodes the stored preview column.
func Previews(r *domain.LockedReply) []string {
	var out []string
	if err := json.Unmarshal([]byte(r.Preview), &out); err != nil {
		return []string{r.Preview}
	}
	return out
}

// Preview truncates s to its first n words. Whitespace runs collapse to
// single spaces; nothing is appended, the cut is silent.
func Preview(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}
