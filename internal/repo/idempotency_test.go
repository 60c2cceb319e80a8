package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-wingman-backend/internal/domain"
)

func TestCreateIdempotency_AndReplayLookup(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "user:u1", domain.ActionReply, "key-1", "reply-1", "event-1", 200, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ReplyID != "reply-1" || rec.EventID != "event-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "user:u1", domain.ActionReply, "key-1", now)
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.ReplyID != "reply-1" {
		t.Fatalf("unexpected replay target: %+v", got)
	}

	// Same key under a different action type is a different record.
	if _, err := GetIdempotency(ctx, db, "user:u1", domain.ActionOpener, "key-1", now); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for other action, got %v", err)
	}
}

func TestCreateIdempotency_Duplicate(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "user:u1", domain.ActionReply, "key-1", "r1", "e1", 200, time.Hour); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "user:u1", domain.ActionReply, "key-1", "r2", "e2", 200, time.Hour); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetIdempotency_Expired(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "user:u1", domain.ActionReply, "key-1", "r1", "e1", 200, time.Millisecond); err != nil {
		t.Fatalf("create: %v", err)
	}
	later := time.Now().UTC().Add(time.Minute)
	if _, err := GetIdempotency(ctx, db, "user:u1", domain.ActionReply, "key-1", later); err != ErrNotFound {
		t.Fatalf("expected expired record to be invisible, got %v", err)
	}
}

func TestHasIdempotency_IgnoresActionType(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	now := time.Now().UTC()

	ok, err := HasIdempotency(ctx, db, "user:u1", "key-1", now)
	if err != nil || ok {
		t.Fatalf("expected miss before create, got ok=%v err=%v", ok, err)
	}

	if _, err := CreateIdempotency(ctx, db, "user:u1", domain.ActionOCR, "key-1", "r1", "e1", 200, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err = HasIdempotency(ctx, db, "user:u1", "key-1", now)
	if err != nil || !ok {
		t.Fatalf("expected hit regardless of action type, got ok=%v err=%v", ok, err)
	}

	// Blank owner never matches anything.
	ok, err = HasIdempotency(ctx, db, "  ", "key-1", now)
	if err != nil || ok {
		t.Fatalf("expected blank owner to miss, got ok=%v err=%v", ok, err)
	}
}
