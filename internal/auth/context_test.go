package auth

import (
	"context"
	"errors"
	"testing"
)

func TestIdentityFromContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", BusinessID: "b1", Role: "staff"})

	id, err := IdentityFrom(ctx)
	if err != nil || id.BusinessID != "b1" || id.Role != "staff" {
		t.Fatalf("unexpected identity %+v (%v)", id, err)
	}
	if biz, err := BusinessID(ctx); err != nil || biz != "b1" {
		t.Fatalf("expected b1, got %q (%v)", biz, err)
	}

	// A later identity replaces the earlier one entirely.
	ctx = WithIdentity(ctx, Identity{UserID: "u2"})
	if _, err := BusinessID(ctx); !errors.Is(err, ErrNoBusiness) {
		t.Fatalf("expected ErrNoBusiness, got %v", err)
	}
	if _, err := Role(ctx); !errors.Is(err, ErrNoRole) {
		t.Fatalf("expected ErrNoRole, got %v", err)
	}
}

func TestIdentityFromContext_Missing(t *testing.T) {
	if _, err := IdentityFrom(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	ctx := WithIdentity(context.Background(), Identity{BusinessID: "b1", Role: "owner"})
	if _, err := UserID(ctx); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("identity without a user must not count, got %v", err)
	}
}
