package utils

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLeaseScriptCompiles(t *testing.T) {
	if leaseReleaseScript == nil {
		t.Fatalf("expected release script to be initialized")
	}
}

func TestAcquireLease_ValidatesArgs(t *testing.T) {
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	if _, err := AcquireLease(ctx, nil, "k", "o", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := AcquireLease(ctx, rdb, "", "o", time.Second); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := AcquireLease(ctx, rdb, "k", "", time.Second); err == nil {
		t.Fatalf("expected error for empty owner")
	}
	if _, err := AcquireLease(ctx, rdb, "k", "o", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
	if err := ReleaseLease(ctx, rdb, "", "o"); err == nil {
		t.Fatalf("expected error for empty key on release")
	}
}
