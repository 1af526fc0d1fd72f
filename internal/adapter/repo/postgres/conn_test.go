package postgres

import (
	"context"
	"testing"
)

func TestNewPool_InvalidDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), "://bad"); err == nil {
		t.Fatalf("expected error for invalid dsn")
	}
}

func TestNewPool_DeferredConnect(t *testing.T) {
	// pgxpool does not dial until first use, so pool construction succeeds
	// even when nothing listens on the target.
	pool, err := NewPool(context.Background(), "postgres://smurfguard:pw@127.0.0.1:1/smurfguard")
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	pool.Close()
}
