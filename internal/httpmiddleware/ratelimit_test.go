package httpmiddleware

import (
	"context"
	"testing"
)

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("allows up to capacity", func(t *testing.T) {
		l := NewTokenBucket(3, 60)
		for i := 0; i < 3; i++ {
			if !l.Allow(ctx, "1.2.3.4") {
				t.Fatalf("request %d within capacity must pass", i+1)
			}
		}
		if l.Allow(ctx, "1.2.3.4") {
			t.Fatal("request beyond capacity must be blocked")
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := NewTokenBucket(1, 60)
		if !l.Allow(ctx, "a") {
			t.Fatal("first key must pass")
		}
		if !l.Allow(ctx, "b") {
			t.Fatal("second key must pass independently")
		}
		if l.Allow(ctx, "a") {
			t.Fatal("exhausted key must be blocked")
		}
	})

	t.Run("defaults capacity to rate", func(t *testing.T) {
		l := NewTokenBucket(0, 2)
		if l.capacity != 2 {
			t.Fatalf("capacity = %d, want 2", l.capacity)
		}
	})
}
