package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	t.Run("starts full", func(t *testing.T) {
		bucket := NewTokenBucket(10, 1.0)
		if bucket.tokens != 10.0 {
			t.Errorf("Expected initial tokens 10, got %f", bucket.tokens)
		}
	})

	t.Run("AllowAt consumes and refills", func(t *testing.T) {
		start := time.Now()
		bucket := NewTokenBucket(5, 2.0)
		bucket.lastRefill = start

		if !bucket.AllowAt(5, start) {
			t.Fatal("Expected the full burst to be allowed")
		}
		if bucket.AllowAt(1, start) {
			t.Fatal("Expected an empty bucket to refuse")
		}
		if !bucket.AllowAt(1, start.Add(500*time.Millisecond)) {
			t.Error("Expected one token after 500ms at 2/s")
		}
		if !bucket.AllowAt(5, start.Add(time.Hour)) {
			t.Error("Expected bucket to refill to capacity")
		}
		if bucket.AllowAt(1, start.Add(time.Hour)) {
			t.Error("Expected refill to be capped at capacity")
		}
	})

	t.Run("clock going backwards is ignored", func(t *testing.T) {
		start := time.Now()
		bucket := NewTokenBucket(2, 1.0)
		bucket.lastRefill = start
		bucket.AllowAt(2, start)
		if bucket.AllowAt(1, start.Add(-time.Second)) {
			t.Error("Expected no refill from a past timestamp")
		}
	})

	t.Run("Refund is capped", func(t *testing.T) {
		bucket := NewTokenBucket(3, 1.0)
		bucket.AllowAt(1, bucket.lastRefill)
		bucket.Refund(5)
		if bucket.tokens != 3 {
			t.Errorf("Expected refund capped at 3, got %f", bucket.tokens)
		}
	})

	t.Run("RetryAfter", func(t *testing.T) {
		start := time.Now()
		bucket := NewTokenBucket(1, 0.5)
		bucket.lastRefill = start
		if d := bucket.RetryAfter(1, start); d != 0 {
			t.Errorf("Expected no wait with tokens available, got %v", d)
		}
		bucket.AllowAt(1, start)
		if d := bucket.RetryAfter(1, start); d != 2*time.Second {
			t.Errorf("Expected 2s wait at 0.5/s, got %v", d)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		bucket := NewTokenBucket(4, 0.001)
		bucket.Allow(4)
		bucket.Reset()
		if got := bucket.Tokens(); got < 3.99 {
			t.Errorf("Expected full bucket after reset, got %f", got)
		}
	})
}
