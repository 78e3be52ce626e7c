package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("socket hang up: ECONNRESET")
		}
		return nil
	}, RetryOptions{
		MaxRetries:        5,
		InitialDelay:      time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		BackoffMultiplier: 2,
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetry_NonRetryablePropagatesImmediately(t *testing.T) {
	attempts := 0
	want := errors.New("400 bad request")
	err := WithRetry(context.Background(), func(ctx context.Context) error {
		attempts++
		return want
	}, RetryOptions{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected non-retryable error to propagate, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt for a non-retryable error, got %d", attempts)
	}
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("429 too many requests")
	}, RetryOptions{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected maxRetries+1 attempts, got %d", attempts)
	}
}
