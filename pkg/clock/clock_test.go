package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReal_SleepReturnsAfterDuration(t *testing.T) {
	c := New()
	start := time.Now()

	if err := c.Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}

	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Sleep returned after %v, want >= 10ms", elapsed)
	}
}

func TestReal_SleepNonPositive(t *testing.T) {
	c := New()

	if err := c.Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) error = %v", err)
	}
	if err := c.Sleep(context.Background(), -time.Second); err != nil {
		t.Errorf("Sleep(-1s) error = %v", err)
	}
}

func TestReal_SleepCancelled(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Sleep(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
}
