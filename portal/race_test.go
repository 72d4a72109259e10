package portal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRaceWinnerPickedByPostCondition(t *testing.T) {
	// the fast strategy finishes first but is not in the goal state; the
	// slow one is
	fast := func(ctx context.Context) (string, error) { return "lost", nil }
	slow := func(ctx context.Context) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return "won", nil
	}
	var cleaned []string
	var mu sync.Mutex
	cleanup := func(v string) {
		mu.Lock()
		cleaned = append(cleaned, v)
		mu.Unlock()
	}

	got, err := Race(context.Background(), time.Second,
		func(_ context.Context, v string) bool { return v == "won" },
		cleanup, nil, 0, fast, slow)
	if err != nil {
		t.Fatalf("Race: %v", err)
	}
	if got != "won" {
		t.Errorf("winner = %q", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(cleaned) != 1 || cleaned[0] != "lost" {
		t.Errorf("losers cleaned = %v", cleaned)
	}
}

func TestRaceErroredStrategyNeverWins(t *testing.T) {
	bad := func(ctx context.Context) (int, error) { return 9, errors.New("boom") }
	good := func(ctx context.Context) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return 1, nil
	}
	got, err := Race(context.Background(), time.Second,
		func(_ context.Context, v int) bool { return v > 0 },
		nil, nil, 0, bad, good)
	if err != nil {
		t.Fatalf("Race: %v", err)
	}
	if got != 1 {
		t.Errorf("winner = %d, want the error-free strategy", got)
	}
}

func TestRaceTimesOut(t *testing.T) {
	stuck := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	start := time.Now()
	_, err := Race(context.Background(), 50*time.Millisecond,
		func(_ context.Context, v int) bool { return true },
		nil, nil, 0, stuck, stuck)
	if !errors.Is(err, ErrRaceLost) {
		t.Fatalf("expected ErrRaceLost, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("race did not respect its deadline")
	}
}

func TestRaceAllLosersIsLost(t *testing.T) {
	done := func(ctx context.Context) (int, error) { return 0, nil }
	_, err := Race(context.Background(), time.Second,
		func(_ context.Context, v int) bool { return false },
		nil, nil, 0, done, done)
	if !errors.Is(err, ErrRaceLost) {
		t.Fatalf("expected ErrRaceLost, got %v", err)
	}
}

func TestRaceWatchdogRunsUntilSettled(t *testing.T) {
	var ticks atomic.Int32
	stuck := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	_, err := Race(context.Background(), 100*time.Millisecond,
		func(_ context.Context, v int) bool { return true },
		nil,
		func(_ context.Context) { ticks.Add(1) }, 20*time.Millisecond,
		stuck)
	if !errors.Is(err, ErrRaceLost) {
		t.Fatalf("expected ErrRaceLost, got %v", err)
	}
	if ticks.Load() == 0 {
		t.Error("watchdog never fired")
	}
}
