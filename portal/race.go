package portal

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRaceLost reports that no strategy satisfied the post-condition before
// the deadline.
var ErrRaceLost = errors.New("no strategy reached the goal before the deadline")

// Strategy is one independent attempt at producing a value.
type Strategy[T any] func(ctx context.Context) (T, error)

// Race runs every strategy concurrently and returns the first result whose
// post-condition holds. The winner is picked by post, not by completion
// order: a strategy can return without actually being in the goal state.
// Losing results are passed to cleanup. The optional watchdog is invoked on
// a fixed cadence until the race settles, to keep stalled strategies moving
// (e.g. dismissing a blocking dialog).
func Race[T any](ctx context.Context, timeout time.Duration,
	post func(context.Context, T) bool,
	cleanup func(T),
	watchdog func(context.Context), watchdogEvery time.Duration,
	strategies ...Strategy[T]) (T, error) {

	var zero T
	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type attempt struct {
		val T
		err error
	}
	results := make(chan attempt, len(strategies))
	var wg sync.WaitGroup
	for _, strat := range strategies {
		strat := strat
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := strat(raceCtx)
			results <- attempt{val: v, err: err}
		}()
	}

	if watchdog != nil {
		if watchdogEvery <= 0 {
			watchdogEvery = 5 * time.Second
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(watchdogEvery)
			defer ticker.Stop()
			for {
				select {
				case <-raceCtx.Done():
					return
				case <-ticker.C:
					watchdog(raceCtx)
				}
			}
		}()
	}

	pending := len(strategies)
	for pending > 0 {
		select {
		case <-raceCtx.Done():
			// drain stragglers in the background so their results still
			// get cleaned up
			go func() {
				for a := range results {
					if cleanup != nil {
						cleanup(a.val)
					}
				}
			}()
			go func() { wg.Wait(); close(results) }()
			return zero, ErrRaceLost
		case a := <-results:
			pending--
			if a.err == nil && post(ctx, a.val) {
				cancel()
				go func() {
					for p := pending; p > 0; p-- {
						b := <-results
						if cleanup != nil {
							cleanup(b.val)
						}
					}
				}()
				return a.val, nil
			}
			if cleanup != nil {
				cleanup(a.val)
			}
		}
	}
	return zero, ErrRaceLost
}
