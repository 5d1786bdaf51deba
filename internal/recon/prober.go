// Package recon implements the probing, fingerprinting and enrichment
// stages that feed an engine run.
package recon

import (
	"context"
	"sync"
	"time"

	"github.com/vulnverified/recce/internal/engine"
	"golang.org/x/time/rate"
)

// ProbeOptions bounds one Probe call.
type ProbeOptions struct {
	Concurrency int           // workers; <= 0 or more than len(items) means one per item
	Timeout     time.Duration // per item, 0 to rely on ctx only
	Deadline    time.Duration // whole call, 0 to rely on ctx only
	Rate        float64       // items started per second, 0 for unlimited
}

// ProbeFunc performs exactly one attempt for item. ctx already carries the
// per-item timeout.
type ProbeFunc[T any] func(ctx context.Context, item T) engine.ProbeOutcome

// Probe runs items through a fixed-size worker pool and returns the
// outcomes in input order, whatever order they completed in. When ctx or
// the overall deadline expires, in-flight attempts are cancelled and only
// the outcomes that completed are returned.
func Probe[T any](ctx context.Context, items []T, opts ProbeOptions, probe ProbeFunc[T]) []engine.ProbeOutcome {
	if len(items) == 0 {
		return nil
	}
	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	workers := opts.Concurrency
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}

	var limiter *rate.Limiter
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}

	work := make(chan int, len(items))
	for i := range items {
		work <- i
	}
	close(work)

	// Each index is written by exactly one worker and read after Wait.
	slots := make([]engine.ProbeOutcome, len(items))
	done := make([]bool, len(items))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return
					}
				}

				out := attempt(ctx, items[i], opts.Timeout, probe)
				// An attempt cut short by the overall deadline did not complete.
				if out.Err != nil && ctx.Err() != nil {
					continue
				}
				slots[i] = out
				done[i] = true
			}
		}()
	}
	wg.Wait()

	outcomes := make([]engine.ProbeOutcome, 0, len(items))
	for i := range slots {
		if done[i] {
			outcomes = append(outcomes, slots[i])
		}
	}
	return outcomes
}

func attempt[T any](ctx context.Context, item T, timeout time.Duration, probe ProbeFunc[T]) engine.ProbeOutcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return probe(ctx, item)
}
