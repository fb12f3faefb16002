package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/time/rate"
)

// Result is the outcome of one unit of fan-out work
type Result[T any] struct {
	Key   string
	Value T
	Err   error
}

// Options tune a fan-out
type Options struct {
	// Limit bounds the number of tasks in flight; values below one mean one
	Limit int
	// Limiter, when set, gates every task start on a token
	Limiter *rate.Limiter
}

// Map runs fn once per key with bounded concurrency and returns the results in key order.
// A failing or panicking task never cancels its siblings; its error is reported in its slot.
// Tasks not yet started when ctx is cancelled report ctx.Err().
func Map[T any](ctx context.Context, keys []string, opts Options, fn func(ctx context.Context, key string) (T, error)) []Result[T] {
	limit := opts.Limit
	if limit < 1 {
		limit = 1
	}

	results := make([]Result[T], len(keys))
	semaphore := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, key := range keys {
		results[i].Key = key

		// Acquire semaphore
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			results[i].Err = ctx.Err()
			continue
		}

		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				<-semaphore
				results[i].Err = err
				continue
			}
		}

		wg.Add(1)
		go func(slot int, key string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			defer func() {
				if r := recover(); r != nil {
					results[slot].Err = fmt.Errorf("task %s panicked: %v\n%s", key, r, debug.Stack())
				}
			}()

			value, err := fn(ctx, key)
			results[slot].Value = value
			results[slot].Err = err
		}(i, key)
	}

	wg.Wait()
	return results
}

// Split separates successful values from failures, both keyed by task key
func Split[T any](results []Result[T]) (values map[string]T, failures map[string]error) {
	values = make(map[string]T, len(results))
	failures = make(map[string]error)
	for _, r := range results {
		if r.Err != nil {
			failures[r.Key] = r.Err
			continue
		}
		values[r.Key] = r.Value
	}
	return values, failures
}
