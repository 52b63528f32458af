// Package batch is a generic framework for running a pure per-item
// predicate or transform over a large collection in bounded batches across
// worker goroutines. It is reused for point filtering, coordinate
// projection and boundary membership testing.
//
// Cancellation is cooperative and checked at batch boundaries only: once
// the context is cancelled no new batch is started, but an in-flight batch
// always finishes and contributes atomically. A cancelled run therefore
// contains only whole completed batches.
package batch

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/kass/go-field-surface/pkg/models"
)

const (
	// DefaultBatchSize is the per-batch item count when none is given.
	DefaultBatchSize = 1000
	// DefaultProgressItems is the item interval between progress reports.
	DefaultProgressItems = 1000
	// DefaultProgressInterval is the wall-clock interval between progress
	// reports; whichever of the two limits is hit first triggers a report.
	DefaultProgressInterval = 100 * time.Millisecond
)

// Options tunes a batch run. The zero value is usable.
type Options struct {
	BatchSize int
	Workers   int
	Phase     string
	Progress  models.ProgressFunc
}

func (o *Options) fill() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Phase == "" {
		o.Phase = "batch"
	}
}

// Outcome is the envelope of a transform run.
type Outcome[R any] struct {
	models.RunStatus
	Items     []R
	Processed int
}

// span is a half-open index range forming one batch.
type span struct{ start, end int }

func makeSpans(n, size int) []span {
	spans := make([]span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, span{start, end})
	}
	return spans
}

// throttle decides when a progress report is due. It is always called with
// the aggregation lock held, so no extra synchronization is needed.
type throttle struct {
	sinceItems int
	last       time.Time
}

func (t *throttle) due(processed int) bool {
	t.sinceItems += processed
	if t.sinceItems >= DefaultProgressItems || time.Since(t.last) >= DefaultProgressInterval {
		t.sinceItems = 0
		t.last = time.Now()
		return true
	}
	return false
}

// Run applies fn to every item across the worker pool and returns the
// outputs for which fn reported ok. Output order is unspecified; the output
// set is identical to a single-threaded run regardless of worker count.
func Run[T, R any](ctx context.Context, items []T, fn func(T) (R, bool), opts Options) *Outcome[R] {
	opts.fill()
	start := time.Now()

	out := &Outcome[R]{}
	out.Success = true
	spans := makeSpans(len(items), opts.BatchSize)

	var (
		mu   sync.Mutex
		tick = throttle{last: start}
	)

	jobs := make(chan span)
	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sp := range jobs {
				local := make([]R, 0, sp.end-sp.start)
				for i := sp.start; i < sp.end; i++ {
					if r, ok := fn(items[i]); ok {
						local = append(local, r)
					}
				}
				mu.Lock()
				out.Items = append(out.Items, local...)
				out.Processed += sp.end - sp.start
				if tick.due(sp.end - sp.start) {
					opts.Progress.Report(opts.Phase,
						100*float64(out.Processed)/float64(max(len(items), 1)), "")
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, sp := range spans {
		select {
		case <-ctx.Done():
			out.Cancelled = true
			break dispatch
		case jobs <- sp:
		}
	}
	close(jobs)
	wg.Wait()

	out.Elapsed = time.Since(start)
	opts.Progress.Report(opts.Phase, 100*float64(out.Processed)/float64(max(len(items), 1)), "done")
	return out
}

// Filter classifies every item with pred and returns explicit kept and
// excluded index sets. The two sets are disjoint and, on an uncancelled
// run, cover the whole input. On a cancelled run they cover exactly the
// completed batches.
func Filter[T any](ctx context.Context, items []T, pred func(T) bool, opts Options) *models.FilterResult {
	opts.fill()
	start := time.Now()

	res := &models.FilterResult{}
	res.Success = true
	spans := makeSpans(len(items), opts.BatchSize)

	var (
		mu   sync.Mutex
		done int
		tick = throttle{last: start}
	)

	jobs := make(chan span)
	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sp := range jobs {
				kept := make([]int, 0, sp.end-sp.start)
				var excluded []int
				for i := sp.start; i < sp.end; i++ {
					if pred(items[i]) {
						kept = append(kept, i)
					} else {
						excluded = append(excluded, i)
					}
				}
				mu.Lock()
				res.Kept = append(res.Kept, kept...)
				res.Excluded = append(res.Excluded, excluded...)
				done += sp.end - sp.start
				if tick.due(sp.end - sp.start) {
					opts.Progress.Report(opts.Phase,
						100*float64(done)/float64(max(len(items), 1)), "")
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, sp := range spans {
		select {
		case <-ctx.Done():
			res.Cancelled = true
			break dispatch
		case jobs <- sp:
		}
	}
	close(jobs)
	wg.Wait()

	res.Elapsed = time.Since(start)
	opts.Progress.Report(opts.Phase, 100*float64(done)/float64(max(len(items), 1)), "done")
	return res
}
