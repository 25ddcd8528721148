// Package fanout executes homogeneous sub-tasks of one stage concurrently
// while keeping the merged output deterministic.
//
// Items are partitioned into fixed-size batches. Batches run concurrently up
// to a global cap, and items within a batch run concurrently up to a worker
// limit. Every item's outcome is written to a reserved slot indexed by the
// item's input position, so the final collection preserves input order
// regardless of completion order.
//
// A single item's failure (after its bounded retry budget) is recorded
// against its slot without aborting sibling items; the owning stage inspects
// the collected result and decides whether the failure count fails the
// stage. There is no partial commit: the stage's contribution to shared
// state is either fully populated from the complete result or the stage
// fails.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tailored-agentic-units/coursegraph/engine/config"
	"github.com/tailored-agentic-units/coursegraph/observability"
)

// Proc processes a single item. The index is the item's position in the
// input slice, available so processors can label output deterministically.
//
// The context passed to Proc is detached from run cancellation: cancelling
// the run stops new dispatches but lets in-flight items finish. Processors
// needing their own timeout should derive one.
type Proc[TItem, TResult any] func(ctx context.Context, index int, item TItem) (TResult, error)

// Slot is the reserved output position for one input item.
type Slot[TResult any] struct {
	// Index is the item's position in the input slice.
	Index int

	// Value is the item result when Err is nil.
	Value TResult

	// Err is the item's failure after its retry budget, or ErrSkipped
	// wrapped around the cancellation cause when the item was never
	// dispatched.
	Err error
}

// Result holds one slot per input item, in input order.
type Result[TResult any] struct {
	Slots []Slot[TResult]
}

// Succeeded counts slots with no error.
func (r Result[TResult]) Succeeded() int {
	n := 0
	for _, s := range r.Slots {
		if s.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts slots with an error.
func (r Result[TResult]) Failed() int {
	return len(r.Slots) - r.Succeeded()
}

// FailureRatio returns Failed divided by the item count, 0 for empty input.
func (r Result[TResult]) FailureRatio() float64 {
	if len(r.Slots) == 0 {
		return 0
	}
	return float64(r.Failed()) / float64(len(r.Slots))
}

// Values returns the successful results in input order. Failed slots are
// omitted; callers needing positional correspondence use Slots directly.
func (r Result[TResult]) Values() []TResult {
	values := make([]TResult, 0, len(r.Slots))
	for _, s := range r.Slots {
		if s.Err == nil {
			values = append(values, s.Value)
		}
	}
	return values
}

// ErrSkipped marks slots whose items were never dispatched because the run
// was cancelled first.
var ErrSkipped = errors.New("item not dispatched")

// Run executes proc over items with the batching and concurrency limits in
// cfg, returning one slot per item in input order.
//
// Cancellation is cooperative: the context is checked before dispatching
// each batch and each item, in-flight items finish, and undispatched slots
// are marked with ErrSkipped. When the context was cancelled, Run returns
// the partial result alongside the cancellation error so the owning stage
// can distinguish abort from ordinary item failures.
//
// Item failures alone never make Run return an error — they are data in the
// result, judged by the caller.
func Run[TItem, TResult any](
	ctx context.Context,
	cfg config.FanOutConfig,
	items []TItem,
	proc Proc[TItem, TResult],
) (Result[TResult], error) {
	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return Result[TResult]{}, fmt.Errorf("failed to resolve observer: %w", err)
	}

	slots := make([]Slot[TResult], len(items))
	for i := range slots {
		slots[i].Index = i
	}
	result := Result[TResult]{Slots: slots}

	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > len(items) {
		batchSize = len(items)
	}

	maxBatches := cfg.MaxConcurrentBatches
	if maxBatches <= 0 {
		maxBatches = 1
	}

	observer.OnEvent(ctx, observability.Event{
		Type:      EventFanOutStart,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "fanout",
		Data: map[string]any{
			"item_count":             len(items),
			"batch_size":             batchSize,
			"max_workers":            cfg.MaxWorkers,
			"max_concurrent_batches": maxBatches,
		},
	})

	if len(items) == 0 {
		emitComplete(ctx, observer, result, nil)
		return result, nil
	}

	// In-flight work runs on a detached context so cancellation stops
	// dispatch without aborting items already started.
	itemCtx := context.WithoutCancel(ctx)

	batchSem := make(chan struct{}, maxBatches)
	var wg sync.WaitGroup

	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))

		if ctx.Err() != nil {
			markSkipped(slots[start:end], ctx.Err())
			continue
		}

		batchSem <- struct{}{}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			defer func() { <-batchSem }()
			runBatch(ctx, itemCtx, cfg, observer, items, slots, start, end, proc)
		}(start, end)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		emitComplete(ctx, observer, result, err)
		return result, fmt.Errorf("fan-out cancelled: %w", err)
	}

	emitComplete(ctx, observer, result, nil)
	return result, nil
}

// runBatch drains one batch through a bounded worker pool. Workers write
// only their own slot index, so no lock guards the slots slice.
func runBatch[TItem, TResult any](
	ctx context.Context,
	itemCtx context.Context,
	cfg config.FanOutConfig,
	observer observability.Observer,
	items []TItem,
	slots []Slot[TResult],
	start, end int,
	proc Proc[TItem, TResult],
) {
	observer.OnEvent(ctx, observability.Event{
		Type:      EventBatchStart,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "fanout",
		Data: map[string]any{
			"batch_start": start,
			"batch_end":   end,
		},
	})

	workers := cfg.MaxWorkers
	if workers <= 0 || workers > end-start {
		workers = end - start
	}

	queue := make(chan int, end-start)
	for i := start; i < end; i++ {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				if err := ctx.Err(); err != nil {
					slots[idx].Err = fmt.Errorf("%w: %w", ErrSkipped, err)
					continue
				}
				runItem(itemCtx, cfg, observer, idx, items[idx], &slots[idx], proc)
			}
		}()
	}
	wg.Wait()

	observer.OnEvent(ctx, observability.Event{
		Type:      EventBatchComplete,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "fanout",
		Data: map[string]any{
			"batch_start": start,
			"batch_end":   end,
		},
	})
}

// runItem executes one item with its bounded attempt budget.
func runItem[TItem, TResult any](
	ctx context.Context,
	cfg config.FanOutConfig,
	observer observability.Observer,
	index int,
	item TItem,
	slot *Slot[TResult],
	proc Proc[TItem, TResult],
) {
	observer.OnEvent(ctx, observability.Event{
		Type:      EventItemStart,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "fanout",
		Data: map[string]any{
			"item_index": index,
		},
	})

	attempts := max(1, cfg.Attempts)

	var value TResult
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		value, err = proc(ctx, index, item)
		if err == nil {
			break
		}
	}

	slot.Value = value
	slot.Err = err

	observer.OnEvent(ctx, observability.Event{
		Type:      EventItemComplete,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "fanout",
		Data: map[string]any{
			"item_index": index,
			"error":      err != nil,
		},
	})
}

func markSkipped[TResult any](slots []Slot[TResult], cause error) {
	for i := range slots {
		slots[i].Err = fmt.Errorf("%w: %w", ErrSkipped, cause)
	}
}

func emitComplete[TResult any](
	ctx context.Context,
	observer observability.Observer,
	result Result[TResult],
	cause error,
) {
	observer.OnEvent(ctx, observability.Event{
		Type:      EventFanOutComplete,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "fanout",
		Data: map[string]any{
			"items_succeeded": result.Succeeded(),
			"items_failed":    result.Failed(),
			"cancelled":       cause != nil,
		},
	})
}
