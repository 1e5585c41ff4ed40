package testsupport

import (
	"context"
	"sync"

	"trawler/internal/queue"
	"trawler/internal/scheduler"
	"trawler/internal/subscriptions"
)

// FakeLister returns canned items, or per-canonical-id items when ByCanonical
// is populated. Safe for concurrent use.
type FakeLister struct {
	mu          sync.Mutex
	Items       []scheduler.ListedItem
	ByCanonical map[string][]scheduler.ListedItem
	Err         error
	ErrFor      map[string]error
	calls       int
}

func (f *FakeLister) List(_ context.Context, sub *subscriptions.Subscription) ([]scheduler.ListedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.ErrFor[sub.CanonicalID]; err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.ByCanonical != nil {
		return f.ByCanonical[sub.CanonicalID], nil
	}
	return f.Items, nil
}

// Calls reports how many times List ran.
func (f *FakeLister) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeProcessor returns a canned result or error; ProcessFunc overrides both
// when set.
type FakeProcessor struct {
	mu          sync.Mutex
	Result      scheduler.ProcessResult
	Err         error
	ProcessFunc func(ctx context.Context, item *queue.Item) (scheduler.ProcessResult, error)
	processed   []int64
}

func (f *FakeProcessor) Process(ctx context.Context, item *queue.Item) (scheduler.ProcessResult, error) {
	f.mu.Lock()
	f.processed = append(f.processed, item.ID)
	fn := f.ProcessFunc
	result, err := f.Result, f.Err
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, item)
	}
	return result, err
}

// Processed returns the ids handed to Process, in order.
func (f *FakeProcessor) Processed() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.processed))
	copy(out, f.processed)
	return out
}
