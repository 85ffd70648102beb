package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chirpwire/chirpd/pkg/social"
)

func TestDoReturnsTaskResult(t *testing.T) {
	lanes := NewLanes()

	value, err := lanes.Do(context.Background(), social.CategoryTweet,
		func(ctx context.Context) (any, error) {
			return "posted", nil
		})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if value != "posted" {
		t.Errorf("Expected value %q, got %v", "posted", value)
	}
}

func TestDoPropagatesTaskError(t *testing.T) {
	lanes := NewLanes()
	taskErr := errors.New("provider unavailable")

	_, err := lanes.Do(context.Background(), social.CategoryTweet,
		func(ctx context.Context) (any, error) {
			return nil, taskErr
		})
	if !errors.Is(err, taskErr) {
		t.Errorf("Expected task error, got %v", err)
	}
}

func TestLanePreservesSubmissionOrder(t *testing.T) {
	lanes := NewLanes()

	var mu sync.Mutex
	var order []int
	var chs []<-chan Result

	for i := 0; i < 20; i++ {
		i := i
		chs = append(chs, lanes.Submit(context.Background(), social.CategoryReply,
			func(ctx context.Context) (any, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return i, nil
			}))
	}

	for _, ch := range chs {
		<-ch
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("Execution order broken at position %d: got %d, order %v", i, got, order)
		}
	}
}

func TestLaneNeverOverlapsTasks(t *testing.T) {
	lanes := NewLanes()

	var inFlight, maxInFlight int32
	var chs []<-chan Result

	for i := 0; i < 10; i++ {
		chs = append(chs, lanes.Submit(context.Background(), social.CategoryMentions,
			func(ctx context.Context) (any, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					max := atomic.LoadInt32(&maxInFlight)
					if n <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil, nil
			}))
	}

	for _, ch := range chs {
		<-ch
	}

	if max := atomic.LoadInt32(&maxInFlight); max != 1 {
		t.Errorf("Expected at most 1 task in flight per lane, saw %d", max)
	}
}

func TestLanesRunIndependently(t *testing.T) {
	lanes := NewLanes()

	// Block the tweet lane.
	release := make(chan struct{})
	blocked := lanes.Submit(context.Background(), social.CategoryTweet,
		func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		})

	// A mentions task must complete while the tweet lane is held.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := lanes.Do(context.Background(), social.CategoryMentions,
			func(ctx context.Context) (any, error) { return nil, nil }); err != nil {
			t.Errorf("Mentions task failed: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Mentions lane blocked behind tweet lane")
	}

	close(release)
	<-blocked
}

func TestLaneContinuesAfterTaskFailure(t *testing.T) {
	lanes := NewLanes()

	first := lanes.Submit(context.Background(), social.CategoryTweet,
		func(ctx context.Context) (any, error) {
			return nil, fmt.Errorf("boom")
		})
	second := lanes.Submit(context.Background(), social.CategoryTweet,
		func(ctx context.Context) (any, error) {
			return "ok", nil
		})

	if res := <-first; res.Err == nil {
		t.Error("Expected first task to fail")
	}

	select {
	case res := <-second:
		if res.Err != nil {
			t.Errorf("Second task should succeed after predecessor failure, got %v", res.Err)
		}
		if res.Value != "ok" {
			t.Errorf("Expected value %q, got %v", "ok", res.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Lane stalled after a failed task")
	}
}

func TestQueuedTaskDroppedOnCancelledContext(t *testing.T) {
	lanes := NewLanes()

	release := make(chan struct{})
	blocked := lanes.Submit(context.Background(), social.CategoryTweet,
		func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	var executed atomic.Bool
	queued := lanes.Submit(ctx, social.CategoryTweet,
		func(ctx context.Context) (any, error) {
			executed.Store(true)
			return nil, nil
		})

	// Cancel while still queued behind the blocked predecessor.
	cancel()
	close(release)
	<-blocked

	res := <-queued
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", res.Err)
	}
	if executed.Load() {
		t.Error("Cancelled queued task must not execute")
	}
}

func TestDoReturnsEarlyOnContextCancel(t *testing.T) {
	lanes := NewLanes()

	release := make(chan struct{})
	defer close(release)
	blocked := lanes.Submit(context.Background(), social.CategoryReply,
		func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		})
	_ = blocked

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := lanes.Do(ctx, social.CategoryReply,
		func(ctx context.Context) (any, error) { return nil, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do should return promptly on cancellation, took %v", elapsed)
	}
}
