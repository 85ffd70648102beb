package identity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chirpwire/chirpd/pkg/social"
)

func TestGetFetchesOnce(t *testing.T) {
	var calls int32
	cache := NewCache(func(ctx context.Context) (*social.Identity, error) {
		atomic.AddInt32(&calls, 1)
		return &social.Identity{ID: "bot-1", Handle: "chirpd"}, nil
	}, time.Minute)

	for i := 0; i < 5; i++ {
		id, err := cache.Get(context.Background())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if id.ID != "bot-1" || id.Handle != "chirpd" {
			t.Errorf("Unexpected identity: %+v", id)
		}
	}

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected 1 fetch for repeated gets within TTL, got %d", n)
	}
}

func TestGetRefreshesAfterTTL(t *testing.T) {
	var calls int32
	cache := NewCache(func(ctx context.Context) (*social.Identity, error) {
		atomic.AddInt32(&calls, 1)
		return &social.Identity{ID: "bot-1", Handle: "chirpd"}, nil
	}, 10*time.Millisecond)

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get after TTL failed: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("Expected a second fetch after TTL expiry, got %d", n)
	}
}

func TestGetPropagatesFetchError(t *testing.T) {
	fetchErr := errors.New("lookup failed")
	cache := NewCache(func(ctx context.Context) (*social.Identity, error) {
		return nil, fetchErr
	}, time.Minute)

	if _, err := cache.Get(context.Background()); !errors.Is(err, fetchErr) {
		t.Errorf("Expected fetch error, got %v", err)
	}
}

func TestFailedFetchDoesNotPoisonCache(t *testing.T) {
	var calls int32
	cache := NewCache(func(ctx context.Context) (*social.Identity, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("temporarily unavailable")
		}
		return &social.Identity{ID: "bot-1", Handle: "chirpd"}, nil
	}, time.Minute)

	if _, err := cache.Get(context.Background()); err == nil {
		t.Fatal("Expected first get to fail")
	}

	id, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Second get should succeed, got %v", err)
	}
	if id.ID != "bot-1" {
		t.Errorf("Unexpected identity: %+v", id)
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	var calls int32
	cache := NewCache(func(ctx context.Context) (*social.Identity, error) {
		atomic.AddInt32(&calls, 1)
		return &social.Identity{ID: "bot-1", Handle: "chirpd"}, nil
	}, time.Hour)

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	cache.Invalidate()

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get after invalidate failed: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("Expected refresh after invalidate, got %d fetches", n)
	}
}

func TestConcurrentGets(t *testing.T) {
	var calls int32
	cache := NewCache(func(ctx context.Context) (*social.Identity, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(5 * time.Millisecond)
		return &social.Identity{ID: "bot-1", Handle: "chirpd"}, nil
	}, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := cache.Get(context.Background())
			if err != nil {
				t.Errorf("Concurrent get failed: %v", err)
				return
			}
			if id.ID != "bot-1" {
				t.Errorf("Unexpected identity: %+v", id)
			}
		}()
	}
	wg.Wait()

	// Concurrent cold gets may each fetch; the point is that every caller
	// gets a consistent answer and later gets hit the cache.
	before := atomic.LoadInt32(&calls)
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if after := atomic.LoadInt32(&calls); after != before {
		t.Errorf("Expected warm get to hit the cache, fetches went %d -> %d", before, after)
	}
}
