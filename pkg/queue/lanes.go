// Package queue serializes outbound API calls per endpoint category. Each
// category gets one logical FIFO lane: at most one task per category is in
// flight at any instant, tasks run in submission order, and lanes for
// different categories proceed independently. Bounding concurrent pressure
// on a single remote rate-limit bucket to one request is the cheapest way
// to avoid burst-induced throttling.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/chirpwire/chirpd/pkg/social"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for lane scheduling.
var (
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chirpd_queue_depth",
		Help: "Number of tasks queued or executing by category",
	}, []string{"category"})

	queueWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chirpd_queue_wait_seconds",
		Help:    "Time a task spent waiting behind its lane predecessors",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"category"})
)

// Task is one unit of work executed on a lane.
type Task func(ctx context.Context) (any, error)

// Result is the settled outcome of a submitted task.
type Result struct {
	Value any
	Err   error
}

// Lanes multiplexes tasks onto per-category FIFO lanes.
type Lanes struct {
	mu     sync.Mutex
	tails  map[social.Category]chan struct{}
	logger zerolog.Logger
}

// NewLanes creates an empty lane set. Lanes are created on first use.
func NewLanes() *Lanes {
	return &Lanes{
		tails:  make(map[social.Category]chan struct{}),
		logger: log.With().Str("component", "queue").Logger(),
	}
}

// Submit attaches a task to the tail of its category lane and returns a
// channel that receives exactly one Result once the task settles. The task
// does not begin until every prior submission on the same lane has settled,
// regardless of how those submissions ended.
//
// A context cancelled while the task is still queued settles the task with
// ctx.Err() without executing it; the lane chain stays intact either way.
func (l *Lanes) Submit(ctx context.Context, category social.Category, task Task) <-chan Result {
	l.mu.Lock()
	prev := l.tails[category]
	done := make(chan struct{})
	l.tails[category] = done
	l.mu.Unlock()

	out := make(chan Result, 1)
	queueDepth.WithLabelValues(string(category)).Inc()
	queued := time.Now()

	go func() {
		defer close(done)
		defer queueDepth.WithLabelValues(string(category)).Dec()

		// Wait for the predecessor to settle before anything else. This
		// wait is deliberately not interruptible: releasing the chain
		// early would let a successor overlap an in-flight predecessor.
		if prev != nil {
			<-prev
		}

		queueWaitSeconds.WithLabelValues(string(category)).Observe(time.Since(queued).Seconds())

		if err := ctx.Err(); err != nil {
			l.logger.Debug().
				Str("category", string(category)).
				Msg("Dropping queued task, context cancelled before start")
			out <- Result{Err: err}
			return
		}

		value, err := task(ctx)
		out <- Result{Value: value, Err: err}
	}()

	return out
}

// Do submits a task and waits for its result. When the context ends first,
// Do returns ctx.Err() immediately; the task still settles on its lane in
// the background so lane ordering is preserved.
func (l *Lanes) Do(ctx context.Context, category social.Category, task Task) (any, error) {
	resultCh := l.Submit(ctx, category, task)

	select {
	case res := <-resultCh:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
