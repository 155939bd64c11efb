// Package gate provides single-flight request gating: at most one request per
// credential is in flight at any instant, matching Audisto's one concurrent
// request per API key.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

// Prometheus metrics for gate operations.
var (
	gateWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audisto_gate_wait_seconds",
		Help:    "Time spent waiting for the single-flight gate by backend",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"backend"})

	gateInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audisto_gate_in_flight",
		Help: "Requests currently holding the single-flight gate by backend",
	}, []string{"backend"})
)

// Gate serializes requests for one credential.
type Gate interface {
	// Acquire blocks until the caller holds the gate or ctx ends. The returned
	// release function is safe to call more than once; only the first call
	// has an effect.
	Acquire(ctx context.Context) (release func(), err error)
}

// Local is an in-process gate. Waiters are admitted in the order the
// underlying semaphore provides; there is no priority.
type Local struct {
	sem *semaphore.Weighted
}

// NewLocal creates an in-process gate.
func NewLocal() *Local {
	return &Local{sem: semaphore.NewWeighted(1)}
}

// Acquire implements Gate.
func (g *Local) Acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	gateWaitSeconds.WithLabelValues("local").Observe(time.Since(start).Seconds())
	gateInFlight.WithLabelValues("local").Inc()

	return sync.OnceFunc(func() {
		gateInFlight.WithLabelValues("local").Dec()
		g.sem.Release(1)
	}), nil
}
