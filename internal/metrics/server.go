package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rewired-gh/derivwatch/internal/logger"
)

// HealthFunc reports whether the service is healthy.
type HealthFunc func(ctx context.Context) error

// Handler serves /metrics and /healthz.
func Handler(healthFn HealthFunc) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "unhealthy: %v", err)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

// StartServer runs the metrics server in a goroutine. Shut it down with the
// returned server.
func StartServer(addr string, healthFn HealthFunc) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(healthFn),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed: %v", err)
		}
	}()

	return srv
}

// PollFreshness fails health checks once the last successful poll is older
// than MaxAge. It is safe to read from the HTTP goroutine while the loop
// writes.
type PollFreshness struct {
	MaxAge time.Duration
	Now    func() time.Time
	last   atomic.Int64
}

// NewPollFreshness starts the clock at now so a fresh process is healthy
// until its first MaxAge elapses.
func NewPollFreshness(maxAge time.Duration, now func() time.Time) *PollFreshness {
	if now == nil {
		now = time.Now
	}
	p := &PollFreshness{MaxAge: maxAge, Now: now}
	p.last.Store(now().UnixNano())
	return p
}

// MarkSuccess records a successful poll at t.
func (p *PollFreshness) MarkSuccess(t time.Time) {
	p.last.Store(t.UnixNano())
	LastSuccessfulPoll.Set(float64(t.Unix()))
}

// Last returns the time of the last successful poll.
func (p *PollFreshness) Last() time.Time {
	return time.Unix(0, p.last.Load())
}

// Check implements HealthFunc.
func (p *PollFreshness) Check(_ context.Context) error {
	age := p.Now().Sub(p.Last())
	if age > p.MaxAge {
		return fmt.Errorf("last successful poll %v ago (max %v)", age.Truncate(time.Millisecond), p.MaxAge)
	}
	return nil
}
