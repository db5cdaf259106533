package registry

import (
	"context"
	"log"
	"time"
)

// PurgeScheduler runs the registry's Purge on a fixed interval. It is a plain
// cooperative loop: the process lifecycle cancels it through the context, and
// the same Purge is callable from the operator endpoint.
type PurgeScheduler struct {
	svc      Service
	interval time.Duration
}

// NewPurgeScheduler creates a scheduler purging through svc every interval.
func NewPurgeScheduler(svc Service, interval time.Duration) *PurgeScheduler {
	return &PurgeScheduler{svc: svc, interval: interval}
}

// Run purges once immediately and then on every tick until ctx is cancelled.
func (s *PurgeScheduler) Run(ctx context.Context) {
	log.Printf("purge: scheduler starting, interval=%s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("purge: scheduler stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *PurgeScheduler) runOnce(ctx context.Context) {
	start := time.Now()
	removed, err := s.svc.Purge(ctx)
	if err != nil {
		log.Printf("purge: run failed after removing %d: %v", removed, err)
		return
	}
	log.Printf("purge: removed=%d duration_ms=%d", removed, time.Since(start).Milliseconds())
}
