package workspace

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Janitor periodically evicts idle workspaces and checks the storage backend,
// backing off while the backend is failing.
type Janitor struct {
	log      zerolog.Logger
	registry *Registry
	interval time.Duration
}

func NewJanitor(log zerolog.Logger, r *Registry, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{log: log, registry: r, interval: interval}
}

func (j *Janitor) Run(ctx context.Context) {
	if j == nil || j.registry == nil {
		return
	}

	timer := time.NewTimer(j.interval)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := j.runOnce(ctx); err != nil {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}

		timer.Reset(backoffDuration(j.interval, consecutiveFailures))
	}
}

func (j *Janitor) runOnce(ctx context.Context) error {
	if n := j.registry.Evict(); n > 0 {
		j.log.Debug().Int("evicted", n).Msg("janitor pass")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := j.registry.Ping(pingCtx); err != nil {
		j.log.Warn().Err(err).Msg("storage ping failed")
		return err
	}
	return nil
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = time.Minute
	}
	if failures <= 0 {
		return base
	}

	// base * 2^failures, capped.
	if failures > 6 {
		failures = 6
	}
	d := base * time.Duration(1<<failures)
	if d > 15*time.Minute {
		return 15 * time.Minute
	}
	return d
}
