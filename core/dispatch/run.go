package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Run executes a cycle immediately and then every interval until the context
// is canceled. Each cycle gets timeout to finish; a tick that fires while the
// previous cycle is still running is skipped. Run waits for the in-flight
// cycle before returning.
func (m *Manager) Run(ctx context.Context, interval, timeout time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	var wg sync.WaitGroup
	defer wg.Wait()

	trigger := func() {
		if m.running.Load() {
			m.logger.Warnf("previous cycle still running, skipping tick")
			m.recordSkip("overlap")
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if _, err := m.Cycle(cctx); err != nil && !errors.Is(err, ErrCycleRunning) {
				m.logger.Debugf("cycle error: %v", err)
			}
		}()
	}

	trigger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trigger()
		}
	}
}
