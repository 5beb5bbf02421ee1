package orchestrator

import (
	"context"
	"time"

	"github.com/nozcat/adam/internal/logging"
)

// Poll runs cycles until the context is canceled. After a cycle that did
// work it re-polls immediately; otherwise it sleeps whatever remains of the
// interval after the cycle's own elapsed time.
func (o *Orchestrator) Poll(ctx context.Context, interval time.Duration) {
	for {
		start := time.Now()

		worked, err := o.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// One bad cycle never stops the daemon.
			o.logger.Errorf("poll cycle: %v", err)
		}
		if worked {
			continue
		}

		remaining := interval - time.Since(start)
		if remaining < 0 {
			remaining = 0
		}
		select {
		case <-ctx.Done():
			o.logger.Iconf(logging.IconShutdown, "shutting down")
			return
		case <-time.After(remaining):
		}
	}
}
