// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run executes the poll loop until the context is cancelled. One tick
// fires immediately so the store is populated before the first period
// elapses.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.Tick()

	for {
		select {
		case <-ctx.Done():
			if p.client != nil {
				p.client.Close()
				p.client = nil
			}
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}
