package call

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ReasonExpired is the end reason of a call no device attached to in time.
const ReasonExpired = "expired"

// StartJanitor sweeps call records every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.sweep(now)
			}
		}
	}()
}

// sweep expires idle dialed calls and forgets ended ones past retention.
func (m *Manager) sweep(now time.Time) (expired, forgotten int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.calls {
		switch {
		case e.session == nil && e.call.State != StateEnded:
			if m.opts.IdleTimeout <= 0 || now.Sub(e.call.CreatedAt) < m.opts.IdleTimeout {
				continue
			}
			e.call.State = StateEnded
			e.call.EndReason = ReasonExpired
			e.endedAt = now
			expired++
			m.metrics.CallEvent("expired")
			log.Info().Str("call_id", id).Msg("call expired without a device")
		case e.call.State == StateEnded && e != m.active:
			if m.opts.Retention <= 0 || e.endedAt.IsZero() || now.Sub(e.endedAt) < m.opts.Retention {
				continue
			}
			delete(m.calls, id)
			forgotten++
		}
	}
	return expired, forgotten
}
