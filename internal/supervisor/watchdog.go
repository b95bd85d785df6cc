package supervisor

import (
	"context"
	"log/slog"
	"time"
)

// RunWatchdog ticks until ctx is cancelled, enforcing the idle timeout
// and the per-instance output size bound. Callers run it in its own
// goroutine.
func (s *Supervisor) RunWatchdog(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.watchdogTick()
		}
	}
}

func (s *Supervisor) watchdogTick() {
	s.mu.Lock()
	live := s.mode == ModeLive
	s.mu.Unlock()
	if !live {
		return
	}

	if s.hub.Count() == 0 {
		idle := time.Since(s.lastActivityTime())
		if idle >= s.cfg.IdleTimeout {
			s.logger.Info("idle timeout reached, stopping encoder",
				slog.Duration("idle", idle),
			)
			s.Stop()
			return
		}
	}

	if s.cfg.MaxStreamSize > 0 && s.hub.BytesRead() >= s.cfg.MaxStreamSize {
		s.Recycle()
	}
}
