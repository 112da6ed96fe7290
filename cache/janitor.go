package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunJanitor runs a loop purging expired entries from the store,
// one sweep per interval, until ctx is done.
// If a sweep fails, it is logged and retried on the next tick.
func RunJanitor(ctx context.Context, s Sweeper, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		return
	}
	log.Info().Msgf("Starting cache sweep loop with interval %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Stopping cache sweep loop")
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Could not sweep expired entries")
				continue
			}
			if removed > 0 {
				log.Debug().Int("removed", removed).Msg("Swept expired entries")
			} else {
				log.Trace().Msg("No entries expired, pausing sweep")
			}
		}
	}
}
