package app

import (
	"context"
	"time"

	pkglog "github.com/example/identity-service/pkg/log"
)

type sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// runJanitor deletes expired refresh rows every interval until ctx is done.
// A non-positive interval disables it.
func runJanitor(ctx context.Context, s sweeper, interval time.Duration, logger pkglog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("refresh token sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int64("deleted", n).Msg("expired refresh tokens swept")
			}
		}
	}
}
