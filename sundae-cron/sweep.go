package sundaecron

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ExpiredDeleter removes connection records whose TTL has passed.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now int64) (int, error)
}

// ConnectionSweep returns a task that deletes connection records left behind
// by sockets that never reported a disconnect.
func ConnectionSweep(connections ExpiredDeleter, logger zerolog.Logger) RunCallback {
	return func(ctx context.Context) error {
		n, err := connections.DeleteExpired(ctx, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to sweep connections: %w", err)
		}
		logger.Info().Int("deleted", n).Msg("swept expired connections")
		return nil
	}
}
