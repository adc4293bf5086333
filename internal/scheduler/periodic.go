// periodic.go — Fixed-period background task runner.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/EmreDinc10/bugscribe/internal/util"
)

// RunEvery calls fn every period until ctx is done. A panic in fn is logged and
// the next tick runs as usual. Always returns nil, so it can sit in an errgroup
// without tearing down its siblings.
func RunEvery(ctx context.Context, period time.Duration, name string, logger *zap.Logger, fn func(context.Context)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	logger.Debug("periodic task started", zap.String("task", name), zap.Duration("period", period))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runGuarded(ctx, name, logger, fn)
		}
	}
}

func runGuarded(ctx context.Context, name string, logger *zap.Logger, fn func(context.Context)) {
	defer util.Recover(logger, name)
	fn(ctx)
}
