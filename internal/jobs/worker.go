package jobs

import (
	"context"
	"log/slog"
)

// Work receives items from queue in arrival order and runs each one to
// completion before receiving the next. It returns when ctx is done; an
// item received after that is discarded.
func Work(ctx context.Context, queue <-chan WorkItem, run func(context.Context, WorkItem), logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-queue:
			if ctx.Err() != nil {
				logger.Info("jobs: discarding queued run", "job", item.Name)
				return
			}
			run(ctx, item)
		}
	}
}
