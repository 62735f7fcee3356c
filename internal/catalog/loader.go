package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

// LoadResult is a completed rebuild handed back to the caller.
// Apps is either the full sorted list or nil with Err set.
type LoadResult struct {
	Apps []domain.AppEntry
	Err  error
}

// Load runs Rebuild on its own goroutine and delivers exactly one result.
// The caller never observes a partially built list.
func (c *Catalog) Load(ctx context.Context) <-chan LoadResult {
	out := make(chan LoadResult, 1)

	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("catalog rebuild panicked", zap.Any("panic", r))
				out <- LoadResult{Err: fmt.Errorf("catalog rebuild panicked: %v", r)}
			}
		}()

		apps, err := c.Rebuild(ctx)
		if err != nil {
			c.logger.Error("failed to load apps", zap.Error(err))
			out <- LoadResult{Err: err}
			return
		}
		out <- LoadResult{Apps: apps}
	}()

	return out
}
