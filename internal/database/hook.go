package database

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/logger"

	"github.com/uptrace/bun"
)

// QueryLogger reports failed and slow queries through the service logger.
type QueryLogger struct {
	Logger        *logger.Logger
	SlowThreshold time.Duration
}

var _ bun.QueryHook = (*QueryLogger)(nil)

func (h *QueryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	took := time.Since(event.StartTime)
	switch {
	case event.Err != nil && !IsNotFound(event.Err):
		h.Logger.Warn("DATABASE", fmt.Sprintf("%s failed after %s: %v", event.Operation(), took, event.Err))
	case h.SlowThreshold > 0 && took > h.SlowThreshold:
		h.Logger.Warn("DATABASE", fmt.Sprintf("slow %s (%s): %s", event.Operation(), took, event.Query))
	}
}
