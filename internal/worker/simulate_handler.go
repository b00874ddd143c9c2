package worker

import (
	"context"
	"errors"
	"time"

	"media-task-queue/internal/models"
)

// SimulateHandler is the default task, kept for smoke checks and tests. It
// fails when the payload sets should_fail and sleeps for duration_ms.
func SimulateHandler() Handler {
	return func(ctx context.Context, entry models.QueueEntry) (any, error) {
		if v, ok := entry.Payload["should_fail"].(bool); ok && v {
			return nil, errors.New("simulated failure requested by payload.should_fail")
		}
		if ms, ok := asInt(entry.Payload["duration_ms"]); ok && ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return map[string]any{"message": "simulated job completed"}, nil
	}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	default:
		return 0, false
	}
}
