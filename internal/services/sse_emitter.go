package services

import (
	"context"

	"github.com/yungbote/coursesync-backend/internal/platform/logger"
	"github.com/yungbote/coursesync-backend/internal/realtime"
	"github.com/yungbote/coursesync-backend/internal/realtime/bus"
)

// SSEEmitter publishes a realtime event. Delivery is best effort: there is no
// acknowledgement and no retry.
type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if e == nil || e.Hub == nil {
		return
	}
	e.Hub.Broadcast(msg)
}

// RedisEmitter publishes through the bus so every instance's hub sees the event.
type RedisEmitter struct {
	Bus bus.Bus
	Log *logger.Logger
}

func (e *RedisEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if e == nil || e.Bus == nil {
		return
	}
	if err := e.Bus.Publish(ctx, msg); err != nil && e.Log != nil {
		e.Log.Warn("SSE publish failed", "event", msg.Event, "channel", msg.Channel, "error", err)
	}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, realtime.SSEMessage) {}
