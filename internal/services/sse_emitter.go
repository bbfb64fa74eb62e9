package services

import (
	"context"
	"time"

	"github.com/yungbote/playhub-backend/internal/platform/ctxutil"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/realtime"
	"github.com/yungbote/playhub-backend/internal/realtime/bus"
)

// SSEEmitter delivers one message to the notification sink. Emit never blocks
// the caller on delivery and reports nothing back: messages may be dropped.
type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

// HubEmitter writes straight into the in-process hub (api and all-in-one modes).
type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if e == nil || e.Hub == nil {
		return
	}
	e.Hub.Broadcast(msg)
}

// BusEmitter publishes through the redis bus so API processes can forward the
// message to their hubs. Publishing happens off the caller's goroutine.
type BusEmitter struct {
	Bus     bus.Bus
	Log     *logger.Logger
	Timeout time.Duration
}

func (e *BusEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if e == nil || e.Bus == nil {
		return
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	detached := ctxutil.Detach(ctx)
	go func() {
		pctx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()
		if err := e.Bus.Publish(pctx, msg); err != nil && e.Log != nil {
			e.Log.Debug("sse publish dropped", "channel", msg.Channel, "event", string(msg.Event), "error", err)
		}
	}()
}

// NopEmitter drops everything.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, realtime.SSEMessage) {}
