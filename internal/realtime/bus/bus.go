package bus

import (
	"context"

	"github.com/yungbote/playhub-backend/internal/realtime"
)

// Bus fans SSE messages out across API processes. Workers publish, every API
// process forwards what it receives into its local hub.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
