package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/playhub-backend/internal/domain"
	"github.com/yungbote/playhub-backend/internal/platform/ctxutil"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/platform/mq"
)

const (
	GameEventPublished = "game.published"
	GameEventFailed    = "game.failed"
	GameEventDeleted   = "game.deleted"
)

// GameEvent is the body exported for every lifecycle change, keyed by game id.
type GameEvent struct {
	Type       string     `json:"type"`
	GameID     uuid.UUID  `json:"game_id"`
	Slug       string     `json:"slug"`
	Title      string     `json:"title,omitempty"`
	CategoryID uuid.UUID  `json:"category_id"`
	JobID      *uuid.UUID `json:"job_id,omitempty"`
	Error      string     `json:"error,omitempty"`
	TraceID    string     `json:"trace_id,omitempty"`
	At         time.Time  `json:"at"`
}

// GameEventPublisher exports lifecycle events. Publishing runs in the
// background and failures are only logged.
type GameEventPublisher interface {
	Published(ctx context.Context, game *types.Game)
	Failed(ctx context.Context, game *types.Game, reason string)
	Deleted(ctx context.Context, game *types.Game)
}

// GameEventCounter counts delivered events by type.
type GameEventCounter interface {
	GameEvent(event string)
}

type gameEventPublisher struct {
	log     *logger.Logger
	pub     mq.Publisher
	counter GameEventCounter
	timeout time.Duration
}

// NewGameEventPublisher accepts an optional counter as its last argument.
func NewGameEventPublisher(baseLog *logger.Logger, pub mq.Publisher, counter ...GameEventCounter) GameEventPublisher {
	if pub == nil {
		pub = mq.NewNoop()
	}
	p := &gameEventPublisher{
		log:     baseLog.With("service", "GameEvents"),
		pub:     pub,
		timeout: 5 * time.Second,
	}
	if len(counter) > 0 {
		p.counter = counter[0]
	}
	return p
}

func (p *gameEventPublisher) Published(ctx context.Context, game *types.Game) {
	p.send(ctx, GameEventPublished, game, "")
}

func (p *gameEventPublisher) Failed(ctx context.Context, game *types.Game, reason string) {
	p.send(ctx, GameEventFailed, game, reason)
}

func (p *gameEventPublisher) Deleted(ctx context.Context, game *types.Game) {
	p.send(ctx, GameEventDeleted, game, "")
}

func (p *gameEventPublisher) send(ctx context.Context, typ string, game *types.Game, reason string) {
	if game == nil {
		return
	}
	ev := GameEvent{
		Type:       typ,
		GameID:     game.ID,
		Slug:       game.Slug,
		Title:      game.Title,
		CategoryID: game.CategoryID,
		JobID:      game.JobID,
		Error:      reason,
		At:         time.Now().UTC(),
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		ev.TraceID = td.TraceID
	}
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("encode game event", "type", typ, "game_id", game.ID, "error", err)
		return
	}
	msg := mq.Message{Key: game.ID.String(), Value: body}
	detached := ctxutil.Detach(ctx)
	go func() {
		pctx, cancel := context.WithTimeout(detached, p.timeout)
		defer cancel()
		if err := p.pub.Publish(pctx, msg); err != nil {
			p.log.Warn("game event publish failed", "type", typ, "game_id", ev.GameID, "error", err)
			return
		}
		if p.counter != nil {
			p.counter.GameEvent(typ)
		}
	}()
}
