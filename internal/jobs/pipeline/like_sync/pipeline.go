package like_sync

import (
	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	jobrt "github.com/yungbote/playhub-backend/internal/jobs/runtime"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/services"
)

// Run persists the like state for one (user, game) pair. The redis set is the
// source when it can answer, so late or reordered jobs converge on what the
// user last did.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	userID, okUser := jc.PayloadUUID("user_id")
	gameID, okGame := jc.PayloadUUID("game_id")
	if !okUser || !okGame {
		return domainagg.Validation("like_sync", "payload needs user_id and game_id")
	}
	action := jc.PayloadString("action")

	applied, changed, err := services.ReconcileLikeSync(dbctx.Context{Ctx: jc.Ctx, Tx: p.db}, p.likes, p.state, userID, gameID, action)
	if err != nil {
		return err
	}
	if applied != action {
		p.log.Debug("like sync superseded by newer state", "game_id", gameID, "queued", action, "applied", applied)
	}
	jc.Succeed("done", map[string]any{
		"game_id": gameID,
		"action":  applied,
		"changed": changed,
	})
	return nil
}
