package like_count_refresh

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/playhub-backend/internal/domain"
	jobrt "github.com/yungbote/playhub-backend/internal/jobs/runtime"
	"github.com/yungbote/playhub-backend/internal/likecount"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/services"
)

type refreshStats struct {
	Games   int `json:"games"`
	Changed int `json:"changed"`
	Rebased int `json:"rebased"`
}

// Run recomputes like_count_cache for every game, keyset-paginated by id.
// A failure part way leaves earlier batches refreshed; the retry redoes them
// and produces the same values because the walk is deterministic.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	dbc := dbctx.Context{Ctx: jc.Ctx, Tx: p.db}
	now := p.now().UTC()
	if !likecount.Plausible(now) {
		// an unsynchronised clock would store base-only counts for every game
		return fmt.Errorf("clock reads %s; refusing to refresh like counts", now.Format("2006-01-02"))
	}
	total, err := p.games.Count(dbc)
	if err != nil {
		return err
	}
	jc.Progress("refresh", 0, fmt.Sprintf("Refreshing %d games", total))

	stats := refreshStats{}
	var touched []uuid.UUID
	after := uuid.Nil
	for {
		batch, err := p.games.ListAfterID(dbc, after, p.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		ids := make([]uuid.UUID, 0, len(batch))
		for _, g := range batch {
			ids = append(ids, g.ID)
		}
		previous, err := p.likeCounts.GetByGameIDs(dbc, ids)
		if err != nil {
			return err
		}
		for _, g := range batch {
			changed, rebased, err := p.refreshOne(dbc, g, previous[g.ID], now)
			if err != nil {
				return fmt.Errorf("refresh game %s: %w", g.ID, err)
			}
			stats.Games++
			if rebased {
				stats.Rebased++
			}
			if changed || rebased {
				stats.Changed++
				touched = append(touched, g.ID)
			}
		}
		after = batch[len(batch)-1].ID
		if total > 0 {
			jc.Progress("refresh", int(int64(stats.Games)*95/total), fmt.Sprintf("Refreshed %d of %d games", stats.Games, total))
		}
		if len(batch) < p.cfg.BatchSize {
			break
		}
	}

	if len(touched) > 0 && p.invalidator != nil {
		p.invalidator.Batch(jc.Ctx, services.BatchInvalidation{GameIDs: touched})
	}
	jc.Log.Info("like counts refreshed", "games", stats.Games, "changed", stats.Changed, "rebased", stats.Rebased)
	jc.Succeed("done", stats)
	return nil
}

// refreshOne stores the derived count for g, rebasing it first when its walk
// has grown past the configured length. Rebasing leaves the derived value as is.
func (p *Pipeline) refreshOne(dbc dbctx.Context, g *types.Game, prev *types.LikeCountCache, now time.Time) (changed bool, rebased bool, err error) {
	id := g.ID.String()
	if p.cfg.RebaseAfterDays > 0 && likecount.ElapsedDays(g.LastLikeIncrement, now) > p.cfg.RebaseAfterDays {
		base, last := likecount.Rebase(id, g.BaseLikeCount, g.LastLikeIncrement, now)
		if err := p.games.UpdateFields(dbc, g.ID, map[string]interface{}{
			"base_like_count":     base,
			"last_like_increment": last,
		}); err != nil {
			return false, false, err
		}
		g.BaseLikeCount, g.LastLikeIncrement = base, last
		rebased = true
	}
	derived := likecount.Derived(id, g.BaseLikeCount, g.LastLikeIncrement, now)
	if err := p.likeCounts.Upsert(dbc, &types.LikeCountCache{
		GameID:          g.ID,
		CachedLikeCount: derived,
		ComputedFor:     now.Format("2006-01-02"),
	}); err != nil {
		return false, rebased, err
	}
	return prev == nil || prev.CachedLikeCount != derived, rebased, nil
}
