package services

import (
	"fmt"

	"github.com/google/uuid"

	dbpkg "github.com/yungbote/playhub-backend/internal/data/db"
	"github.com/yungbote/playhub-backend/internal/data/repos"
	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

// positionLockKey serialises allocations on postgres for the length of the transaction.
const positionLockKey int64 = 0x706c6179 // "play"

// Assignment is the outcome of one allocation.
type Assignment struct {
	Position int
	// Displaced lists games pushed to the end of the ordering to make room.
	Displaced []uuid.UUID
	// Changed is false when the game already held the requested position.
	Changed bool
}

// PositionAllocator is the only writer of game.position. Every method must run
// inside the caller's transaction and expects the subject row to exist.
type PositionAllocator interface {
	AssignOnCreate(dbc dbctx.Context, gameID uuid.UUID, requested *int) (Assignment, error)
	AssignOnUpdate(dbc dbctx.Context, gameID uuid.UUID, requested int) (Assignment, error)
}

type positionAllocator struct {
	log       *logger.Logger
	games     repos.GameRepo
	positions repos.PositionHistoryRepo
}

func NewPositionAllocator(baseLog *logger.Logger, games repos.GameRepo, positions repos.PositionHistoryRepo) PositionAllocator {
	return &positionAllocator{
		log:       baseLog.With("service", "PositionAllocator"),
		games:     games,
		positions: positions,
	}
}

func (a *positionAllocator) lock(dbc dbctx.Context) error {
	if dbc.Tx == nil {
		return domainagg.NewError(domainagg.CodeInternal, "assign_position", "position allocation requires a transaction", nil)
	}
	if !dbpkg.IsPostgres(dbc.Tx) {
		return nil
	}
	return dbc.Tx.WithContext(dbc.Ctx).Exec("SELECT pg_advisory_xact_lock(?)", positionLockKey).Error
}

func (a *positionAllocator) AssignOnCreate(dbc dbctx.Context, gameID uuid.UUID, requested *int) (Assignment, error) {
	if err := a.lock(dbc); err != nil {
		return Assignment{}, err
	}
	total, err := a.games.Count(dbc)
	if err != nil {
		return Assignment{}, err
	}
	others := int(total) - 1
	if others < 0 {
		others = 0
	}

	if requested == nil {
		maxPos, err := a.games.MaxPosition(dbc)
		if err != nil {
			return Assignment{}, err
		}
		if err := a.place(dbc, gameID, maxPos+1); err != nil {
			return Assignment{}, err
		}
		return Assignment{Position: maxPos + 1, Changed: true}, nil
	}

	p := *requested
	if p < 1 {
		return Assignment{}, domainagg.Validation("assign_position", "position must be at least 1")
	}
	if p > others+1 {
		return Assignment{}, domainagg.Validation("assign_position", fmt.Sprintf("position must be between 1 and %d", others+1))
	}
	return a.claim(dbc, gameID, p)
}

func (a *positionAllocator) AssignOnUpdate(dbc dbctx.Context, gameID uuid.UUID, requested int) (Assignment, error) {
	if err := a.lock(dbc); err != nil {
		return Assignment{}, err
	}
	game, err := a.games.GetByID(dbc, gameID)
	if err != nil {
		return Assignment{}, err
	}
	if game == nil {
		return Assignment{}, domainagg.NotFound("assign_position", "game not found")
	}
	if game.Position != nil && *game.Position == requested {
		return Assignment{Position: requested}, nil
	}
	if requested < 1 {
		return Assignment{}, domainagg.Validation("assign_position", "position must be at least 1")
	}
	total, err := a.games.Count(dbc)
	if err != nil {
		return Assignment{}, err
	}
	if requested > int(total) {
		return Assignment{}, domainagg.Conflict("assign_position", fmt.Sprintf("position out of current range (1..%d)", total))
	}

	// leave the old slot first so a displaced occupant can land on the smallest free tail position
	if game.Position != nil {
		if err := a.games.SetPosition(dbc, gameID, nil); err != nil {
			return Assignment{}, err
		}
	}
	return a.claim(dbc, gameID, requested)
}

// claim puts gameID at p, appending the current occupant (if any) to the end.
func (a *positionAllocator) claim(dbc dbctx.Context, gameID uuid.UUID, p int) (Assignment, error) {
	out := Assignment{Position: p, Changed: true}
	occupant, err := a.games.GetByPosition(dbc, p)
	if err != nil {
		return Assignment{}, err
	}
	if occupant != nil && occupant.ID != gameID {
		maxPos, err := a.games.MaxPosition(dbc)
		if err != nil {
			return Assignment{}, err
		}
		if err := a.place(dbc, occupant.ID, maxPos+1); err != nil {
			return Assignment{}, err
		}
		out.Displaced = append(out.Displaced, occupant.ID)
		a.log.Debug("position displaced", "game_id", occupant.ID, "from", p, "to", maxPos+1)
	}
	if err := a.place(dbc, gameID, p); err != nil {
		return Assignment{}, err
	}
	return out, nil
}

func (a *positionAllocator) place(dbc dbctx.Context, gameID uuid.UUID, p int) error {
	pos := p
	if err := a.games.SetPosition(dbc, gameID, &pos); err != nil {
		return err
	}
	if _, err := a.positions.GetOrCreate(dbc, gameID, p); err != nil {
		return err
	}
	return nil
}
