package dispatch

import (
	"context"
	"encoding/json"

	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/tournament"
	"github.com/lexiclash/server/internal/v1/types"
)

var outcomeTournamentNotFound = &types.Outcome{Event: types.EventError, Code: "TournamentNotFound"}

func (d *Dispatcher) handleCreateTournament(ctx context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.CreateTournamentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.OutcomeMalformed
	}
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}

	codes := make([]types.RoomCode, 0, len(p.GameCodes)+1)
	codes = append(codes, b.Room)
	for _, c := range p.GameCodes {
		if validRoomCode(c) && types.RoomCode(c) != b.Room {
			codes = append(codes, types.RoomCode(c))
		}
	}

	t := d.tournaments.Create(ctx, p.Name, p.Rounds, codes)

	// The creating room joins the tournament immediately.
	err = d.withRoom(ctx, b.Room, func(r *game.Room) error {
		if r.Host != b.Participant {
			return types.OutcomeOnlyHostCanStart
		}
		r.TournamentID = t.ID
		d.broadcast(r.Code, types.EventTournamentCreated, map[string]any{
			"tournamentId": t.ID,
			"name":         t.Name,
			"rounds":       t.Rounds,
		})
		return nil
	})
	if err != nil {
		d.tournaments.Cancel(ctx, t.ID)
		return err
	}
	return nil
}

func (d *Dispatcher) handleStartTournamentRound(ctx context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.TournamentRoundPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.TournamentID == "" {
		return types.OutcomeMalformed
	}
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}

	t, startErr := d.tournaments.StartRound(ctx, p.TournamentID)
	if startErr != nil {
		if startErr == tournament.ErrNotFound {
			return outcomeTournamentNotFound
		}
		return &types.Outcome{Event: types.EventError, Code: "TournamentFinished"}
	}

	d.broadcast(b.Room, types.EventTournamentRoundStarting, map[string]any{
		"tournamentId": t.ID,
		"round":        t.CurrentRound + 1,
		"rounds":       t.Rounds,
	})
	return nil
}

func (d *Dispatcher) handleGetTournamentStandings(ctx context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.TournamentRoundPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.TournamentID == "" {
		return types.OutcomeMalformed
	}

	t, ok := d.tournaments.Standings(ctx, p.TournamentID)
	if !ok {
		return outcomeTournamentNotFound
	}
	d.sendTo(connID, types.EventTournamentRoundComplete, map[string]any{
		"tournamentId": t.ID,
		"round":        t.CurrentRound,
		"rounds":       t.Rounds,
		"standings":    t.Standings,
		"state":        t.State,
	})
	return nil
}

func (d *Dispatcher) handleCancelTournament(ctx context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.TournamentRoundPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.TournamentID == "" {
		return types.OutcomeMalformed
	}
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}

	if !d.tournaments.Cancel(ctx, p.TournamentID) {
		return outcomeTournamentNotFound
	}

	err = d.withRoom(ctx, b.Room, func(r *game.Room) error {
		if r.TournamentID == p.TournamentID {
			r.TournamentID = ""
		}
		d.broadcast(r.Code, types.EventTournamentComplete, map[string]any{
			"tournamentId": p.TournamentID,
			"cancelled":    true,
		})
		return nil
	})
	if err == types.OutcomeRoomNotFound {
		return nil
	}
	return err
}
