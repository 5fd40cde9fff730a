package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/metrics"
	"github.com/lexiclash/server/internal/v1/persist"
	"github.com/lexiclash/server/internal/v1/registry"
	"github.com/lexiclash/server/internal/v1/types"
)

const roomCodeLength = 4

func validRoomCode(code string) bool {
	return len(code) == roomCodeLength
}

// joinedPayload is the state sync sent to a connection entering a room.
// Reconnecting and late-joining clients get the grid and the remaining
// time, flagged skipAck so they do not participate in the start barrier.
type joinedPayload struct {
	GameCode         types.RoomCode     `json:"gameCode"`
	Name             types.ParticipantName `json:"name"`
	RoomName         string             `json:"roomName,omitempty"`
	Language         types.Language     `json:"language"`
	IsRanked         bool               `json:"isRanked"`
	IsHost           bool               `json:"isHost"`
	Reconnected      bool               `json:"reconnected,omitempty"`
	Spectator        bool               `json:"spectator,omitempty"`
	GameState        types.GameState    `json:"gameState"`
	Users            []userInfo         `json:"users"`
	Grid             types.Grid         `json:"grid,omitempty"`
	RemainingSeconds int                `json:"remainingSeconds,omitempty"`
	MinWordLength    int                `json:"minWordLength,omitempty"`
	SkipAck          bool               `json:"skipAck,omitempty"`
	Words            []*game.WordDetail `json:"words,omitempty"`
}

// buildJoined assembles the sync payload. Caller holds the room lock.
func (d *Dispatcher) buildJoined(r *game.Room, name types.ParticipantName, reconnected, spectator bool) joinedPayload {
	p := joinedPayload{
		GameCode:    r.Code,
		Name:        name,
		RoomName:    r.RoomName,
		Language:    r.Language,
		IsRanked:    r.IsRanked,
		IsHost:      r.Host == name,
		Reconnected: reconnected,
		Spectator:   spectator,
		GameState:   r.State,
		Users:       roomUsers(r),
	}
	if r.State == types.StateInProgress {
		p.Grid = r.Grid
		// The coordinator owns the live countdown; a freshly restored room
		// may not have one yet, so fall back to the persisted remainder.
		p.RemainingSeconds = d.rounds.Remaining(r.Code)
		if p.RemainingSeconds == 0 {
			p.RemainingSeconds = r.RemainingSeconds
		}
		p.MinWordLength = r.MinWordLength
		p.SkipAck = true
	}
	if reconnected {
		p.Words = r.WordDetails[name]
	}
	return p
}

func (d *Dispatcher) handleCreateGame(ctx context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.CreateGamePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.OutcomeMalformed
	}
	if !validRoomCode(p.GameCode) {
		return types.OutcomeInvalidGameCode
	}
	if p.Name == "" {
		return types.OutcomeUsernameRequired
	}
	lang := types.Language(p.Language)
	if lang == "" {
		lang = types.LangEnglish
	}
	if !types.ValidLanguage(lang) {
		return types.OutcomeMalformed.WithDetail("unsupported language")
	}

	code := types.RoomCode(p.GameCode)
	if existing := d.store.Get(code); existing != nil {
		// The same auth user re-creating from the same socket is an
		// idempotent migration, not a collision.
		if b, ok := d.reg.Lookup(connID); ok && b.Room == code && b.IsHost {
			return d.withRoom(ctx, code, func(r *game.Room) error {
				d.sendTo(connID, types.EventJoined, d.buildJoined(r, b.Participant, true, false))
				return nil
			})
		}
		return types.OutcomeCodeInUse
	}

	// A sibling instance may own this code already.
	if snap, err := d.mirror.LoadRoom(ctx, code); err == nil && snap != nil {
		return types.OutcomeCodeInUse
	}

	r := game.NewRoom(code, p.RoomName, lang, p.IsRanked)
	if !d.store.Put(r) {
		return types.OutcomeCodeInUse
	}

	return d.withRoom(ctx, code, func(r *game.Room) error {
		name := types.ParticipantName(p.Name)
		rec := r.AddParticipant(name, p.Avatar, connID, types.AuthUserID(p.AuthID))
		d.reg.Bind(registry.Binding{
			Room:        code,
			Participant: name,
			ConnID:      connID,
			AuthID:      rec.AuthUserID,
			IsHost:      true,
		})
		logging.Info(ctx, "Room created",
			zap.String("room_code", string(code)), zap.String("host", p.Name))
		d.sendTo(connID, types.EventJoined, d.buildJoined(r, name, false, false))
		d.broadcastUsers(r)
		return nil
	})
}

func (d *Dispatcher) handleJoin(ctx context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.JoinPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.OutcomeMalformed
	}
	if !validRoomCode(p.GameCode) {
		return types.OutcomeInvalidGameCode
	}
	if p.Name == "" {
		return types.OutcomeUsernameRequired
	}

	code := types.RoomCode(p.GameCode)
	name := types.ParticipantName(p.Name)
	authID := types.AuthUserID(p.AuthID)

	// Multi-tab takeover and idempotent re-join, resolved before the
	// target room is touched so no two room locks are ever held.
	if err := d.resolvePriorSession(ctx, connID, code, authID); err != nil {
		return err
	}

	if err := d.ensureRoom(ctx, code); err != nil {
		return err
	}

	return d.withRoom(ctx, code, func(r *game.Room) error {
		if existing, ok := r.Participants[name]; ok {
			return d.rejoinSeat(ctx, r, existing, connID, authID)
		}
		return d.admitNew(ctx, r, name, p.Avatar, connID, authID)
	})
}

// resolvePriorSession handles an authenticated user arriving on a new
// connection while an older session exists.
func (d *Dispatcher) resolvePriorSession(ctx context.Context, connID types.ConnID, target types.RoomCode, authID types.AuthUserID) error {
	// Same socket already bound somewhere: idempotent request. Leave the
	// old room first, then fall through to the new join.
	if b, ok := d.reg.Lookup(connID); ok && b.Room != target {
		if err := d.leaveCurrentRoom(ctx, connID, b); err != nil {
			return err
		}
	}

	if authID == "" {
		return nil
	}
	old, ok := d.reg.AuthBinding(authID)
	if !ok || old.ConnID == connID {
		return nil
	}

	if old.Room == target {
		// Same room on a different socket: the new connection supersedes
		// the old. The rejoin path rebinds the seat.
		d.reg.MarkMigrating(old.ConnID)
		d.sendTo(old.ConnID, types.EventSessionTakenOver, map[string]any{"gameCode": old.Room})
		if s, sok := d.reg.Sender(old.ConnID); sok {
			s.CloseAfter(takeoverCloseDelay)
		}
		return nil
	}

	// Different room: clean up the old participation entirely. A migrating
	// host takes their room down with them.
	d.reg.MarkMigrating(old.ConnID)
	d.sendTo(old.ConnID, types.EventSessionMigrated, map[string]any{"gameCode": old.Room})
	if s, sok := d.reg.Sender(old.ConnID); sok {
		s.CloseAfter(takeoverCloseDelay)
	}
	return d.dissolveParticipation(ctx, old.ConnID, old, true)
}

// leaveCurrentRoom removes a connection's participation on an intentional
// exit: the host seat transfers to the next eligible player, and the room
// closes only when no successor remains.
func (d *Dispatcher) leaveCurrentRoom(ctx context.Context, connID types.ConnID, b registry.Binding) error {
	return d.dissolveParticipation(ctx, connID, b, false)
}

// dissolveParticipation removes a connection's seat. With closeIfHost the
// departing host closes the room outright; otherwise the host seat is
// handed to the next eligible player when one exists.
func (d *Dispatcher) dissolveParticipation(ctx context.Context, connID types.ConnID, b registry.Binding, closeIfHost bool) error {
	destroy := false
	var tournamentID string
	err := d.withRoom(ctx, b.Room, func(r *game.Room) error {
		tournamentID = r.TournamentID
		if closeIfHost && r.Host == b.Participant {
			d.broadcast(r.Code, types.EventHostLeftRoomClosing, map[string]any{"gameCode": r.Code})
			destroy = true
			return nil
		}
		r.RemoveParticipant(b.Participant)
		if t, ok := r.ReconnectTimers[b.Participant]; ok {
			t.Stop()
			delete(r.ReconnectTimers, b.Participant)
		}
		if r.Host == b.Participant {
			next := r.EligibleNewHost()
			if next == "" {
				d.broadcast(r.Code, types.EventHostLeftRoomClosing, map[string]any{"gameCode": r.Code})
				destroy = true
				return nil
			}
			r.TransferHost(next)
			d.broadcast(r.Code, types.EventHostTransferred, map[string]any{"newHost": next})
		}
		d.broadcast(r.Code, types.EventPlayerLeft, map[string]any{"name": b.Participant})
		if r.TournamentID != "" {
			d.broadcast(r.Code, types.EventTournamentPlayerLeft, map[string]any{"name": b.Participant})
		}
		d.broadcastUsers(r)
		return nil
	})
	d.reg.Unbind(connID)
	if err != nil {
		if err == types.OutcomeRoomNotFound {
			return nil
		}
		return err
	}
	if tournamentID != "" && d.tournaments != nil {
		d.tournaments.PlayerLeft(ctx, tournamentID, b.Participant)
	}
	if destroy {
		d.teardownRoom(ctx, b.Room)
	}
	return nil
}

// ensureRoom makes the room resident, pulling it from the mirror when a
// client reconnected through this instance after a restart or handoff.
func (d *Dispatcher) ensureRoom(ctx context.Context, code types.RoomCode) error {
	if d.store.Get(code) != nil {
		return nil
	}
	snap, err := d.mirror.LoadRoom(ctx, code)
	if err != nil {
		if err == persist.ErrUnavailable {
			return types.OutcomeRoomNotFound
		}
		return err
	}
	if snap == nil {
		return types.OutcomeRoomNotFound
	}
	d.store.Replace(game.FromSnapshot(snap))
	logging.Info(ctx, "Room repopulated from mirror", zap.String("room_code", string(code)))
	d.ResumeRound(ctx, code)
	return nil
}

// rejoinSeat restores an existing participant on a new connection.
// Caller holds the room lock.
func (d *Dispatcher) rejoinSeat(ctx context.Context, r *game.Room, rec *game.ParticipantRecord, connID types.ConnID, authID types.AuthUserID) error {
	// An actively bound seat is superseded; the old socket gets a terminal
	// notice and a delayed close, unless resolvePriorSession already
	// delivered both.
	if !rec.Disconnected && rec.ConnID != "" && rec.ConnID != connID && !d.reg.IsMigrating(rec.ConnID) {
		d.reg.MarkMigrating(rec.ConnID)
		d.sendTo(rec.ConnID, types.EventSessionTakenOver, map[string]any{"gameCode": r.Code})
		if s, ok := d.reg.Sender(rec.ConnID); ok {
			s.CloseAfter(takeoverCloseDelay)
		}
	}

	wasDisconnected := rec.Disconnected
	rec.ConnID = connID
	rec.Disconnected = false
	rec.DisconnectedAt = time.Time{}
	rec.Presence = types.PresenceActive
	rec.MissedHeartbeats = 0
	rec.LastHeartbeat = time.Now()
	if authID != "" {
		rec.AuthUserID = authID
	}

	if t, ok := r.ReconnectTimers[rec.Name]; ok {
		t.Stop()
		delete(r.ReconnectTimers, rec.Name)
	}
	if rec.Name == r.Host {
		r.HostConnID = connID
		if r.HostReconnectTimer != nil {
			r.HostReconnectTimer.Stop()
			r.HostReconnectTimer = nil
		}
	}
	r.Touch()

	d.reg.Bind(registry.Binding{
		Room:        r.Code,
		Participant: rec.Name,
		ConnID:      connID,
		AuthID:      rec.AuthUserID,
		IsHost:      rec.Name == r.Host,
	})

	d.sendTo(connID, types.EventJoined, d.buildJoined(r, rec.Name, true, rec.Spectator))
	if wasDisconnected {
		d.broadcast(r.Code, types.EventPlayerReconnected, map[string]any{"name": rec.Name})
	}
	d.broadcastUsers(r)
	logging.Info(ctx, "Participant rejoined",
		zap.String("room_code", string(r.Code)), zap.String("participant", string(rec.Name)))
	return nil
}

// admitNew adds a brand new participant, applying late-join and capacity
// policy. Caller holds the room lock.
func (d *Dispatcher) admitNew(ctx context.Context, r *game.Room, name types.ParticipantName, avatar string, connID types.ConnID, authID types.AuthUserID) error {
	spectator := false
	switch {
	case r.State == types.StateInProgress && !r.AllowLateJoin:
		return types.OutcomeLateJoinBlocked
	case r.IsFull() && r.State == types.StateInProgress:
		spectator = true
	case r.IsFull():
		return types.OutcomeRoomFull
	}

	rec := r.AddParticipant(name, avatar, connID, authID)
	rec.Spectator = spectator

	d.reg.Bind(registry.Binding{
		Room:        r.Code,
		Participant: name,
		ConnID:      connID,
		AuthID:      authID,
		IsHost:      rec.IsHost,
	})

	d.sendTo(connID, types.EventJoined, d.buildJoined(r, name, false, spectator))
	if r.TournamentID != "" {
		d.broadcast(r.Code, types.EventTournamentPlayerJoined, map[string]any{"name": name})
	}
	d.broadcastUsers(r)
	logging.Info(ctx, "Participant joined",
		zap.String("room_code", string(r.Code)), zap.String("participant", string(name)),
		zap.Bool("spectator", spectator))
	return nil
}

func (d *Dispatcher) handleLeaveRoom(ctx context.Context, connID types.ConnID) error {
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}
	// Intentional exit: no grace period.
	return d.leaveCurrentRoom(ctx, connID, b)
}

func (d *Dispatcher) handleCloseRoom(ctx context.Context, connID types.ConnID) error {
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}
	err = d.withRoom(ctx, b.Room, func(r *game.Room) error {
		if r.Host != b.Participant {
			return types.OutcomeOnlyHostCanEnd
		}
		d.broadcast(r.Code, types.EventHostLeftRoomClosing, map[string]any{"gameCode": r.Code})
		return nil
	})
	if err != nil {
		return err
	}
	d.teardownRoom(ctx, b.Room)
	logging.Info(ctx, "Room closed by host", zap.String("room_code", string(b.Room)))
	return nil
}

func (d *Dispatcher) handleResetGame(ctx context.Context, connID types.ConnID) error {
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}
	return d.withRoom(ctx, b.Room, func(r *game.Room) error {
		if r.Host != b.Participant {
			return types.OutcomeOnlyHostCanEnd
		}
		d.rounds.CancelRoom(r.Code)
		if r.ValidationTimer != nil {
			r.ValidationTimer.Stop()
			r.ValidationTimer = nil
		}
		r.Reset()
		d.broadcastUsers(r)
		return nil
	})
}

// activeRoomInfo is one row of the public room listing.
type activeRoomInfo struct {
	GameCode  types.RoomCode  `json:"gameCode"`
	RoomName  string          `json:"roomName,omitempty"`
	Language  types.Language  `json:"language"`
	Players   int             `json:"players"`
	GameState types.GameState `json:"gameState"`
}

func (d *Dispatcher) handleGetActiveRooms(_ context.Context, connID types.ConnID) error {
	var rooms []activeRoomInfo
	for _, code := range d.store.Codes() {
		r := d.store.Get(code)
		if r == nil {
			continue
		}
		r.Lock()
		if !r.IsRanked && !r.IsEmpty() {
			rooms = append(rooms, activeRoomInfo{
				GameCode:  r.Code,
				RoomName:  r.RoomName,
				Language:  r.Language,
				Players:   r.PlayerCount(),
				GameState: r.State,
			})
		}
		r.Unlock()
	}
	d.sendTo(connID, types.EventActiveRooms, map[string]any{"rooms": rooms})
	return nil
}

// teardownRoom destroys a room outside any room lock: the store removal
// cancels room timers under its own locking.
func (d *Dispatcher) teardownRoom(ctx context.Context, code types.RoomCode) {
	for _, s := range d.reg.RoomSenders(code) {
		d.reg.Unbind(s.ConnID())
	}
	d.store.Remove(code)
	d.rounds.CancelRoom(code)
	d.dropChat(code)
	d.leaderboard.Cancel(code)
	d.dropPersistWarning(code)
	d.mirror.DeleteRoom(ctx, code)
	metrics.RoomParticipants.DeleteLabelValues(string(code))
}
