package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/metrics"
	"github.com/lexiclash/server/internal/v1/types"
)

const (
	// heartbeatSampleInterval is the presence monitor cadence;
	// heartbeatMissThreshold consecutive missed samples mark a connection weak.
	heartbeatSampleInterval = 10 * time.Second
	heartbeatMissThreshold  = 3
)

// HandleConnect registers a freshly accepted connection's write half.
func (d *Dispatcher) HandleConnect(s types.Sender) {
	d.reg.Register(s)
	metrics.IncConnection()
}

// HandleDisconnect is invoked by the transport when a connection's read
// loop exits. Identity decides the grace path: hosts get the long window
// and a hand-off on expiry, players get the short window.
func (d *Dispatcher) HandleDisconnect(connID types.ConnID) {
	metrics.DecConnection()
	d.dropBudget(connID)

	if d.reg.IsMigrating(connID) {
		// Superseded socket; the seat already belongs to a newer connection.
		d.reg.Drop(connID)
		return
	}

	b, ok := d.reg.Lookup(connID)
	if !ok {
		d.reg.Drop(connID)
		return
	}
	d.reg.Drop(connID)

	ctx := context.WithValue(context.Background(), logging.RoomCodeKey, string(b.Room))
	err := d.withRoom(ctx, b.Room, func(r *game.Room) error {
		rec, present := r.Participants[b.Participant]
		if !present || rec.ConnID != connID {
			// The seat was already rebound (takeover) or removed.
			return nil
		}

		rec.Disconnected = true
		rec.DisconnectedAt = time.Now()
		rec.ConnID = ""
		rec.Presence = types.PresenceAway

		code, name := r.Code, b.Participant
		if r.Host == name {
			r.HostConnID = ""
			if r.HostReconnectTimer != nil {
				r.HostReconnectTimer.Stop()
			}
			r.HostReconnectTimer = time.AfterFunc(hostGracePeriod, func() {
				d.hostGraceExpired(code, name)
			})
			d.broadcast(code, types.EventHostDisconnected, map[string]any{
				"gracePeriodMs": hostGracePeriod.Milliseconds(),
			})
		} else {
			if t, running := r.ReconnectTimers[name]; running {
				t.Stop()
			}
			r.ReconnectTimers[name] = time.AfterFunc(playerGracePeriod, func() {
				d.playerGraceExpired(code, name)
			})
			d.broadcast(code, types.EventPlayerDisconnected, map[string]any{"name": name})
		}
		d.broadcastUsers(r)
		return nil
	})
	if err != nil && err != types.OutcomeRoomNotFound {
		logging.Warn(ctx, "Disconnect handling failed", zap.Error(err))
	}
}

// hostGraceExpired hands the room to the longest-tenured active player,
// or destroys it when nobody is eligible.
func (d *Dispatcher) hostGraceExpired(code types.RoomCode, name types.ParticipantName) {
	ctx := context.Background()
	destroy := false
	var tournamentID string
	err := d.withRoom(ctx, code, func(r *game.Room) error {
		rec, ok := r.Participants[name]
		if !ok || !rec.Disconnected || r.Host != name {
			// Reconnected in time, or the host changed already.
			return nil
		}
		r.HostReconnectTimer = nil
		tournamentID = r.TournamentID

		next := r.EligibleNewHost()
		if next == "" {
			d.broadcast(code, types.EventHostLeftRoomClosing, map[string]any{"gameCode": code})
			destroy = true
			return nil
		}

		r.RemoveParticipant(name)
		r.TransferHost(next)
		d.broadcast(code, types.EventHostTransferred, map[string]any{"newHost": next})
		d.broadcastUsers(r)
		logging.Info(ctx, "Host grace expired, room handed off",
			zap.String("room_code", string(code)),
			zap.String("old_host", string(name)), zap.String("new_host", string(next)))
		return nil
	})
	if err != nil && err != types.OutcomeRoomNotFound {
		logging.Warn(ctx, "Host hand-off failed", zap.String("room_code", string(code)), zap.Error(err))
	}
	if tournamentID != "" && d.tournaments != nil {
		d.tournaments.PlayerLeft(ctx, tournamentID, name)
	}
	if destroy {
		d.teardownRoom(ctx, code)
	}
}

// playerGraceExpired removes a player who never reconnected, dropping
// them from any active tournament standings.
func (d *Dispatcher) playerGraceExpired(code types.RoomCode, name types.ParticipantName) {
	ctx := context.Background()
	var tournamentID string
	err := d.withRoom(ctx, code, func(r *game.Room) error {
		rec, ok := r.Participants[name]
		if !ok || !rec.Disconnected {
			return nil
		}
		tournamentID = r.TournamentID
		r.RemoveParticipant(name)
		d.broadcast(code, types.EventPlayerLeft, map[string]any{"name": name})
		if r.TournamentID != "" {
			d.broadcast(code, types.EventTournamentPlayerLeft, map[string]any{"name": name})
		}
		d.broadcastUsers(r)
		return nil
	})
	if err != nil && err != types.OutcomeRoomNotFound {
		logging.Warn(ctx, "Player removal failed", zap.String("room_code", string(code)), zap.Error(err))
	}
	if tournamentID != "" && d.tournaments != nil {
		d.tournaments.PlayerLeft(ctx, tournamentID, name)
	}
}

func (d *Dispatcher) handlePresenceUpdate(_ context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.PresenceUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.OutcomeMalformed
	}
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}

	r := d.store.Get(b.Room)
	if r == nil {
		return types.OutcomeRoomNotFound
	}

	r.Lock()
	defer r.Unlock()
	rec, ok := r.Participants[b.Participant]
	if !ok {
		return types.OutcomeNotInGame
	}

	status := types.PresenceActive
	if p.Idle || !p.Focused {
		status = types.PresenceIdle
	}
	if rec.Presence == status {
		return nil
	}
	rec.Presence = status
	d.broadcast(b.Room, types.EventPlayerConnectionStatus, map[string]any{
		"name":     b.Participant,
		"presence": status,
	})
	return nil
}

func (d *Dispatcher) handlePresenceHeartbeat(_ context.Context, connID types.ConnID) error {
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}
	r := d.store.Get(b.Room)
	if r == nil {
		return types.OutcomeRoomNotFound
	}

	r.Lock()
	defer r.Unlock()
	rec, ok := r.Participants[b.Participant]
	if !ok {
		return types.OutcomeNotInGame
	}

	rec.MissedHeartbeats = 0
	rec.LastHeartbeat = time.Now()
	if rec.Presence == types.PresenceWeak {
		rec.Presence = types.PresenceActive
		d.broadcast(b.Room, types.EventPlayerConnectionStatus, map[string]any{
			"name":     b.Participant,
			"presence": types.PresenceActive,
		})
	}
	return nil
}

// StartPresenceMonitor launches the background heartbeat sampler. A
// participant missing heartbeatMissThreshold consecutive samples is
// marked weak; these transitions never disconnect by themselves.
func (d *Dispatcher) StartPresenceMonitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(heartbeatSampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.samplePresence()
			}
		}
	}()
}

func (d *Dispatcher) samplePresence() {
	now := time.Now()
	for _, code := range d.store.Codes() {
		r := d.store.Get(code)
		if r == nil {
			continue
		}
		r.Lock()
		for name, rec := range r.Participants {
			if rec.Disconnected || rec.Spectator {
				continue
			}
			if rec.LastHeartbeat.IsZero() || now.Sub(rec.LastHeartbeat) <= heartbeatSampleInterval {
				continue
			}
			rec.MissedHeartbeats++
			if rec.MissedHeartbeats >= heartbeatMissThreshold && rec.Presence != types.PresenceWeak {
				rec.Presence = types.PresenceWeak
				d.broadcast(code, types.EventPlayerConnectionStatus, map[string]any{
					"name":     name,
					"presence": types.PresenceWeak,
				})
			}
		}
		r.Unlock()
	}
}
