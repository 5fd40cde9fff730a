// Package dispatch is the single entry point for inbound messages. It
// resolves the target room, applies rate limiting and migrating-session
// suppression, runs the handler under the room's lock discipline, and
// broadcasts results through the connection registry.
//
// Lock discipline: handlers that mutate persisted room state acquire the
// distributed lock, then the local room lock, and release in reverse
// order. Broadcasts are emitted after the mutation and before the local
// lock is released, so every recipient observes one consistent ordering
// of events per room.
package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lexiclash/server/internal/v1/ai"
	"github.com/lexiclash/server/internal/v1/board"
	"github.com/lexiclash/server/internal/v1/config"
	"github.com/lexiclash/server/internal/v1/dictionary"
	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/metrics"
	"github.com/lexiclash/server/internal/v1/persist"
	"github.com/lexiclash/server/internal/v1/ratelimit"
	"github.com/lexiclash/server/internal/v1/registry"
	"github.com/lexiclash/server/internal/v1/round"
	"github.com/lexiclash/server/internal/v1/tournament"
	"github.com/lexiclash/server/internal/v1/types"
)

const (
	// distLockTTL bounds how long a crashed instance can hold a room's
	// distributed lock.
	distLockTTL = 5 * time.Second

	// hostGracePeriod and playerGracePeriod are the reconnect windows after
	// a transport disconnect.
	hostGracePeriod   = 30 * time.Second
	playerGracePeriod = 15 * time.Second

	// takeoverCloseDelay leaves time for the terminal message to flush
	// before the superseded socket is closed.
	takeoverCloseDelay = 500 * time.Millisecond

	// validationDeadline is the host's adjudication window after a round ends.
	validationDeadline = 30 * time.Second

	// aiCallTimeout is the per-call budget for the external word oracle.
	aiCallTimeout = 10 * time.Second

	defaultRoundSeconds = 90
	minRoundSeconds     = 10
	maxRoundSeconds     = 600
)

// outcomeRoomBusy is returned when the distributed lock budget is spent.
// The client may retry; room state is unchanged.
var outcomeRoomBusy = &types.Outcome{Event: types.EventWarning, Code: "RoomBusy"}

// Deps are the collaborators a Dispatcher composes. Tests instantiate
// their own.
type Deps struct {
	Config      *config.Config
	Store       *game.Store
	Registry    *registry.Registry
	Mirror      *persist.Mirror
	Rounds      *round.Coordinator
	Pool        *board.Pool
	Dictionary  *dictionary.Oracle
	AI          ai.Oracle
	Tournaments *tournament.Controller
	Analytics   Analytics
}

// Dispatcher routes every inbound envelope to exactly one handler.
type Dispatcher struct {
	cfg         *config.Config
	store       *game.Store
	reg         *registry.Registry
	mirror      *persist.Mirror
	rounds      *round.Coordinator
	pool        *board.Pool
	dict        *dictionary.Oracle
	oracle      ai.Oracle
	tournaments *tournament.Controller
	analytics   Analytics

	// holderID identifies this instance as a distributed lock owner.
	holderID string

	tracer trace.Tracer

	weights  ratelimit.Weights
	budgetMu sync.Mutex
	budgets  map[types.ConnID]*ratelimit.Budget

	leaderboard *leaderboardThrottle

	chatMu sync.Mutex
	chats  map[types.RoomCode]*chatHistory

	// persistWarned tracks which rooms' hosts already received the
	// degradation warning for the current persistence outage.
	persistMu     sync.Mutex
	persistWarned map[types.RoomCode]bool

	shutMu       sync.Mutex
	shuttingDown bool
}

// New builds a Dispatcher from its collaborators.
func New(deps Deps) *Dispatcher {
	d := &Dispatcher{
		cfg:           deps.Config,
		store:         deps.Store,
		reg:           deps.Registry,
		mirror:        deps.Mirror,
		rounds:        deps.Rounds,
		pool:          deps.Pool,
		dict:          deps.Dictionary,
		oracle:        deps.AI,
		tournaments:   deps.Tournaments,
		analytics:     deps.Analytics,
		holderID:      uuid.NewString(),
		tracer:        otel.Tracer("lexiclash/dispatch"),
		budgets:       make(map[types.ConnID]*ratelimit.Budget),
		chats:         make(map[types.RoomCode]*chatHistory),
		persistWarned: make(map[types.RoomCode]bool),
	}
	if d.analytics == nil {
		d.analytics = LoggingAnalytics{}
	}
	d.weights = ratelimit.Weights{
		types.ActionSubmitWord:        deps.Config.RateWeightSubmitWord,
		types.ActionChatMessage:       deps.Config.RateWeightChat,
		types.ActionPing:              0,
		types.ActionPresenceHeartbeat: 0,
	}
	d.leaderboard = newLeaderboardThrottle(deps.Config.LeaderboardThrottle, d.emitLeaderboard)
	return d
}

// Dispatch handles one inbound frame from a connection. It never panics
// a connection loop; failures become typed events to the sender.
func (d *Dispatcher) Dispatch(ctx context.Context, connID types.ConnID, raw []byte) {
	if d.reg.IsMigrating(connID) {
		// Superseded socket; drop before touching room state.
		return
	}

	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Action == "" {
		d.fail(connID, types.OutcomeMalformed)
		return
	}

	if !d.budget(connID).Allow(env.Action) {
		d.sendTo(connID, types.EventRateLimited, map[string]any{"action": string(env.Action)})
		return
	}

	ctx = d.withLogFields(ctx, connID)
	ctx, span := d.tracer.Start(ctx, "dispatch."+string(env.Action),
		trace.WithAttributes(attribute.String("ws.action", string(env.Action))))
	defer span.End()
	if b, ok := d.reg.Lookup(connID); ok {
		span.SetAttributes(attribute.String("room.code", string(b.Room)))
	}
	timer := prometheus.NewTimer(metrics.MessageProcessingDuration.WithLabelValues(string(env.Action)))
	defer timer.ObserveDuration()

	err := d.route(ctx, connID, env)
	if err == nil {
		return
	}
	span.RecordError(err)
	if outcome, ok := err.(*types.Outcome); ok {
		d.fail(connID, outcome)
		return
	}
	logging.Error(ctx, "Handler failed", zap.String("action", string(env.Action)), zap.Error(err))
	d.fail(connID, &types.Outcome{Event: types.EventError, Code: "InternalError"})
}

func (d *Dispatcher) route(ctx context.Context, connID types.ConnID, env types.Envelope) error {
	switch env.Action {
	case types.ActionCreateGame:
		return d.handleCreateGame(ctx, connID, env.Payload)
	case types.ActionJoin:
		return d.handleJoin(ctx, connID, env.Payload)
	case types.ActionStartGame:
		return d.handleStartGame(ctx, connID, env.Payload)
	case types.ActionStartGameAck:
		return d.handleStartGameAck(ctx, connID, env.Payload)
	case types.ActionSubmitWord:
		return d.handleSubmitWord(ctx, connID, env.Payload)
	case types.ActionChatMessage:
		return d.handleChat(ctx, connID, env.Payload)
	case types.ActionEndGame:
		return d.handleEndGame(ctx, connID)
	case types.ActionValidateWords:
		return d.handleValidateWords(ctx, connID, env.Payload)
	case types.ActionResetGame:
		return d.handleResetGame(ctx, connID)
	case types.ActionCloseRoom:
		return d.handleCloseRoom(ctx, connID)
	case types.ActionGetActiveRooms:
		return d.handleGetActiveRooms(ctx, connID)
	case types.ActionLeaveRoom:
		return d.handleLeaveRoom(ctx, connID)
	case types.ActionPresenceUpdate:
		return d.handlePresenceUpdate(ctx, connID, env.Payload)
	case types.ActionPresenceHeartbeat:
		return d.handlePresenceHeartbeat(ctx, connID)
	case types.ActionPing:
		d.sendTo(connID, types.EventPong, nil)
		return nil
	case types.ActionSubmitWordVote:
		return d.handleSubmitWordVote(ctx, connID, env.Payload)
	case types.ActionCreateTournament:
		return d.handleCreateTournament(ctx, connID, env.Payload)
	case types.ActionStartTournamentRound:
		return d.handleStartTournamentRound(ctx, connID, env.Payload)
	case types.ActionGetTournamentStandings:
		return d.handleGetTournamentStandings(ctx, connID, env.Payload)
	case types.ActionCancelTournament:
		return d.handleCancelTournament(ctx, connID, env.Payload)
	}
	return types.OutcomeMalformed.WithDetail("unknown action")
}

// withRoom runs fn under the full lock discipline for the connection's
// current room: distributed lock, then local lock; released in reverse.
// The room snapshot is mirrored after fn unless the room was destroyed.
func (d *Dispatcher) withRoom(ctx context.Context, code types.RoomCode, fn func(r *game.Room) error) error {
	r := d.store.Get(code)
	if r == nil {
		return types.OutcomeRoomNotFound
	}

	ctx, span := d.tracer.Start(ctx, "room.withRoom",
		trace.WithAttributes(attribute.String("room.code", string(code))))
	defer span.End()

	if err := d.mirror.AcquireRoomLock(ctx, code, d.holderID, distLockTTL); err != nil {
		logging.Warn(ctx, "Distributed room lock not acquired", zap.String("room_code", string(code)), zap.Error(err))
		return outcomeRoomBusy
	}
	defer d.mirror.ReleaseRoomLock(ctx, code, d.holderID)

	r.Lock()
	err := fn(r)
	var snap *game.Snapshot
	if d.store.Get(code) != nil {
		snap = r.Snapshot()
	}
	r.Unlock()

	if snap != nil {
		d.mirrorSave(ctx, code, snap)
	}
	return err
}

// mirrorSave writes the snapshot through the mirror. A persistent write
// failure is surfaced to the room's host as a one-shot degradation
// warning; the warning re-arms once a later save succeeds.
func (d *Dispatcher) mirrorSave(ctx context.Context, code types.RoomCode, snap *game.Snapshot) {
	err := d.mirror.SaveRoom(ctx, code, snap)

	d.persistMu.Lock()
	if err == nil {
		delete(d.persistWarned, code)
		d.persistMu.Unlock()
		return
	}
	warned := d.persistWarned[code]
	d.persistWarned[code] = true
	d.persistMu.Unlock()

	if warned {
		return
	}
	if hostConn, ok := d.reg.SeatConn(code, snap.Host); ok {
		d.sendTo(hostConn, types.EventWarning, map[string]any{"code": "persistence"})
	}
}

// bindingRoom resolves the caller's room binding or NotInGame.
func (d *Dispatcher) bindingRoom(connID types.ConnID) (registry.Binding, error) {
	b, ok := d.reg.Lookup(connID)
	if !ok {
		return registry.Binding{}, types.OutcomeNotInGame
	}
	return b, nil
}

// budget returns the connection's message budget, creating it on first use.
func (d *Dispatcher) budget(connID types.ConnID) *ratelimit.Budget {
	d.budgetMu.Lock()
	defer d.budgetMu.Unlock()
	b, ok := d.budgets[connID]
	if !ok {
		b = ratelimit.NewBudget(d.weights)
		d.budgets[connID] = b
	}
	return b
}

func (d *Dispatcher) dropBudget(connID types.ConnID) {
	d.budgetMu.Lock()
	defer d.budgetMu.Unlock()
	delete(d.budgets, connID)
}

// sendTo delivers one event to a single connection.
func (d *Dispatcher) sendTo(connID types.ConnID, event types.EventName, payload any) {
	if s, ok := d.reg.Sender(connID); ok {
		s.Send(event, payload)
	}
}

// broadcast delivers one event to every connection bound into a room.
func (d *Dispatcher) broadcast(code types.RoomCode, event types.EventName, payload any) {
	for _, s := range d.reg.RoomSenders(code) {
		s.Send(event, payload)
	}
}

// fail translates a typed outcome into its wire event for one connection.
func (d *Dispatcher) fail(connID types.ConnID, outcome *types.Outcome) {
	payload := map[string]any{"code": outcome.Code}
	if outcome.Detail != "" {
		payload["detail"] = outcome.Detail
	}
	d.sendTo(connID, outcome.Event, payload)
}

func (d *Dispatcher) withLogFields(ctx context.Context, connID types.ConnID) context.Context {
	ctx = context.WithValue(ctx, logging.ConnIDKey, string(connID))
	if b, ok := d.reg.Lookup(connID); ok {
		ctx = context.WithValue(ctx, logging.RoomCodeKey, string(b.Room))
		ctx = context.WithValue(ctx, logging.ParticipantKey, string(b.Participant))
	}
	return ctx
}

// userInfo is one row of the updateUsers broadcast.
type userInfo struct {
	Name         types.ParticipantName `json:"name"`
	Avatar       string                `json:"avatar,omitempty"`
	IsHost       bool                  `json:"isHost"`
	Disconnected bool                  `json:"disconnected"`
	Presence     types.PresenceStatus  `json:"presence"`
	Spectator    bool                  `json:"spectator,omitempty"`
	Score        int                   `json:"score"`
}

// roomUsers builds the participant list ordered by join time. Caller
// holds the room lock.
func roomUsers(r *game.Room) []userInfo {
	recs := r.ParticipantsByJoinTime()
	out := make([]userInfo, 0, len(recs))
	for _, p := range recs {
		out = append(out, userInfo{
			Name:         p.Name,
			Avatar:       p.Avatar,
			IsHost:       p.IsHost,
			Disconnected: p.Disconnected,
			Presence:     p.Presence,
			Spectator:    p.Spectator,
			Score:        r.Scores[p.Name],
		})
	}
	return out
}

// broadcastUsers emits the current participant list with the game state.
// Caller holds the room lock.
func (d *Dispatcher) broadcastUsers(r *game.Room) {
	d.broadcast(r.Code, types.EventUpdateUsers, map[string]any{
		"users":     roomUsers(r),
		"gameState": r.State,
	})
	metrics.RoomParticipants.WithLabelValues(string(r.Code)).Set(float64(len(r.Participants)))
}

// Shutdown broadcasts serverShutdown to every connection and stops
// accepting further work. Called once during graceful termination.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.shutMu.Lock()
	if d.shuttingDown {
		d.shutMu.Unlock()
		return
	}
	d.shuttingDown = true
	d.shutMu.Unlock()

	for _, code := range d.store.Codes() {
		d.broadcast(code, types.EventServerShutdown, nil)
	}
	d.leaderboard.Stop()
	d.rounds.Shutdown()
	logging.Info(ctx, "Dispatcher shut down")
}

// RoomSwept is the store's onRemove hook: tears down coordinator state,
// chat history, and the mirrored copy for rooms removed by the sweeper.
func (d *Dispatcher) RoomSwept(code types.RoomCode, _ *game.Room) {
	d.rounds.CancelRoom(code)
	d.dropChat(code)
	d.leaderboard.Cancel(code)
	d.dropPersistWarning(code)
	d.mirror.DeleteRoom(context.Background(), code)
}

func (d *Dispatcher) dropPersistWarning(code types.RoomCode) {
	d.persistMu.Lock()
	delete(d.persistWarned, code)
	d.persistMu.Unlock()
}
