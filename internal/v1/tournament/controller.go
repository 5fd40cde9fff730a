// Package tournament maintains multi-round standings shared by a set of
// rooms. Aggregates are mirrored to the shared store so standings survive
// restarts and cross-instance play.
package tournament

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/persist"
	"github.com/lexiclash/server/internal/v1/types"
)

// State is the tournament lifecycle state.
type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

var (
	ErrNotFound = errors.New("tournament not found")
	ErrFinished = errors.New("tournament already finished")
)

// Tournament is the persisted aggregate.
type Tournament struct {
	ID           string                        `json:"id"`
	Name         string                        `json:"name"`
	Rounds       int                           `json:"rounds"`
	CurrentRound int                           `json:"currentRound"`
	Standings    map[types.ParticipantName]int `json:"standings"`
	GameCodes    []types.RoomCode              `json:"gameCodes,omitempty"`
	State        State                         `json:"state"`
	CreatedAt    time.Time                     `json:"createdAt"`
	UpdatedAt    time.Time                     `json:"updatedAt"`
}

// Controller owns the in-memory tournaments of this instance and their
// mirrored copies.
type Controller struct {
	mu     sync.Mutex
	mirror *persist.Mirror
	items  map[string]*Tournament
}

// NewController creates an empty Controller backed by the mirror.
func NewController(mirror *persist.Mirror) *Controller {
	return &Controller{
		mirror: mirror,
		items:  make(map[string]*Tournament),
	}
}

// Create registers a new tournament and persists it.
func (c *Controller) Create(ctx context.Context, name string, rounds int, codes []types.RoomCode) *Tournament {
	if rounds < 1 {
		rounds = 1
	}
	now := time.Now()
	t := &Tournament{
		ID:        uuid.NewString(),
		Name:      name,
		Rounds:    rounds,
		Standings: make(map[types.ParticipantName]int),
		GameCodes: codes,
		State:     StateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	c.mu.Lock()
	c.items[t.ID] = t
	snapshot := t.clone()
	c.mu.Unlock()

	c.mirror.SaveTournament(ctx, t.ID, snapshot)
	logging.Info(ctx, "Tournament created",
		zap.String("tournament_id", t.ID), zap.String("name", name), zap.Int("rounds", rounds))
	return snapshot
}

// StartRound validates that another round may begin and returns the
// current aggregate.
func (c *Controller) StartRound(ctx context.Context, id string) (*Tournament, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.State != StateActive {
		return nil, ErrFinished
	}
	if t.CurrentRound >= t.Rounds {
		return nil, ErrFinished
	}
	return t.clone(), nil
}

// RecordResults folds one room's final scores into the standings and
// advances the round counter. Returns the updated aggregate and whether
// the tournament just completed.
func (c *Controller) RecordResults(ctx context.Context, id string, rows []game.FinalScore) (*Tournament, bool, bool) {
	c.mu.Lock()
	t, err := c.getLocked(ctx, id)
	if err != nil || t.State != StateActive {
		c.mu.Unlock()
		return nil, false, false
	}

	for _, row := range rows {
		t.Standings[row.Name] += row.Score
	}
	t.CurrentRound++
	t.UpdatedAt = time.Now()
	complete := t.CurrentRound >= t.Rounds
	if complete {
		t.State = StateCompleted
	}
	snapshot := t.clone()
	c.mu.Unlock()

	c.mirror.SaveTournament(ctx, id, snapshot)
	return snapshot, complete, true
}

// Standings returns the aggregate, consulting the mirror for tournaments
// created on another instance.
func (c *Controller) Standings(ctx context.Context, id string) (*Tournament, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.getLocked(ctx, id)
	if err != nil {
		return nil, false
	}
	return t.clone(), true
}

// Cancel marks the tournament cancelled and persists the terminal state.
func (c *Controller) Cancel(ctx context.Context, id string) bool {
	c.mu.Lock()
	t, err := c.getLocked(ctx, id)
	if err != nil || t.State != StateActive {
		c.mu.Unlock()
		return false
	}
	t.State = StateCancelled
	t.UpdatedAt = time.Now()
	snapshot := t.clone()
	c.mu.Unlock()

	c.mirror.SaveTournament(ctx, id, snapshot)
	logging.Info(ctx, "Tournament cancelled", zap.String("tournament_id", id))
	return true
}

// PlayerLeft drops a player from the standings of an active tournament.
func (c *Controller) PlayerLeft(ctx context.Context, id string, name types.ParticipantName) {
	c.mu.Lock()
	t, err := c.getLocked(ctx, id)
	if err != nil || t.State != StateActive {
		c.mu.Unlock()
		return
	}
	delete(t.Standings, name)
	t.UpdatedAt = time.Now()
	snapshot := t.clone()
	c.mu.Unlock()

	c.mirror.SaveTournament(ctx, id, snapshot)
}

// getLocked resolves id locally, falling back to the mirror. Caller
// holds c.mu.
func (c *Controller) getLocked(ctx context.Context, id string) (*Tournament, error) {
	if t, ok := c.items[id]; ok {
		return t, nil
	}
	var t Tournament
	found, err := c.mirror.LoadTournament(ctx, id, &t)
	if err != nil || !found {
		return nil, ErrNotFound
	}
	if t.Standings == nil {
		t.Standings = make(map[types.ParticipantName]int)
	}
	c.items[id] = &t
	return &t, nil
}

func (t *Tournament) clone() *Tournament {
	cp := *t
	cp.Standings = make(map[types.ParticipantName]int, len(t.Standings))
	for k, v := range t.Standings {
		cp.Standings[k] = v
	}
	cp.GameCodes = append([]types.RoomCode(nil), t.GameCodes...)
	return &cp
}
