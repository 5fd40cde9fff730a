package tournament

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/persist"
	"github.com/lexiclash/server/internal/v1/types"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	m, err := persist.NewMirror("", "", persist.Options{})
	require.NoError(t, err)
	return NewController(m)
}

func TestCreateTournament(t *testing.T) {
	c := newTestController(t)

	tr := c.Create(context.Background(), "Friday Cup", 3, []types.RoomCode{"AB12", "CD34"})

	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, "Friday Cup", tr.Name)
	assert.Equal(t, 3, tr.Rounds)
	assert.Equal(t, 0, tr.CurrentRound)
	assert.Equal(t, StateActive, tr.State)
	assert.Equal(t, []types.RoomCode{"AB12", "CD34"}, tr.GameCodes)
	assert.NotNil(t, tr.Standings)
}

func TestCreateClampsRounds(t *testing.T) {
	c := newTestController(t)

	tr := c.Create(context.Background(), "", 0, nil)

	assert.Equal(t, 1, tr.Rounds)
}

func TestStartRound(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()
	tr := c.Create(ctx, "Cup", 2, nil)

	got, err := c.StartRound(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)
}

func TestStartRoundUnknownID(t *testing.T) {
	c := newTestController(t)

	_, err := c.StartRound(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordResultsAccumulatesStandings(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()
	tr := c.Create(ctx, "Cup", 2, nil)

	_, complete, ok := c.RecordResults(ctx, tr.ID, []game.FinalScore{
		{Name: "alice", Score: 10},
		{Name: "bob", Score: 7},
	})
	require.True(t, ok)
	assert.False(t, complete)

	got, complete, ok := c.RecordResults(ctx, tr.ID, []game.FinalScore{
		{Name: "alice", Score: 4},
		{Name: "bob", Score: 9},
	})
	require.True(t, ok)
	assert.True(t, complete)
	assert.Equal(t, StateCompleted, got.State)
	assert.Equal(t, 14, got.Standings["alice"])
	assert.Equal(t, 16, got.Standings["bob"])
	assert.Equal(t, 2, got.CurrentRound)
}

func TestStartRoundAfterCompletion(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()
	tr := c.Create(ctx, "Cup", 1, nil)

	_, complete, ok := c.RecordResults(ctx, tr.ID, []game.FinalScore{{Name: "alice", Score: 1}})
	require.True(t, ok)
	require.True(t, complete)

	_, err := c.StartRound(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrFinished)
}

func TestRecordResultsOnFinishedTournament(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()
	tr := c.Create(ctx, "Cup", 1, nil)
	c.RecordResults(ctx, tr.ID, []game.FinalScore{{Name: "alice", Score: 1}})

	_, _, ok := c.RecordResults(ctx, tr.ID, []game.FinalScore{{Name: "alice", Score: 5}})
	assert.False(t, ok)
}

func TestStandingsReturnsCopy(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()
	tr := c.Create(ctx, "Cup", 2, nil)
	c.RecordResults(ctx, tr.ID, []game.FinalScore{{Name: "alice", Score: 3}})

	got, ok := c.Standings(ctx, tr.ID)
	require.True(t, ok)
	got.Standings["alice"] = 999

	again, ok := c.Standings(ctx, tr.ID)
	require.True(t, ok)
	assert.Equal(t, 3, again.Standings["alice"])
}

func TestCancel(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()
	tr := c.Create(ctx, "Cup", 2, nil)

	assert.True(t, c.Cancel(ctx, tr.ID))
	assert.False(t, c.Cancel(ctx, tr.ID), "second cancel must fail")

	got, ok := c.Standings(ctx, tr.ID)
	require.True(t, ok)
	assert.Equal(t, StateCancelled, got.State)

	_, err := c.StartRound(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrFinished)
}

func TestPlayerLeft(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()
	tr := c.Create(ctx, "Cup", 3, nil)
	c.RecordResults(ctx, tr.ID, []game.FinalScore{
		{Name: "alice", Score: 3},
		{Name: "bob", Score: 5},
	})

	c.PlayerLeft(ctx, tr.ID, "alice")

	got, ok := c.Standings(ctx, tr.ID)
	require.True(t, ok)
	assert.NotContains(t, got.Standings, types.ParticipantName("alice"))
	assert.Equal(t, 5, got.Standings["bob"])
}

func TestMirrorFallbackAcrossControllers(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	m, err := persist.NewMirror(mr.Addr(), "", persist.Options{TournamentTTL: time.Hour})
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	ctx := context.Background()
	first := NewController(m)
	tr := first.Create(ctx, "Cup", 2, []types.RoomCode{"AB12"})
	first.RecordResults(ctx, tr.ID, []game.FinalScore{{Name: "alice", Score: 8}})

	// A second instance resolves the tournament through the shared store.
	second := NewController(m)
	got, ok := second.Standings(ctx, tr.ID)
	require.True(t, ok)
	assert.Equal(t, 8, got.Standings["alice"])
	assert.Equal(t, 1, got.CurrentRound)
}
