package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiclash/server/internal/v1/ai"
	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/types"
)

// accepted extracts the typed acknowledgment from the sender's last
// wordAccepted event.
func accepted(t *testing.T, s *fakeSender) wordAcceptedPayload {
	t.Helper()
	p, ok := s.last(types.EventWordAccepted)
	require.True(t, ok, "no wordAccepted event recorded")
	wp, ok := p.(wordAcceptedPayload)
	require.True(t, ok, "wordAccepted payload is %T", p)
	return wp
}

// twoPlayerRound builds a room with host alice and player bob, mid-round
// on the standard grid.
func twoPlayerRound(t *testing.T, h *harness) (host, bob *fakeSender) {
	t.Helper()
	host = h.connect("c1")
	h.createRoom(t, host, "AB12", "alice")
	bob = h.connect("c2")
	h.joinRoom(t, bob, "AB12", "bob")
	h.beginRound(t, "AB12", testGrid())
	return host, bob
}

func TestSubmitWordAccepted(t *testing.T) {
	h := newTestDispatcher(t)
	_, bob := twoPlayerRound(t, h)

	require.NoError(t, h.submit(t, bob, "cat", 0))

	wp := accepted(t, bob)
	assert.Equal(t, "cat", wp.Word)
	assert.Equal(t, game.BaseScore("cat"), wp.Score)
	assert.Equal(t, game.BaseScore("cat"), wp.BaseScore)
	assert.Zero(t, wp.ComboBonus)
	assert.True(t, wp.AutoValidated)
	assert.False(t, wp.AIVerified)

	r := h.d.store.Get("AB12")
	r.Lock()
	defer r.Unlock()
	assert.Equal(t, wp.Score, r.Scores["bob"])
	assert.True(t, r.HasWord("bob", "cat"))
}

func TestSubmitWordComboScoring(t *testing.T) {
	h := newTestDispatcher(t)
	_, bob := twoPlayerRound(t, h)

	require.NoError(t, h.submit(t, bob, "dog", 4))

	wp := accepted(t, bob)
	assert.Equal(t, 4, wp.ComboLevel)
	assert.Equal(t, game.ComboBonus(4), wp.ComboBonus)
	assert.Equal(t, game.WordScore("dog", 4), wp.Score)
}

func TestSubmitWordNormalized(t *testing.T) {
	h := newTestDispatcher(t)
	_, bob := twoPlayerRound(t, h)

	require.NoError(t, h.submit(t, bob, "  CaT\n", 0))

	wp := accepted(t, bob)
	assert.Equal(t, "cat", wp.Word)
}

func TestSubmitWordTooShort(t *testing.T) {
	h := newTestDispatcher(t)
	_, bob := twoPlayerRound(t, h)

	err := h.submit(t, bob, "at", 0)
	assert.Equal(t, types.OutcomeWordTooShort, err)
}

func TestSubmitWordNotOnBoard(t *testing.T) {
	h := newTestDispatcher(t)
	_, bob := twoPlayerRound(t, h)
	require.NoError(t, h.submit(t, bob, "cat", 3))

	r := h.d.store.Get("AB12")
	r.Lock()
	require.Positive(t, r.Combo["bob"])
	r.Unlock()

	// "ctg" uses letters on the grid but no adjacent path exists.
	err := h.submit(t, bob, "ctg", 0)
	assert.Equal(t, types.OutcomeNotOnBoard, err)

	r.Lock()
	defer r.Unlock()
	assert.Zero(t, r.Combo["bob"], "board miss resets the combo chain")
}

func TestSubmitWordAlreadyFound(t *testing.T) {
	h := newTestDispatcher(t)
	_, bob := twoPlayerRound(t, h)
	require.NoError(t, h.submit(t, bob, "cat", 0))

	err := h.submit(t, bob, "cat", 1)
	assert.Equal(t, types.OutcomeAlreadyFound, err)
}

func TestSubmitWordProfane(t *testing.T) {
	h := newTestDispatcher(t)
	_, bob := twoPlayerRound(t, h)

	err := h.submit(t, bob, "shit", 0)
	assert.Equal(t, types.OutcomeInappropriate, err)
}

func TestSubmitWordNotInProgress(t *testing.T) {
	h := newTestDispatcher(t)
	host := h.connect("c1")
	h.createRoom(t, host, "AB12", "alice")

	err := h.submit(t, host, "cat", 0)
	assert.Equal(t, types.OutcomeGameNotInProgress, err)
}

func TestSubmitWordWithoutBinding(t *testing.T) {
	h := newTestDispatcher(t)
	s := h.connect("c9")

	err := h.submit(t, s, "cat", 0)
	assert.Equal(t, types.OutcomeNotInGame, err)
}

func TestSubmitWordSpectatorRejected(t *testing.T) {
	h := newTestDispatcher(t)
	_, bob := twoPlayerRound(t, h)

	r := h.d.store.Get("AB12")
	r.Lock()
	r.Participants["bob"].Spectator = true
	r.Unlock()

	err := h.submit(t, bob, "cat", 0)
	assert.Equal(t, types.OutcomeNotInGame, err)
}

func TestSubmitWordMultiplayerNeedsValidation(t *testing.T) {
	h := newTestDispatcher(t)
	_, bob := twoPlayerRound(t, h)

	// "god" has a path on the grid but is not in the loaded dictionary.
	require.NoError(t, h.submit(t, bob, "god", 2))

	m := bob.lastMap(t, types.EventWordNeedsValidation)
	assert.Equal(t, "god", m["word"])
	assert.False(t, bob.has(types.EventWordAccepted))

	r := h.d.store.Get("AB12")
	r.Lock()
	defer r.Unlock()
	require.Len(t, r.WordDetails["bob"], 1)
	detail := r.WordDetails["bob"][0]
	assert.False(t, detail.Validated)
	assert.Zero(t, detail.Score)
	assert.Equal(t, 2, detail.ComboLevel, "combo data survives for later adjudication")
	assert.Zero(t, r.Scores["bob"], "unvalidated words do not score")
}

func TestSubmitWordSoloAIAccepts(t *testing.T) {
	h := newTestDispatcher(t)
	host := h.connect("c1")
	h.createRoom(t, host, "AB12", "alice")
	h.beginRound(t, "AB12", testGrid())

	h.oracle.err = nil
	h.oracle.verdicts = map[string]*ai.Verdict{
		"god": {IsValid: true, IsAIVerified: true},
	}

	require.NoError(t, h.submit(t, host, "god", 0))

	assert.True(t, host.has(types.EventWordValidatingWithAI))
	wp := accepted(t, host)
	assert.Equal(t, "god", wp.Word)
	assert.True(t, wp.AIVerified)

	r := h.d.store.Get("AB12")
	r.Lock()
	defer r.Unlock()
	assert.Positive(t, r.Scores["alice"])
}

func TestSubmitWordSoloAIRejects(t *testing.T) {
	h := newTestDispatcher(t)
	host := h.connect("c1")
	h.createRoom(t, host, "AB12", "alice")
	h.beginRound(t, "AB12", testGrid())

	h.oracle.err = nil
	h.oracle.verdicts = map[string]*ai.Verdict{
		"god": {IsValid: false, Reason: "not a word"},
	}

	require.NoError(t, h.submit(t, host, "god", 0))

	m := host.lastMap(t, types.EventWordRejected)
	assert.Equal(t, "god", m["word"])
	assert.False(t, host.has(types.EventWordAccepted))
}

func TestSubmitWordSoloAIUnavailable(t *testing.T) {
	h := newTestDispatcher(t)
	host := h.connect("c1")
	h.createRoom(t, host, "AB12", "alice")
	h.beginRound(t, "AB12", testGrid())

	// Oracle stays unreachable: the word is recorded unvalidated and the
	// submitter told, rather than failing the whole submission.
	require.NoError(t, h.submit(t, host, "god", 0))

	assert.True(t, host.has(types.EventWordValidatingWithAI))
	assert.True(t, host.has(types.EventWordRejected))

	r := h.d.store.Get("AB12")
	r.Lock()
	defer r.Unlock()
	require.Len(t, r.WordDetails["alice"], 1)
	assert.False(t, r.WordDetails["alice"][0].Validated)
}

func TestSubmitWordRoundEndedDuringAICall(t *testing.T) {
	h := newTestDispatcher(t)
	host := h.connect("c1")
	h.createRoom(t, host, "AB12", "alice")
	h.beginRound(t, "AB12", testGrid())

	h.oracle.err = nil
	h.oracle.verdicts = map[string]*ai.Verdict{"god": {IsValid: true}}

	// commitAIWord re-validates room state after the locks were dropped.
	r := h.d.store.Get("AB12")
	b, ok := h.d.reg.Lookup("c1")
	require.True(t, ok)
	r.Lock()
	r.Finish()
	r.Unlock()

	verdict := &ai.Verdict{IsValid: true}
	err := h.d.commitAIWord(context.Background(), b, "c1", "god", 0, verdict, nil)
	assert.Equal(t, types.OutcomeGameNotInProgress, err)
}

func TestLiveAchievementBroadcast(t *testing.T) {
	h := newTestDispatcher(t)
	host, bob := twoPlayerRound(t, h)

	require.NoError(t, h.submit(t, bob, "cat", 0))

	// The first accepted word of the round carries first-word and
	// first-blood; both parties see the announcement.
	assert.True(t, bob.has(types.EventLiveAchievement))
	assert.True(t, host.has(types.EventLiveAchievement))
}
