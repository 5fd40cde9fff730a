package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiclash/server/internal/v1/types"
)

func TestAddParticipantFirstBecomesHost(t *testing.T) {
	r := NewRoom("AB12", "Friday Night", types.LangEnglish, false)

	host := r.AddParticipant("alice", "fox", "c1", "")
	second := r.AddParticipant("bob", "", "c2", "")

	assert.True(t, host.IsHost)
	assert.False(t, second.IsHost)
	assert.Equal(t, types.ParticipantName("alice"), r.Host)
	assert.Equal(t, types.ConnID("c1"), r.HostConnID)
	assert.Equal(t, 0, r.Scores["bob"])
}

func TestRemoveParticipantClearsAllState(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.AddParticipant("alice", "", "c1", "")
	addValidatedWord(r, "alice", "cat", 0)
	r.Award("alice", AchFirstWord)
	r.LastAcceptedAt["alice"] = time.Now()
	r.ReconnectTimers["alice"] = time.AfterFunc(time.Hour, func() {})

	r.RemoveParticipant("alice")

	assert.NotContains(t, r.Participants, types.ParticipantName("alice"))
	assert.NotContains(t, r.Scores, types.ParticipantName("alice"))
	assert.NotContains(t, r.SubmittedWords, types.ParticipantName("alice"))
	assert.NotContains(t, r.WordDetails, types.ParticipantName("alice"))
	assert.NotContains(t, r.Achievements, types.ParticipantName("alice"))
	assert.NotContains(t, r.LastAcceptedAt, types.ParticipantName("alice"))
	assert.NotContains(t, r.ReconnectTimers, types.ParticipantName("alice"))
	assert.True(t, r.IsEmpty())
}

func TestCounts(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.AddParticipant("alice", "", "c1", "")
	r.AddParticipant("bob", "", "c2", "")
	spec := r.AddParticipant("carol", "", "c3", "")
	spec.Spectator = true
	r.Participants["bob"].Disconnected = true

	assert.Equal(t, 2, r.PlayerCount())
	assert.Equal(t, 1, r.ActivePlayerCount())
	assert.False(t, r.IsFull())
}

func TestIsFull(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	for i := 0; i < MaxParticipants; i++ {
		r.AddParticipant(types.ParticipantName(rune('a'+i)), "", types.ConnID(rune('a'+i)), "")
	}
	assert.True(t, r.IsFull())
}

func TestEligibleNewHostLongestTenured(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.AddParticipant("host", "", "c1", "")
	r.AddParticipant("early", "", "c2", "")
	r.AddParticipant("late", "", "c3", "")
	// Join order decides tenure; records get distinct timestamps.
	r.Participants["early"].JoinedAt = time.Now().Add(-10 * time.Second)
	r.Participants["late"].JoinedAt = time.Now().Add(-5 * time.Second)

	assert.Equal(t, types.ParticipantName("early"), r.EligibleNewHost())
}

func TestEligibleNewHostSkipsDisconnectedAndSpectators(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.AddParticipant("host", "", "c1", "")
	r.AddParticipant("gone", "", "c2", "")
	r.AddParticipant("watcher", "", "c3", "")
	r.AddParticipant("player", "", "c4", "")
	r.Participants["gone"].JoinedAt = time.Now().Add(-30 * time.Second)
	r.Participants["gone"].Disconnected = true
	r.Participants["watcher"].JoinedAt = time.Now().Add(-20 * time.Second)
	r.Participants["watcher"].Spectator = true
	r.Participants["player"].JoinedAt = time.Now().Add(-10 * time.Second)

	assert.Equal(t, types.ParticipantName("player"), r.EligibleNewHost())
}

func TestEligibleNewHostNone(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.AddParticipant("host", "", "c1", "")

	assert.Equal(t, types.ParticipantName(""), r.EligibleNewHost())
}

func TestTransferHost(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.AddParticipant("alice", "", "c1", "")
	r.AddParticipant("bob", "", "c2", "")

	r.TransferHost("bob")

	assert.Equal(t, types.ParticipantName("bob"), r.Host)
	assert.Equal(t, types.ConnID("c2"), r.HostConnID)
	assert.False(t, r.Participants["alice"].IsHost)
	assert.True(t, r.Participants["bob"].IsHost)
}

func TestStartRound(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	grid := types.Grid{{"C", "A"}, {"T", "S"}}

	r.StartRound(grid, 90, 4)

	assert.Equal(t, types.StateInProgress, r.State)
	assert.Equal(t, grid, r.Grid)
	assert.NotNil(t, r.Positions)
	assert.Equal(t, 4, r.MinWordLength)
	assert.Equal(t, 90, r.RemainingSeconds)
	assert.False(t, r.StartedAt.IsZero())
	assert.True(t, r.EndsAt.After(r.StartedAt))
}

func TestStartRoundKeepsDefaultMinWordLength(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.StartRound(types.Grid{{"A"}}, 60, 0)

	assert.Equal(t, DefaultMinWordLength, r.MinWordLength)
}

func TestResetPreservesTimingAchievements(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.AddParticipant("alice", "", "c1", "")
	r.StartRound(types.Grid{{"C", "A", "T"}}, 60, 3)
	addValidatedWord(r, "alice", "cat", 2)
	r.Award("alice", AchFirstWord)
	r.Award("alice", AchFirstBlood)
	r.Award("alice", AchQuickThinker)
	r.Finish()

	r.Reset()

	assert.Equal(t, types.StateWaiting, r.State)
	assert.Nil(t, r.Grid)
	assert.Equal(t, 0, r.Scores["alice"])
	assert.Equal(t, 0, r.Combo["alice"])
	assert.Empty(t, r.SubmittedWords["alice"])
	assert.Empty(t, r.WordDetails["alice"])

	kept := r.Achievements["alice"]
	require.NotNil(t, kept)
	assert.Contains(t, kept, AchFirstBlood)
	assert.Contains(t, kept, AchQuickThinker)
	assert.NotContains(t, kept, AchFirstWord)
}

func TestResetDropsEmptyAchievementSets(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.AddParticipant("alice", "", "c1", "")
	r.Award("alice", AchFirstWord)

	r.Reset()

	assert.NotContains(t, r.Achievements, types.ParticipantName("alice"))
}

func TestRecordWordValidatedUpdatesScoreAndCombo(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.AddParticipant("alice", "", "c1", "")

	r.RecordWord("alice", &WordDetail{Word: "house", Score: 7, ComboLevel: 3, Validated: true})

	assert.Equal(t, 7, r.Scores["alice"])
	assert.Equal(t, 3, r.Combo["alice"])
	assert.True(t, r.HasWord("alice", "house"))
}

func TestRecordWordUnvalidatedResetsCombo(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.AddParticipant("alice", "", "c1", "")
	r.Combo["alice"] = 4

	r.RecordWord("alice", &WordDetail{Word: "xyzzy", Validated: false})

	assert.Equal(t, 0, r.Scores["alice"])
	assert.Equal(t, 0, r.Combo["alice"])
}

func TestRecordWordClampsCombo(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.AddParticipant("alice", "", "c1", "")

	r.RecordWord("alice", &WordDetail{Word: "cat", Score: 2, ComboLevel: 99, Validated: true})

	assert.Equal(t, MaxComboLevel, r.Combo["alice"])
}

func TestAwardIdempotent(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	r.AddParticipant("alice", "", "c1", "")

	assert.True(t, r.Award("alice", AchFirstWord))
	assert.False(t, r.Award("alice", AchFirstWord))
}

func TestCancelTimers(t *testing.T) {
	r := NewRoom("AB12", "", types.LangEnglish, false)
	fired := make(chan struct{}, 3)
	r.ReconnectTimers["alice"] = time.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} })
	r.HostReconnectTimer = time.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} })
	r.ValidationTimer = time.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} })

	r.CancelTimers()

	assert.Empty(t, r.ReconnectTimers)
	assert.Nil(t, r.HostReconnectTimer)
	assert.Nil(t, r.ValidationTimer)

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}
