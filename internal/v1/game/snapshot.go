package game

import (
	"time"

	"github.com/lexiclash/server/internal/v1/board"
	"github.com/lexiclash/server/internal/v1/types"
)

// Snapshot is the persisted form of a room. Each top-level field becomes
// one hash subkey in the store so the mirror can write only what changed.
// Connection identifiers and timers are deliberately absent: they are
// instance-local and reconstructed on reconnect.
type Snapshot struct {
	Code          types.RoomCode  `json:"code"`
	RoomName      string          `json:"roomName"`
	Language      types.Language  `json:"language"`
	IsRanked      bool            `json:"isRanked"`
	AllowLateJoin bool            `json:"allowLateJoin"`
	State         types.GameState `json:"gameState"`
	Grid          types.Grid      `json:"grid,omitempty"`
	MinWordLength int             `json:"minWordLength"`

	Participants map[types.ParticipantName]*ParticipantRecord       `json:"participants"`
	Host         types.ParticipantName                              `json:"host"`
	Scores       map[types.ParticipantName]int                      `json:"scores"`
	Submitted    map[types.ParticipantName][]string                 `json:"submittedWords"`
	WordDetails  map[types.ParticipantName][]*WordDetail            `json:"wordDetails"`
	Combo        map[types.ParticipantName]int                      `json:"combo"`
	Achievements map[types.ParticipantName][]string                 `json:"achievements"`

	StartedAt        time.Time `json:"startedAt,omitempty"`
	EndsAt           time.Time `json:"endsAt,omitempty"`
	Duration         int       `json:"duration"`
	RemainingSeconds int       `json:"remainingSeconds"`
	TournamentID     string    `json:"tournamentId,omitempty"`
	LastActivityAt   time.Time `json:"lastActivityAt"`
}

// Snapshot captures the persistable state. Caller holds the room lock.
// Every map and slice is copied: the mirror marshals the snapshot after
// the lock is released, so it must not alias live room state.
func (r *Room) Snapshot() *Snapshot {
	parts := make(map[types.ParticipantName]*ParticipantRecord, len(r.Participants))
	for name, rec := range r.Participants {
		cp := *rec
		parts[name] = &cp
	}

	scores := make(map[types.ParticipantName]int, len(r.Scores))
	for name, score := range r.Scores {
		scores[name] = score
	}

	submitted := make(map[types.ParticipantName][]string, len(r.SubmittedWords))
	for name, words := range r.SubmittedWords {
		submitted[name] = append([]string(nil), words...)
	}

	details := make(map[types.ParticipantName][]*WordDetail, len(r.WordDetails))
	for name, list := range r.WordDetails {
		cps := make([]*WordDetail, len(list))
		for i, detail := range list {
			cp := *detail
			cps[i] = &cp
		}
		details[name] = cps
	}

	combo := make(map[types.ParticipantName]int, len(r.Combo))
	for name, level := range r.Combo {
		combo[name] = level
	}

	ach := make(map[types.ParticipantName][]string, len(r.Achievements))
	for name, set := range r.Achievements {
		keys := make([]string, 0, len(set))
		for k := range set {
			keys = append(keys, k)
		}
		ach[name] = keys
	}

	var grid types.Grid
	if r.Grid != nil {
		grid = make(types.Grid, len(r.Grid))
		for i, row := range r.Grid {
			grid[i] = append([]string(nil), row...)
		}
	}

	return &Snapshot{
		Code:             r.Code,
		RoomName:         r.RoomName,
		Language:         r.Language,
		IsRanked:         r.IsRanked,
		AllowLateJoin:    r.AllowLateJoin,
		State:            r.State,
		Grid:             grid,
		MinWordLength:    r.MinWordLength,
		Participants:     parts,
		Host:             r.Host,
		Scores:           scores,
		Submitted:        submitted,
		WordDetails:      details,
		Combo:            combo,
		Achievements:     ach,
		StartedAt:        r.StartedAt,
		EndsAt:           r.EndsAt,
		Duration:         r.Duration,
		RemainingSeconds: r.RemainingSeconds,
		TournamentID:     r.TournamentID,
		LastActivityAt:   r.LastActivityAt,
	}
}

// FromSnapshot rebuilds a Room after restart or cross-instance handoff.
// Every participant comes back disconnected; connection ids are restored
// as clients reconnect.
func FromSnapshot(s *Snapshot) *Room {
	r := NewRoom(s.Code, s.RoomName, s.Language, s.IsRanked)
	r.AllowLateJoin = s.AllowLateJoin
	r.State = s.State
	r.MinWordLength = s.MinWordLength
	r.Host = s.Host
	r.StartedAt = s.StartedAt
	r.EndsAt = s.EndsAt
	r.Duration = s.Duration
	r.RemainingSeconds = s.RemainingSeconds
	r.TournamentID = s.TournamentID
	r.LastActivityAt = s.LastActivityAt

	if s.Grid != nil {
		r.Grid = s.Grid
		r.Positions = board.BuildPositionsIndex(s.Grid)
	}

	for name, rec := range s.Participants {
		cp := *rec
		cp.ConnID = ""
		cp.Disconnected = true
		cp.DisconnectedAt = time.Now()
		cp.Presence = types.PresenceAway
		r.Participants[name] = &cp
	}
	for name, score := range s.Scores {
		r.Scores[name] = score
	}
	for name, words := range s.Submitted {
		r.SubmittedWords[name] = words
	}
	for name, details := range s.WordDetails {
		r.WordDetails[name] = details
	}
	for name, combo := range s.Combo {
		r.Combo[name] = combo
	}
	for name, keys := range s.Achievements {
		set := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			set[k] = struct{}{}
		}
		r.Achievements[name] = set
	}
	return r
}
