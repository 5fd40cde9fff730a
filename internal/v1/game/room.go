package game

import (
	"sort"
	"sync"
	"time"

	"github.com/lexiclash/server/internal/v1/board"
	"github.com/lexiclash/server/internal/v1/types"
)

const (
	// MaxParticipants is the maximum allowed players in a room.
	MaxParticipants = 8
	// MaxWordLength is the upper bound on a candidate's length.
	MaxWordLength = 50
	// DefaultMinWordLength applies when the host does not set one.
	DefaultMinWordLength = 3
	// MaxComboLevel bounds the client-claimed streak multiplier.
	MaxComboLevel = 10
)

// WordDetail records one submission and everything needed to re-score it
// after host adjudication.
type WordDetail struct {
	Word          string `json:"word"`
	Score         int    `json:"score"`
	ComboBonus    int    `json:"comboBonus"`
	ComboLevel    int    `json:"comboLevel"`
	Validated     bool   `json:"validated"`
	AutoValidated bool   `json:"autoValidated"`
	IsDuplicate   bool   `json:"isDuplicate"`
	AIVerified    bool   `json:"aiVerified"`
}

// ParticipantRecord is the per-joiner state owned by the room. Connection
// identity lives in the registry; the record stores only the identifier.
type ParticipantRecord struct {
	Name             types.ParticipantName `json:"name"`
	Avatar           string                `json:"avatar,omitempty"`
	IsHost           bool                  `json:"isHost"`
	ConnID           types.ConnID          `json:"-"`
	AuthUserID       types.AuthUserID      `json:"authUserId,omitempty"`
	GuestTokenHash   string                `json:"guestTokenHash,omitempty"`
	JoinedAt         time.Time             `json:"joinedAt"`
	Disconnected     bool                  `json:"disconnected"`
	DisconnectedAt   time.Time             `json:"disconnectedAt,omitempty"`
	Presence         types.PresenceStatus  `json:"presence"`
	MissedHeartbeats int                   `json:"-"`
	LastHeartbeat    time.Time             `json:"-"`
	Spectator        bool                  `json:"spectator,omitempty"`
}

// Room is the aggregate for one game code. All fields are guarded by the
// room lock; the dispatcher holds it for the duration of a handler so
// every broadcast observes a consistent state.
type Room struct {
	mu sync.Mutex

	Code          types.RoomCode
	RoomName      string
	Language      types.Language
	IsRanked      bool
	AllowLateJoin bool

	State         types.GameState
	Grid          types.Grid
	Positions     board.PositionsIndex
	MinWordLength int

	Participants map[types.ParticipantName]*ParticipantRecord
	Host         types.ParticipantName
	HostConnID   types.ConnID

	Scores         map[types.ParticipantName]int
	SubmittedWords map[types.ParticipantName][]string
	WordDetails    map[types.ParticipantName][]*WordDetail
	Combo          map[types.ParticipantName]int
	Achievements   map[types.ParticipantName]map[string]struct{}

	StartedAt        time.Time
	EndsAt           time.Time
	Duration         int
	RemainingSeconds int

	// LastAcceptedAt tracks each player's most recent accepted word for
	// speed-based achievements. Instance-local, not persisted.
	LastAcceptedAt map[types.ParticipantName]time.Time

	TournamentID string

	// Housekeeping. Timers are owned by the reconnection controller and
	// round coordinator but cancelled through the room on destruction.
	ReconnectTimers    map[types.ParticipantName]*time.Timer
	HostReconnectTimer *time.Timer
	ValidationTimer    *time.Timer
	LastActivityAt     time.Time
}

// NewRoom creates a room in the waiting state with the given host settings.
func NewRoom(code types.RoomCode, roomName string, lang types.Language, ranked bool) *Room {
	now := time.Now()
	return &Room{
		Code:            code,
		RoomName:        roomName,
		Language:        lang,
		IsRanked:        ranked,
		AllowLateJoin:   true,
		State:           types.StateWaiting,
		MinWordLength:   DefaultMinWordLength,
		Participants:    make(map[types.ParticipantName]*ParticipantRecord),
		Scores:          make(map[types.ParticipantName]int),
		SubmittedWords:  make(map[types.ParticipantName][]string),
		WordDetails:     make(map[types.ParticipantName][]*WordDetail),
		Combo:           make(map[types.ParticipantName]int),
		Achievements:    make(map[types.ParticipantName]map[string]struct{}),
		LastAcceptedAt:  make(map[types.ParticipantName]time.Time),
		ReconnectTimers: make(map[types.ParticipantName]*time.Timer),
		LastActivityAt:  now,
	}
}

// Lock acquires the room's exclusive mutation lock.
func (r *Room) Lock() { r.mu.Lock() }

// Unlock releases the room's exclusive mutation lock.
func (r *Room) Unlock() { r.mu.Unlock() }

// The methods below assume the caller holds the room lock.

// Touch records mutation activity for the idle sweeper.
func (r *Room) Touch() { r.LastActivityAt = time.Now() }

// AddParticipant inserts a new participant. The first participant becomes
// host. Returns the created record.
func (r *Room) AddParticipant(name types.ParticipantName, avatar string, connID types.ConnID, authID types.AuthUserID) *ParticipantRecord {
	rec := &ParticipantRecord{
		Name:       name,
		Avatar:     avatar,
		ConnID:     connID,
		AuthUserID: authID,
		JoinedAt:   time.Now(),
		Presence:   types.PresenceActive,
	}
	if len(r.Participants) == 0 {
		rec.IsHost = true
		r.Host = name
		r.HostConnID = connID
	}
	r.Participants[name] = rec
	r.Scores[name] = 0
	r.Combo[name] = 0
	r.Touch()
	return rec
}

// RemoveParticipant deletes a participant and all per-participant state.
func (r *Room) RemoveParticipant(name types.ParticipantName) {
	delete(r.Participants, name)
	delete(r.Scores, name)
	delete(r.SubmittedWords, name)
	delete(r.WordDetails, name)
	delete(r.Combo, name)
	delete(r.Achievements, name)
	delete(r.LastAcceptedAt, name)
	if t, ok := r.ReconnectTimers[name]; ok {
		t.Stop()
		delete(r.ReconnectTimers, name)
	}
	r.Touch()
}

// ActivePlayerCount counts connected, non-spectator participants.
func (r *Room) ActivePlayerCount() int {
	n := 0
	for _, p := range r.Participants {
		if !p.Disconnected && !p.Spectator {
			n++
		}
	}
	return n
}

// PlayerCount counts non-spectator participants, connected or not.
func (r *Room) PlayerCount() int {
	n := 0
	for _, p := range r.Participants {
		if !p.Spectator {
			n++
		}
	}
	return n
}

// IsFull reports whether the room cannot admit another player.
func (r *Room) IsFull() bool {
	return r.PlayerCount() >= MaxParticipants
}

// IsEmpty reports whether no participants remain.
func (r *Room) IsEmpty() bool { return len(r.Participants) == 0 }

// ParticipantsByJoinTime returns participants ordered by join time.
func (r *Room) ParticipantsByJoinTime() []*ParticipantRecord {
	out := make([]*ParticipantRecord, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

// EligibleNewHost selects the longest-tenured connected non-host player,
// or "" when none qualifies.
func (r *Room) EligibleNewHost() types.ParticipantName {
	var candidate *ParticipantRecord
	for _, p := range r.ParticipantsByJoinTime() {
		if p.Name == r.Host || p.Disconnected || p.Spectator {
			continue
		}
		candidate = p
		break
	}
	if candidate == nil {
		return ""
	}
	return candidate.Name
}

// TransferHost moves host identity to name. The previous host record, if
// still present, loses its flag.
func (r *Room) TransferHost(name types.ParticipantName) {
	if prev, ok := r.Participants[r.Host]; ok {
		prev.IsHost = false
	}
	r.Host = name
	if rec, ok := r.Participants[name]; ok {
		rec.IsHost = true
		r.HostConnID = rec.ConnID
	}
	r.Touch()
}

// StartRound transitions to in-progress with a fresh grid and timer window.
func (r *Room) StartRound(grid types.Grid, seconds, minWordLength int) {
	r.State = types.StateInProgress
	r.Grid = grid
	r.Positions = board.BuildPositionsIndex(grid)
	if minWordLength > 0 {
		r.MinWordLength = minWordLength
	}
	r.Duration = seconds
	r.RemainingSeconds = seconds
	r.StartedAt = time.Now()
	r.EndsAt = r.StartedAt.Add(time.Duration(seconds) * time.Second)
	r.Touch()
}

// Finish transitions to finished. Timer cancellation is the coordinator's
// job; state flip and cancellation happen under the same lock hold.
func (r *Room) Finish() {
	r.State = types.StateFinished
	r.RemainingSeconds = 0
	r.Touch()
}

// Reset returns the room to waiting, preserving participants, host, and
// timing-based achievements.
func (r *Room) Reset() {
	r.State = types.StateWaiting
	r.Grid = nil
	r.Positions = nil
	r.RemainingSeconds = 0
	r.Duration = 0
	r.StartedAt = time.Time{}
	r.EndsAt = time.Time{}
	for name := range r.Participants {
		r.Scores[name] = 0
		r.Combo[name] = 0
		delete(r.SubmittedWords, name)
		delete(r.WordDetails, name)
		delete(r.LastAcceptedAt, name)
	}
	for name, set := range r.Achievements {
		kept := make(map[string]struct{})
		for key := range set {
			if TimingBased(key) {
				kept[key] = struct{}{}
			}
		}
		if len(kept) > 0 {
			r.Achievements[name] = kept
		} else {
			delete(r.Achievements, name)
		}
	}
	r.Touch()
}

// CancelTimers stops every room-owned timer. Called on destruction.
func (r *Room) CancelTimers() {
	for name, t := range r.ReconnectTimers {
		t.Stop()
		delete(r.ReconnectTimers, name)
	}
	if r.HostReconnectTimer != nil {
		r.HostReconnectTimer.Stop()
		r.HostReconnectTimer = nil
	}
	if r.ValidationTimer != nil {
		r.ValidationTimer.Stop()
		r.ValidationTimer = nil
	}
}

// HasWord reports whether the participant already submitted the normalized word.
func (r *Room) HasWord(name types.ParticipantName, normalized string) bool {
	for _, w := range r.SubmittedWords[name] {
		if w == normalized {
			return true
		}
	}
	return false
}

// RecordWord appends a submission and keeps scores and combo consistent.
// Combo is clamped to [0, MaxComboLevel]; a non-validated detail resets it.
func (r *Room) RecordWord(name types.ParticipantName, detail *WordDetail) {
	r.SubmittedWords[name] = append(r.SubmittedWords[name], detail.Word)
	r.WordDetails[name] = append(r.WordDetails[name], detail)
	if detail.Validated {
		r.Scores[name] += detail.Score
		combo := detail.ComboLevel
		if combo > MaxComboLevel {
			combo = MaxComboLevel
		}
		if combo < 0 {
			combo = 0
		}
		r.Combo[name] = combo
	} else {
		r.Combo[name] = 0
	}
	r.Touch()
}

// ResetCombo zeroes the participant's streak after a failed validation.
func (r *Room) ResetCombo(name types.ParticipantName) {
	r.Combo[name] = 0
}

// Award idempotently grants an achievement key. Returns true when newly awarded.
func (r *Room) Award(name types.ParticipantName, key string) bool {
	set, ok := r.Achievements[name]
	if !ok {
		set = make(map[string]struct{})
		r.Achievements[name] = set
	}
	if _, has := set[key]; has {
		return false
	}
	set[key] = struct{}{}
	return true
}
