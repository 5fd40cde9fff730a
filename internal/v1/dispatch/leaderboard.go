package dispatch

import (
	"sort"
	"sync"
	"time"

	"github.com/lexiclash/server/internal/v1/types"
)

// leaderboardThrottle coalesces leaderboard broadcasts: any number of
// score changes inside one window produce a single emission carrying the
// latest state.
type leaderboardThrottle struct {
	mu      sync.Mutex
	window  time.Duration
	timers  map[types.RoomCode]*time.Timer
	emit    func(types.RoomCode)
	stopped bool
}

func newLeaderboardThrottle(window time.Duration, emit func(types.RoomCode)) *leaderboardThrottle {
	if window <= 0 {
		window = 250 * time.Millisecond
	}
	return &leaderboardThrottle{
		window: window,
		timers: make(map[types.RoomCode]*time.Timer),
		emit:   emit,
	}
}

// Mark schedules an emission for the room unless one is already pending.
func (lt *leaderboardThrottle) Mark(code types.RoomCode) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.stopped {
		return
	}
	if _, pending := lt.timers[code]; pending {
		return
	}
	lt.timers[code] = time.AfterFunc(lt.window, func() {
		lt.mu.Lock()
		delete(lt.timers, code)
		stopped := lt.stopped
		lt.mu.Unlock()
		if !stopped {
			lt.emit(code)
		}
	})
}

// Cancel drops any pending emission for the room.
func (lt *leaderboardThrottle) Cancel(code types.RoomCode) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if t, ok := lt.timers[code]; ok {
		t.Stop()
		delete(lt.timers, code)
	}
}

// Stop cancels every pending emission.
func (lt *leaderboardThrottle) Stop() {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.stopped = true
	for code, t := range lt.timers {
		t.Stop()
		delete(lt.timers, code)
	}
}

// leaderboardRow is one entry of the live scoreboard broadcast.
type leaderboardRow struct {
	Name      types.ParticipantName `json:"name"`
	Score     int                   `json:"score"`
	WordCount int                   `json:"wordCount"`
	Combo     int                   `json:"combo"`
}

// emitLeaderboard reads the room under its local lock only and broadcasts
// the current standings.
func (d *Dispatcher) emitLeaderboard(code types.RoomCode) {
	r := d.store.Get(code)
	if r == nil {
		return
	}

	r.Lock()
	rows := make([]leaderboardRow, 0, len(r.Participants))
	for name, rec := range r.Participants {
		if rec.Spectator {
			continue
		}
		rows = append(rows, leaderboardRow{
			Name:      name,
			Score:     r.Scores[name],
			WordCount: len(r.SubmittedWords[name]),
			Combo:     r.Combo[name],
		})
	}
	r.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Name < rows[j].Name
	})
	d.broadcast(code, types.EventUpdateLeaderboard, map[string]any{"leaderboard": rows})
}
