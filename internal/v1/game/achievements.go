package game

import (
	"time"
	"unicode/utf8"

	"github.com/lexiclash/server/internal/v1/types"
)

// Achievement keys. Live achievements are checked on each accepted word;
// final achievements on the finished aggregate. Timing-based keys survive
// a round reset, all others are recomputed.
const (
	AchFirstWord    = "first-word"
	AchFirstBlood   = "first-blood"
	AchQuickThinker = "quick-thinker"
	AchWordsmith    = "wordsmith" // length >= 6
	AchLexicon      = "lexicon"   // length >= 8
	AchProlific     = "prolific"  // >= 15 accepted words in a round
	AchFlawless     = "flawless"  // every submission validated
	AchComboMaster  = "combo-master"
)

const (
	firstBloodWindow   = 10 * time.Second
	quickThinkerWindow = 3 * time.Second
	wordsmithLength    = 6
	lexiconLength      = 8
	prolificCount      = 15
	comboMasterLevel   = 5
)

var timingBased = map[string]struct{}{
	AchFirstBlood:   {},
	AchQuickThinker: {},
}

// TimingBased reports whether an achievement key survives a round reset.
func TimingBased(key string) bool {
	_, ok := timingBased[key]
	return ok
}

// LiveContext carries what the live checks need beyond the aggregate.
type LiveContext struct {
	Now            time.Time
	PrevAcceptedAt time.Time
}

// CheckLive evaluates live achievements for an accepted word and returns
// the newly awarded keys. Caller holds the room lock; the word's detail is
// already recorded.
func CheckLive(r *Room, name types.ParticipantName, detail *WordDetail, lc LiveContext) []string {
	var awarded []string
	grant := func(key string) {
		if r.Award(name, key) {
			awarded = append(awarded, key)
		}
	}

	accepted := acceptedCount(r, name)
	if accepted == 1 {
		grant(AchFirstWord)
		if !r.StartedAt.IsZero() && lc.Now.Sub(r.StartedAt) <= firstBloodWindow && firstAcceptedInRoom(r, name) {
			grant(AchFirstBlood)
		}
	}

	if !lc.PrevAcceptedAt.IsZero() && lc.Now.Sub(lc.PrevAcceptedAt) <= quickThinkerWindow {
		grant(AchQuickThinker)
	}

	if n := utf8.RuneCountInString(detail.Word); n >= lexiconLength {
		grant(AchLexicon)
	} else if n >= wordsmithLength {
		grant(AchWordsmith)
	}

	if detail.ComboLevel >= comboMasterLevel {
		grant(AchComboMaster)
	}

	return awarded
}

// CheckFinal evaluates end-of-round achievements for every participant and
// returns the newly awarded keys per player. Caller holds the room lock.
func CheckFinal(r *Room) map[types.ParticipantName][]string {
	out := make(map[types.ParticipantName][]string)
	for name := range r.Participants {
		var awarded []string
		grant := func(key string) {
			if r.Award(name, key) {
				awarded = append(awarded, key)
			}
		}

		details := r.WordDetails[name]
		accepted := 0
		flawless := len(details) > 0
		for _, d := range details {
			if d.Validated && !d.IsDuplicate {
				accepted++
			}
			if !d.Validated {
				flawless = false
			}
		}

		if accepted >= prolificCount {
			grant(AchProlific)
		}
		if flawless {
			grant(AchFlawless)
		}

		if len(awarded) > 0 {
			out[name] = awarded
		}
	}
	return out
}

func acceptedCount(r *Room, name types.ParticipantName) int {
	n := 0
	for _, d := range r.WordDetails[name] {
		if d.Validated {
			n++
		}
	}
	return n
}

// firstAcceptedInRoom reports whether name holds the only accepted word so far.
func firstAcceptedInRoom(r *Room, name types.ParticipantName) bool {
	for other, details := range r.WordDetails {
		if other == name {
			continue
		}
		for _, d := range details {
			if d.Validated {
				return false
			}
		}
	}
	return true
}
