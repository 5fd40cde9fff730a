package dispatch

import (
	"context"
	"encoding/json"

	"github.com/lexiclash/server/internal/v1/dictionary"
	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/types"
)

// Community-vote hook: player up-votes on non-dictionary words accumulate
// in the shared store's approval counters alongside host approvals.

func (d *Dispatcher) handleSubmitWordVote(ctx context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.SubmitWordVotePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.OutcomeMalformed
	}
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}
	word := dictionary.Normalize(p.Word)
	if word == "" || !p.Vote {
		return nil
	}

	r := d.store.Get(b.Room)
	if r == nil {
		return types.OutcomeRoomNotFound
	}
	r.Lock()
	lang := r.Language
	r.Unlock()

	d.mirror.RecordWordApproval(ctx, lang, word, b.Room)
	return nil
}

// collectNonDictionaryWords gathers every submitted word in the room that
// the dictionary does not recognize. Caller holds the room lock.
func (d *Dispatcher) collectNonDictionaryWords(r *game.Room) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, details := range r.WordDetails {
		for _, detail := range details {
			if d.dict.IsValidWord(detail.Word, r.Language) == dictionary.Valid {
				continue
			}
			if _, dup := seen[detail.Word]; !dup {
				seen[detail.Word] = struct{}{}
				out = append(out, detail.Word)
			}
		}
	}
	return out
}

// getWordForPlayer picks a candidate submitted by someone other than
// excludeName, for vote prompts. Returns "" when none qualifies.
// Caller holds the room lock.
func getWordForPlayer(r *game.Room, candidates []string, excludeName types.ParticipantName) string {
	owned := make(map[string]struct{})
	for _, w := range r.SubmittedWords[excludeName] {
		owned[w] = struct{}{}
	}
	for _, w := range candidates {
		if _, own := owned[w]; !own {
			return w
		}
	}
	return ""
}
