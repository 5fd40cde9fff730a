package dispatch

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lexiclash/server/internal/v1/ai"
	"github.com/lexiclash/server/internal/v1/dictionary"
	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/metrics"
	"github.com/lexiclash/server/internal/v1/registry"
	"github.com/lexiclash/server/internal/v1/types"
)

var outcomeWordTooLong = &types.Outcome{Event: types.EventWordRejected, Code: "WordTooLong"}

// wordAcceptedPayload is the per-submitter acknowledgment of a scored word.
type wordAcceptedPayload struct {
	Word          string `json:"word"`
	Score         int    `json:"score"`
	BaseScore     int    `json:"baseScore"`
	ComboBonus    int    `json:"comboBonus"`
	ComboLevel    int    `json:"comboLevel"`
	AutoValidated bool   `json:"autoValidated"`
	AIVerified    bool   `json:"aiVerified,omitempty"`
}

// handleSubmitWord runs the submission pipeline. Preconditions are
// checked in order under the room lock; the solo-host AI call drops both
// locks and re-validates room state before committing.
func (d *Dispatcher) handleSubmitWord(ctx context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.SubmitWordPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.OutcomeMalformed
	}
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}

	normalized := dictionary.Normalize(p.Word)
	if normalized == "" {
		return types.OutcomeWordTooShort
	}

	r := d.store.Get(b.Room)
	if r == nil {
		return types.OutcomeRoomNotFound
	}

	if lockErr := d.mirror.AcquireRoomLock(ctx, b.Room, d.holderID, distLockTTL); lockErr != nil {
		return outcomeRoomBusy
	}

	r.Lock()

	if outcome := checkSubmission(r, b.Participant, normalized); outcome != nil {
		r.Unlock()
		d.mirror.ReleaseRoomLock(ctx, b.Room, d.holderID)
		metrics.WordsSubmitted.WithLabelValues("precondition").Inc()
		return outcome
	}

	onBoard, boardErr := d.pool.Check(ctx, normalized, r.Grid, r.Positions)
	if boardErr != nil {
		r.Unlock()
		d.mirror.ReleaseRoomLock(ctx, b.Room, d.holderID)
		return boardErr
	}
	if !onBoard {
		r.ResetCombo(b.Participant)
		snap := r.Snapshot()
		r.Unlock()
		d.mirrorSave(ctx, b.Room, snap)
		d.mirror.ReleaseRoomLock(ctx, b.Room, d.holderID)
		metrics.WordsSubmitted.WithLabelValues("not_on_board").Inc()
		return types.OutcomeNotOnBoard
	}

	verdict := d.dict.IsValidWord(normalized, r.Language)

	if verdict == dictionary.Valid {
		d.acceptWord(r, b.Participant, connID, normalized, p.ComboLevel, false)
		snap := r.Snapshot()
		r.Unlock()
		d.mirrorSave(ctx, b.Room, snap)
		d.mirror.ReleaseRoomLock(ctx, b.Room, d.holderID)
		return nil
	}

	if r.PlayerCount() > 1 {
		// Non-dictionary word in a multi-player room: recorded unvalidated
		// with its combo data preserved for later host adjudication.
		detail := &game.WordDetail{
			Word:       normalized,
			Score:      0,
			ComboBonus: game.ComboBonus(p.ComboLevel),
			ComboLevel: clampCombo(p.ComboLevel),
			Validated:  false,
		}
		r.RecordWord(b.Participant, detail)
		snap := r.Snapshot()
		r.Unlock()
		d.mirrorSave(ctx, b.Room, snap)
		d.mirror.ReleaseRoomLock(ctx, b.Room, d.holderID)
		d.sendTo(connID, types.EventWordNeedsValidation, map[string]any{"word": normalized})
		metrics.WordsSubmitted.WithLabelValues("needs_validation").Inc()
		return nil
	}

	// Solo-host shortcut: ask the AI oracle. The local lock must not be
	// held across the external call, and the distributed lock would expire
	// under it, so both are dropped and re-acquired.
	r.Unlock()
	d.mirror.ReleaseRoomLock(ctx, b.Room, d.holderID)
	d.sendTo(connID, types.EventWordValidatingWithAI, map[string]any{"word": normalized})

	aiCtx, cancel := context.WithTimeout(ctx, aiCallTimeout)
	verdictAI, aiErr := d.oracle.ValidateWord(aiCtx, normalized, r.Language)
	cancel()

	return d.commitAIWord(ctx, b, connID, normalized, p.ComboLevel, verdictAI, aiErr)
}

// commitAIWord re-enters the room after the AI call and records the
// result, re-checking state since the round may have ended meanwhile.
func (d *Dispatcher) commitAIWord(ctx context.Context, b registry.Binding, connID types.ConnID, word string, comboLevel int, verdict *ai.Verdict, aiErr error) error {
	return d.withRoom(ctx, b.Room, func(r *game.Room) error {
		if r.State != types.StateInProgress {
			return types.OutcomeGameNotInProgress
		}
		if r.HasWord(b.Participant, word) {
			return types.OutcomeAlreadyFound
		}

		if aiErr == nil && verdict != nil && verdict.IsValid {
			d.acceptWord(r, b.Participant, connID, word, comboLevel, true)
			return nil
		}

		if aiErr != nil {
			logging.Debug(ctx, "AI oracle unavailable for solo validation", zap.Error(aiErr), zap.String("word", word))
		}
		detail := &game.WordDetail{Word: word, Validated: false, ComboLevel: clampCombo(comboLevel)}
		r.RecordWord(b.Participant, detail)
		metrics.WordsSubmitted.WithLabelValues("ai_rejected").Inc()
		d.sendTo(connID, types.EventWordRejected, map[string]any{"word": word})
		return nil
	})
}

// acceptWord records a validated word, runs live achievements, and emits
// the acceptance plus a throttled leaderboard update. Caller holds the
// room lock.
func (d *Dispatcher) acceptWord(r *game.Room, name types.ParticipantName, connID types.ConnID, word string, comboLevel int, aiVerified bool) {
	now := time.Now()
	level := clampCombo(comboLevel)
	detail := &game.WordDetail{
		Word:          word,
		Score:         game.WordScore(word, level),
		ComboBonus:    game.ComboBonus(level),
		ComboLevel:    level,
		Validated:     true,
		AutoValidated: true,
		AIVerified:    aiVerified,
	}
	lc := game.LiveContext{Now: now, PrevAcceptedAt: r.LastAcceptedAt[name]}
	r.RecordWord(name, detail)
	r.LastAcceptedAt[name] = now

	d.sendTo(connID, types.EventWordAccepted, wordAcceptedPayload{
		Word:          word,
		Score:         detail.Score,
		BaseScore:     game.BaseScore(word),
		ComboBonus:    detail.ComboBonus,
		ComboLevel:    detail.ComboLevel,
		AutoValidated: true,
		AIVerified:    aiVerified,
	})

	for _, key := range game.CheckLive(r, name, detail, lc) {
		d.broadcast(r.Code, types.EventLiveAchievement, map[string]any{
			"name":        name,
			"achievement": key,
		})
	}

	metrics.WordsSubmitted.WithLabelValues("accepted").Inc()
	d.leaderboard.Mark(r.Code)
}

// checkSubmission runs the ordered preconditions that need no I/O.
// Returns nil when the candidate may proceed to board validation.
func checkSubmission(r *game.Room, name types.ParticipantName, normalized string) *types.Outcome {
	if r.State != types.StateInProgress {
		return types.OutcomeGameNotInProgress
	}
	rec, ok := r.Participants[name]
	if !ok || rec.Spectator {
		return types.OutcomeNotInGame
	}
	n := utf8.RuneCountInString(normalized)
	if n < r.MinWordLength {
		return types.OutcomeWordTooShort
	}
	if n > game.MaxWordLength {
		return outcomeWordTooLong
	}
	if game.IsProfane(normalized) {
		return types.OutcomeInappropriate
	}
	if r.HasWord(name, normalized) {
		return types.OutcomeAlreadyFound
	}
	return nil
}

func clampCombo(level int) int {
	if level < 0 {
		return 0
	}
	if level > game.MaxComboLevel {
		return game.MaxComboLevel
	}
	return level
}
