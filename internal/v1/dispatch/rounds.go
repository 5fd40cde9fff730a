package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/lexiclash/server/internal/v1/ai"
	"github.com/lexiclash/server/internal/v1/dictionary"
	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/types"
)

var outcomeAlreadyStarted = &types.Outcome{Event: types.EventError, Code: "GameAlreadyStarted"}

func (d *Dispatcher) handleStartGame(ctx context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.StartGamePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.OutcomeMalformed
	}
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}

	if !rectangular(p.Grid) {
		return types.OutcomeMalformed.WithDetail("grid must be a non-empty rectangle")
	}
	seconds := p.TimerSeconds
	if seconds == 0 {
		seconds = defaultRoundSeconds
	}
	if seconds < minRoundSeconds || seconds > maxRoundSeconds {
		return types.OutcomeMalformed.WithDetail("timer out of range")
	}

	return d.withRoom(ctx, b.Room, func(r *game.Room) error {
		if r.Host != b.Participant {
			return types.OutcomeOnlyHostCanStart
		}
		if r.State == types.StateInProgress {
			return outcomeAlreadyStarted
		}

		r.StartRound(p.Grid, seconds, p.MinWordLength)

		var expected []types.ParticipantName
		for _, rec := range r.ParticipantsByJoinTime() {
			if !rec.Disconnected && !rec.Spectator {
				expected = append(expected, rec.Name)
			}
		}

		code := r.Code
		messageID := d.rounds.ArmBarrier(code, expected, func() {
			d.beginTicking(code, seconds)
		})

		d.broadcast(code, types.EventStartGame, map[string]any{
			"grid":          r.Grid,
			"timerSeconds":  seconds,
			"language":      r.Language,
			"minWordLength": r.MinWordLength,
			"messageId":     messageID,
		})
		logging.Info(ctx, "Round started",
			zap.String("room_code", string(code)), zap.Int("seconds", seconds),
			zap.Int("expected_acks", len(expected)))
		return nil
	})
}

func (d *Dispatcher) handleStartGameAck(_ context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.StartGameAckPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.OutcomeMalformed
	}
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}
	d.rounds.Ack(b.Room, b.Participant, p.MessageID)
	return nil
}

// beginTicking installs the 1 Hz tick driver once the start barrier
// completes. At most one driver runs per room.
func (d *Dispatcher) beginTicking(code types.RoomCode, seconds int) {
	d.rounds.StartTimer(code, seconds,
		func(left int) { d.onTick(code, left) },
		func() {
			if err := d.timerExpired(context.Background(), code); err != nil {
				logging.Warn(context.Background(), "Round auto-end failed",
					zap.String("room_code", string(code)), zap.Error(err))
			}
		},
	)
}

func (d *Dispatcher) onTick(code types.RoomCode, left int) {
	r := d.store.Get(code)
	if r == nil {
		d.rounds.StopTimer(code)
		return
	}
	r.Lock()
	if r.State != types.StateInProgress {
		r.Unlock()
		return
	}
	r.RemainingSeconds = left
	d.broadcast(code, types.EventTimeUpdate, map[string]any{"remainingSeconds": left})
	snap := r.Snapshot()
	r.Unlock()
	d.mirrorSave(context.Background(), code, snap)
}

// ResumeRound reinstalls the tick driver for a room restored from the
// mirror while a round was running. A round whose deadline already passed
// finalizes immediately so no room stays in-progress without a timer.
func (d *Dispatcher) ResumeRound(ctx context.Context, code types.RoomCode) {
	r := d.store.Get(code)
	if r == nil {
		return
	}
	r.Lock()
	if r.State != types.StateInProgress {
		r.Unlock()
		return
	}
	left := r.RemainingSeconds
	if !r.EndsAt.IsZero() {
		left = int(time.Until(r.EndsAt).Seconds())
	}
	r.Unlock()

	if left <= 0 {
		if err := d.timerExpired(ctx, code); err != nil {
			logging.Warn(ctx, "Restored round could not finalize",
				zap.String("room_code", string(code)), zap.Error(err))
		}
		return
	}
	d.beginTicking(code, left)
	logging.Info(ctx, "Round resumed after restore",
		zap.String("room_code", string(code)), zap.Int("seconds_left", left))
}

func (d *Dispatcher) handleEndGame(ctx context.Context, connID types.ConnID) error {
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}
	var fin *finalization
	err = d.withRoom(ctx, b.Room, func(r *game.Room) error {
		if r.Host != b.Participant {
			return types.OutcomeOnlyHostCanEnd
		}
		var endErr error
		fin, endErr = d.endRoundLocked(ctx, r)
		return endErr
	})
	if err != nil {
		return err
	}
	d.afterFinalize(ctx, b.Room, fin)
	return nil
}

// timerExpired is the countdown-zero path.
func (d *Dispatcher) timerExpired(ctx context.Context, code types.RoomCode) error {
	var fin *finalization
	err := d.withRoom(ctx, code, func(r *game.Room) error {
		var endErr error
		fin, endErr = d.endRoundLocked(ctx, r)
		return endErr
	})
	if err != nil {
		return err
	}
	d.afterFinalize(ctx, code, fin)
	return nil
}

// finalization carries the end-of-round results out of the room lock for
// the analytics sink and tournament controller.
type finalization struct {
	rows         []game.FinalScore
	tournamentID string
	language     types.Language
	ranked       bool
}

// endRoundLocked flips the room to finished atomically with timer
// cancellation, then either finalizes immediately or opens the host
// adjudication window. Caller holds the room lock.
func (d *Dispatcher) endRoundLocked(ctx context.Context, r *game.Room) (*finalization, error) {
	if r.State != types.StateInProgress {
		return nil, types.OutcomeGameNotInProgress
	}

	d.rounds.StopTimer(r.Code)
	r.Finish()
	d.broadcast(r.Code, types.EventTimeUpdate, map[string]any{"remainingSeconds": 0})
	d.broadcast(r.Code, types.EventEndGame, nil)

	pending := pendingValidations(r)
	if len(pending) > 0 && r.PlayerCount() > 1 {
		// Host adjudication window. Auto-validation runs on expiry.
		if hostConn, ok := d.reg.SeatConn(r.Code, r.Host); ok {
			d.sendTo(hostConn, types.EventShowValidation, map[string]any{"words": pending})
		}
		d.broadcast(r.Code, types.EventValidationTimeout, map[string]any{
			"deadlineMs": validationDeadline.Milliseconds(),
		})

		// Each player gets one of the others' non-dictionary words to vote on.
		candidates := d.collectNonDictionaryWords(r)
		for _, rec := range r.ParticipantsByJoinTime() {
			if rec.Name == r.Host || rec.Disconnected || rec.Spectator {
				continue
			}
			if w := getWordForPlayer(r, candidates, rec.Name); w != "" {
				if conn, ok := d.reg.SeatConn(r.Code, rec.Name); ok {
					d.sendTo(conn, types.EventShowValidation, map[string]any{"voteWord": w})
				}
			}
		}
		code := r.Code
		r.ValidationTimer = time.AfterFunc(validationDeadline, func() {
			d.autoValidate(context.Background(), code)
		})
		return nil, nil
	}

	return d.finalizeLocked(ctx, r), nil
}

// pendingValidations lists each player's unvalidated words awaiting the
// host's verdict. Caller holds the room lock.
func pendingValidations(r *game.Room) map[types.ParticipantName][]string {
	out := make(map[types.ParticipantName][]string)
	for name, details := range r.WordDetails {
		for _, detail := range details {
			if !detail.Validated {
				out[name] = append(out[name], detail.Word)
			}
		}
	}
	return out
}

// finalizeLocked runs the end-of-round scoring pass: duplicate collapse,
// score recomputation, final achievements, titles, and the validatedScores
// broadcast. Caller holds the room lock.
func (d *Dispatcher) finalizeLocked(ctx context.Context, r *game.Room) *finalization {
	if r.ValidationTimer != nil {
		r.ValidationTimer.Stop()
		r.ValidationTimer = nil
	}

	game.RecomputeScores(r)
	game.CollapseDuplicates(r)
	game.RecomputeScores(r)
	finalAch := game.CheckFinal(r)
	rows := game.FinalScores(r)

	d.broadcast(r.Code, types.EventValidatedScores, map[string]any{
		"scores":       rows,
		"grid":         r.Grid,
		"achievements": finalAch,
	})
	d.broadcast(r.Code, types.EventValidationComplete, nil)
	logging.Info(ctx, "Round finalized",
		zap.String("room_code", string(r.Code)), zap.Int("players", len(rows)))

	return &finalization{
		rows:         rows,
		tournamentID: r.TournamentID,
		language:     r.Language,
		ranked:       r.IsRanked,
	}
}

// afterFinalize runs the post-broadcast collaborators outside any lock.
func (d *Dispatcher) afterFinalize(ctx context.Context, code types.RoomCode, fin *finalization) {
	if fin == nil {
		return
	}

	rows := fin.rows
	meta := map[string]any{"language": fin.language, "ranked": fin.ranked}
	go d.analytics.ProcessGameResults(context.Background(), code, rows, meta)

	if fin.tournamentID != "" && d.tournaments != nil {
		t, complete, ok := d.tournaments.RecordResults(ctx, fin.tournamentID, rows)
		if !ok {
			return
		}
		d.broadcast(code, types.EventTournamentRoundComplete, map[string]any{
			"tournamentId": t.ID,
			"round":        t.CurrentRound,
			"standings":    t.Standings,
		})
		if complete {
			d.broadcast(code, types.EventTournamentComplete, map[string]any{
				"tournamentId": t.ID,
				"standings":    t.Standings,
			})
		}
	}
}

// autoValidate fires when the host adjudication window elapses. The AI
// oracle is consulted for the outstanding words within a bounded budget,
// then the round finalizes with whatever verdicts arrived.
func (d *Dispatcher) autoValidate(ctx context.Context, code types.RoomCode) {
	r := d.store.Get(code)
	if r == nil {
		return
	}

	r.Lock()
	if r.State != types.StateFinished || r.ValidationTimer == nil {
		// Host validated first, or the room reset.
		r.Unlock()
		return
	}
	r.ValidationTimer = nil
	lang := r.Language
	var outstanding []string
	seen := make(map[string]struct{})
	for _, details := range r.WordDetails {
		for _, detail := range details {
			if detail.Validated {
				continue
			}
			if _, dup := seen[detail.Word]; !dup {
				seen[detail.Word] = struct{}{}
				outstanding = append(outstanding, detail.Word)
			}
		}
	}
	r.Unlock()

	var verdicts map[string]*ai.Verdict
	if len(outstanding) > 0 && d.oracle != nil {
		aiCtx, cancel := context.WithTimeout(ctx, aiCallTimeout)
		var aiErr error
		verdicts, aiErr = d.oracle.ValidateWords(aiCtx, outstanding, lang)
		cancel()
		if aiErr != nil {
			logging.Debug(ctx, "AI oracle skipped during auto-validation", zap.Error(aiErr))
			verdicts = nil
		}
	}

	var fin *finalization
	err := d.withRoom(ctx, code, func(r *game.Room) error {
		if r.State != types.StateFinished {
			return nil
		}
		for _, details := range r.WordDetails {
			for _, detail := range details {
				if detail.Validated {
					continue
				}
				if v, ok := verdicts[detail.Word]; ok && v.IsValid {
					detail.Validated = true
					detail.AutoValidated = true
					detail.AIVerified = true
					detail.Score = game.WordScore(detail.Word, detail.ComboLevel)
				}
			}
		}
		d.broadcast(code, types.EventAutoValidationOccurred, nil)
		fin = d.finalizeLocked(ctx, r)
		return nil
	})
	if err != nil {
		logging.Warn(ctx, "Auto-validation failed", zap.String("room_code", string(code)), zap.Error(err))
		return
	}
	d.afterFinalize(ctx, code, fin)
}

func (d *Dispatcher) handleValidateWords(ctx context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.ValidateWordsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.OutcomeMalformed
	}
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}

	var fin *finalization
	var approvedNonDict []string
	var lang types.Language

	err = d.withRoom(ctx, b.Room, func(r *game.Room) error {
		if r.Host != b.Participant {
			return types.OutcomeOnlyHostCanEnd
		}
		if r.State != types.StateFinished {
			return types.OutcomeGameNotInProgress
		}
		lang = r.Language

		for _, v := range p.Validations {
			name := types.ParticipantName(v.Player)
			word := dictionary.Normalize(v.Word)
			for _, detail := range r.WordDetails[name] {
				if detail.Word != word {
					continue
				}
				if v.Approved {
					if !detail.Validated {
						detail.Validated = true
						detail.Score = game.WordScore(detail.Word, detail.ComboLevel)
					}
					if d.dict.IsValidWord(word, r.Language) != dictionary.Valid {
						approvedNonDict = append(approvedNonDict, word)
					}
				} else {
					detail.Validated = false
					detail.Score = 0
				}
			}
		}

		fin = d.finalizeLocked(ctx, r)
		return nil
	})
	if err != nil {
		return err
	}

	// Host-approved non-dictionary words feed the community vote.
	for _, word := range approvedNonDict {
		d.mirror.RecordWordApproval(ctx, lang, word, b.Room)
	}
	d.afterFinalize(ctx, b.Room, fin)
	return nil
}

func rectangular(grid types.Grid) bool {
	if grid.Empty() {
		return false
	}
	cols := len(grid[0])
	for _, row := range grid {
		if len(row) != cols || cols == 0 {
			return false
		}
	}
	return true
}
