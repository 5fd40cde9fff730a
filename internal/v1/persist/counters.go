package persist

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WordApproval is the community-vote counter for a non-dictionary word
// approved by hosts. Stored as one JSON blob per (language, word).
type WordApproval struct {
	ApprovalCount int       `json:"approvalCount"`
	GameIDs       []string  `json:"gameIds"`
	FirstApproved time.Time `json:"firstApproved"`
	LastApproved  time.Time `json:"lastApproved"`
}

const (
	// optimisticRetries bounds the WATCH/commit fallback loop.
	optimisticRetries = 5
	// approvalGameIDCap bounds the stored game id list.
	approvalGameIDCap = 50
)

// approvalScript applies the read-modify-write server-side so concurrent
// approvals from different instances never lose updates.
var approvalScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
local now = ARGV[2]
local entry
if raw then
	entry = cjson.decode(raw)
else
	entry = {approvalCount=0, gameIds={}, firstApproved=now, lastApproved=now}
end
entry.approvalCount = entry.approvalCount + 1
entry.lastApproved = now
if entry.firstApproved == nil or entry.firstApproved == cjson.null then
	entry.firstApproved = now
end
local found = false
for _, id in ipairs(entry.gameIds) do
	if id == ARGV[1] then found = true break end
end
if not found and #entry.gameIds < tonumber(ARGV[3]) then
	table.insert(entry.gameIds, ARGV[1])
end
redis.call("SET", KEYS[1], cjson.encode(entry), "PX", ARGV[4])
return entry.approvalCount
`)

// RecordWordApproval increments the approval counter for word in lang,
// attributing the approval to gameCode. Prefers the server-side script;
// when the server lacks scripting (cold instance), falls back to an
// optimistic WATCH/commit loop with bounded retries.
func (m *Mirror) RecordWordApproval(ctx context.Context, lang types.Language, word string, gameCode types.RoomCode) {
	if !m.Enabled() {
		return
	}

	key := m.wordApprovalKey(string(lang), word)
	now := time.Now().UTC().Format(time.RFC3339)
	ttlMs := jitteredTTL(m.opts.LeaderboardTTL).Milliseconds()

	if !m.scriptingDisabled() {
		_, err := m.execute(func() (interface{}, error) {
			return approvalScript.Run(ctx, m.client, []string{key}, string(gameCode), now, approvalGameIDCap, ttlMs).Result()
		})
		if err == nil || errors.Is(err, ErrUnavailable) {
			return
		}
		if isScriptingUnsupported(err) {
			m.disableScripting()
			logging.Warn(ctx, "Redis scripting unavailable; using optimistic update path")
		} else {
			logging.Warn(ctx, "Word approval script failed; using optimistic update path", zap.Error(err))
		}
	}

	if err := m.recordApprovalOptimistic(ctx, key, string(gameCode)); err != nil {
		logging.Warn(ctx, "Word approval update failed", zap.Error(err), zap.String("word", word))
	}
}

// recordApprovalOptimistic is the WATCH-guarded fallback: read, modify,
// conditional commit, bounded retry with backoff on conflict.
func (m *Mirror) recordApprovalOptimistic(ctx context.Context, key, gameCode string) error {
	delay := retryBaseDelay
	for attempt := 0; attempt < optimisticRetries; attempt++ {
		err := m.client.Watch(ctx, func(tx *redis.Tx) error {
			var entry WordApproval
			raw, err := tx.Get(ctx, key).Result()
			switch {
			case err == nil:
				if err := json.Unmarshal([]byte(raw), &entry); err != nil {
					entry = WordApproval{}
				}
			case errors.Is(err, redis.Nil):
				// first approval
			default:
				return err
			}

			now := time.Now().UTC()
			entry.ApprovalCount++
			entry.LastApproved = now
			if entry.FirstApproved.IsZero() {
				entry.FirstApproved = now
			}
			if !containsString(entry.GameIDs, gameCode) && len(entry.GameIDs) < approvalGameIDCap {
				entry.GameIDs = append(entry.GameIDs, gameCode)
			}

			blob, err := json.Marshal(&entry)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, blob, jitteredTTL(m.opts.LeaderboardTTL))
				return nil
			})
			return err
		}, key)

		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	return errors.New("optimistic update conflict budget exhausted")
}

// GetWordApproval reads the counter for word in lang. Returns (nil, nil)
// when absent.
func (m *Mirror) GetWordApproval(ctx context.Context, lang types.Language, word string) (*WordApproval, error) {
	if !m.Enabled() {
		return nil, nil
	}
	res, err := m.execute(func() (interface{}, error) {
		return m.client.Get(ctx, m.wordApprovalKey(string(lang), word)).Result()
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var entry WordApproval
	if err := json.Unmarshal([]byte(res.(string)), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (m *Mirror) scriptingDisabled() bool {
	m.scriptMu.Lock()
	defer m.scriptMu.Unlock()
	return m.scriptingDown
}

func (m *Mirror) disableScripting() {
	m.scriptMu.Lock()
	defer m.scriptMu.Unlock()
	m.scriptingDown = true
}

func isScriptingUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "UNKNOWN COMMAND") || strings.Contains(msg, "NOSCRIPT")
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
