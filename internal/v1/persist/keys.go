package persist

import "fmt"

// schemaVersion is baked into every key so the keyspace can evolve online:
// a new schema writes v2 keys while v1 entries age out via TTL.
const schemaVersion = "v1"

const (
	kindGame       = "game"
	kindTournament = "tournament"
	kindLock       = "lock"
	kindWord       = "word"
)

func (m *Mirror) gameKey(code string) string {
	return fmt.Sprintf("%s:%s:%s:%s", m.prefix, schemaVersion, kindGame, code)
}

func (m *Mirror) tournamentKey(id string) string {
	return fmt.Sprintf("%s:%s:%s:%s", m.prefix, schemaVersion, kindTournament, id)
}

func (m *Mirror) gameLockKey(code string) string {
	return fmt.Sprintf("%s:%s:%s:game:%s", m.prefix, schemaVersion, kindLock, code)
}

func (m *Mirror) wordApprovalKey(lang, word string) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", m.prefix, schemaVersion, kindWord, lang, word)
}

func (m *Mirror) gameScanPattern() string {
	return fmt.Sprintf("%s:%s:%s:*", m.prefix, schemaVersion, kindGame)
}

func (m *Mirror) tournamentScanPattern() string {
	return fmt.Sprintf("%s:%s:%s:*", m.prefix, schemaVersion, kindTournament)
}
