// Package types holds the identifiers, wire envelopes, and typed outcomes
// shared across the realtime core. Packages depend on types, never the
// other way around.
package types

import "time"

// RoomCode is the 4-character identifier of a game room.
type RoomCode string

// ParticipantName is the display name a joiner claims inside a room.
type ParticipantName string

// ConnID is the opaque identifier of a transport connection.
type ConnID string

// AuthUserID is the upstream-verified identity of an authenticated user.
// Empty for guests.
type AuthUserID string

// Language is the dictionary language tag of a room.
type Language string

const (
	LangEnglish  Language = "en"
	LangHebrew   Language = "he"
	LangSwedish  Language = "sv"
	LangJapanese Language = "ja"
)

// ValidLanguage reports whether lang is one of the supported dictionary tags.
func ValidLanguage(lang Language) bool {
	switch lang {
	case LangEnglish, LangHebrew, LangSwedish, LangJapanese:
		return true
	}
	return false
}

// GameState is the lifecycle state of a room.
type GameState string

const (
	StateWaiting    GameState = "waiting"
	StateInProgress GameState = "in-progress"
	StateFinished   GameState = "finished"
)

// PresenceStatus describes the liveness of a participant's connection.
type PresenceStatus string

const (
	PresenceActive PresenceStatus = "active"
	PresenceIdle   PresenceStatus = "idle"
	PresenceWeak   PresenceStatus = "weak"
	PresenceAway   PresenceStatus = "away"
)

// Grid is the shared letter matrix. Cells may hold multi-character tokens
// for languages with compound glyphs.
type Grid [][]string

// Rows returns the number of rows in the grid.
func (g Grid) Rows() int { return len(g) }

// Cols returns the number of columns, or 0 for an empty grid.
func (g Grid) Cols() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Empty reports whether the grid holds no cells.
func (g Grid) Empty() bool { return g.Rows() == 0 || g.Cols() == 0 }

// Sender is the write half of a client connection. Implemented by the
// transport client; consumed by the dispatcher for broadcasts.
type Sender interface {
	ConnID() ConnID
	Send(event EventName, payload any)
	// CloseAfter disconnects the underlying transport after the given delay,
	// leaving time for already-queued messages to flush.
	CloseAfter(delay time.Duration)
}
