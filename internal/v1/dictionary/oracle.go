// Package dictionary implements the pure word-lookup oracle. Dictionaries
// are loaded once by an external collaborator; after load every lookup is
// a map probe with no I/O.
package dictionary

import (
	"strings"
	"sync"

	"github.com/lexiclash/server/internal/v1/types"
)

// Verdict is the tri-state result of a dictionary lookup.
type Verdict int

const (
	// Unknown means no dictionary is loaded for the language; the caller
	// must not treat the word as invalid.
	Unknown Verdict = iota
	Valid
	Invalid
)

// Oracle answers membership queries against per-language word sets.
type Oracle struct {
	mu    sync.RWMutex
	langs map[types.Language]map[string]struct{}
}

// NewOracle returns an Oracle with no dictionaries loaded. Every lookup
// returns Unknown until Load is called for the language.
func NewOracle() *Oracle {
	return &Oracle{langs: make(map[types.Language]map[string]struct{})}
}

// Load installs the word set for a language, replacing any previous set.
// Words are normalized to lower case.
func (o *Oracle) Load(lang types.Language, words []string) {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = Normalize(w)
		if w != "" {
			set[w] = struct{}{}
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.langs[lang] = set
}

// Loaded reports whether a dictionary exists for the language.
func (o *Oracle) Loaded(lang types.Language) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.langs[lang]
	return ok
}

// IsValidWord returns Valid or Invalid when a dictionary for lang is
// loaded, and Unknown otherwise.
func (o *Oracle) IsValidWord(word string, lang types.Language) Verdict {
	o.mu.RLock()
	set, ok := o.langs[lang]
	o.mu.RUnlock()

	if !ok {
		return Unknown
	}
	if _, found := set[Normalize(word)]; found {
		return Valid
	}
	return Invalid
}

// Normalize produces the canonical form used for all word comparisons:
// trimmed and lower-cased.
func Normalize(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
