package game

import (
	"strings"
	"sync"
)

// profanity filtering is an exact match on the normalized word. Substring
// matching would reject legitimate words (the classic Scunthorpe problem).

var profanityMu sync.RWMutex

var profanityList = map[string]struct{}{
	"shit":    {},
	"fuck":    {},
	"cunt":    {},
	"bitch":   {},
	"asshole": {},
	"nigger":  {},
	"faggot":  {},
}

// IsProfane reports whether the normalized word is on the blocklist.
func IsProfane(normalized string) bool {
	profanityMu.RLock()
	defer profanityMu.RUnlock()
	_, ok := profanityList[normalized]
	return ok
}

// ExtendProfanityList adds words to the blocklist at startup (e.g. from a
// locale-specific list supplied by the dictionary loader).
func ExtendProfanityList(words []string) {
	profanityMu.Lock()
	defer profanityMu.Unlock()
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			profanityList[w] = struct{}{}
		}
	}
}

// SanitizeChat strips control characters and truncates overlong messages.
// Profane words inside chat are masked rather than dropped.
func SanitizeChat(text string) string {
	const maxChatLen = 500

	var b strings.Builder
	for _, r := range text {
		if r == '\n' || r == '\t' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if len(clean) > maxChatLen {
		clean = clean[:maxChatLen]
	}

	fields := strings.Fields(clean)
	masked := false
	for i, f := range fields {
		if IsProfane(strings.ToLower(strings.Trim(f, ".,!?;:'\""))) {
			fields[i] = strings.Repeat("*", len(f))
			masked = true
		}
	}
	if masked {
		return strings.Join(fields, " ")
	}
	return clean
}
