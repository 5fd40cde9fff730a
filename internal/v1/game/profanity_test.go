package game

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsProfaneExactMatchOnly(t *testing.T) {
	assert.True(t, IsProfane("shit"))
	assert.False(t, IsProfane("cat"))
	// No substring matching: legitimate words containing a blocked
	// sequence pass (the Scunthorpe problem).
	assert.False(t, IsProfane("scunthorpe"))
	assert.False(t, IsProfane("shitake"))
}

func TestExtendProfanityList(t *testing.T) {
	ExtendProfanityList([]string{" Blargh ", ""})

	assert.True(t, IsProfane("blargh"))
	assert.False(t, IsProfane(""))
}

func TestSanitizeChatStripsControlCharacters(t *testing.T) {
	out := SanitizeChat("hi\x00there\x07")
	assert.Equal(t, "hithere", out)
}

func TestSanitizeChatKeepsWhitespace(t *testing.T) {
	out := SanitizeChat("line one\nline two\ttabbed")
	assert.Equal(t, "line one\nline two\ttabbed", out)
}

func TestSanitizeChatTruncates(t *testing.T) {
	out := SanitizeChat(strings.Repeat("a", 600))
	assert.Len(t, out, 500)
}

func TestSanitizeChatMasksProfanity(t *testing.T) {
	out := SanitizeChat("well shit happens")
	assert.Equal(t, "well **** happens", out)
}

func TestSanitizeChatMasksPunctuatedProfanity(t *testing.T) {
	out := SanitizeChat("oh shit!")
	assert.Equal(t, "oh *****", out)
}

func TestSanitizeChatCleanTextUnchanged(t *testing.T) {
	out := SanitizeChat("good game everyone")
	assert.Equal(t, "good game everyone", out)
}
