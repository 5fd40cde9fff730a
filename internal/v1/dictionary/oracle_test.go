package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lexiclash/server/internal/v1/types"
)

func TestOracleUnknownWithoutDictionary(t *testing.T) {
	o := NewOracle()

	assert.False(t, o.Loaded(types.LangEnglish))
	assert.Equal(t, Unknown, o.IsValidWord("cat", types.LangEnglish))
}

func TestOracleLoadAndLookup(t *testing.T) {
	o := NewOracle()
	o.Load(types.LangEnglish, []string{"cat", "dog", "house"})

	assert.True(t, o.Loaded(types.LangEnglish))
	assert.Equal(t, Valid, o.IsValidWord("cat", types.LangEnglish))
	assert.Equal(t, Invalid, o.IsValidWord("zzz", types.LangEnglish))
}

func TestOracleNormalizesOnLoadAndLookup(t *testing.T) {
	o := NewOracle()
	o.Load(types.LangEnglish, []string{"  CAT ", "Dog"})

	assert.Equal(t, Valid, o.IsValidWord("cat", types.LangEnglish))
	assert.Equal(t, Valid, o.IsValidWord(" DOG ", types.LangEnglish))
}

func TestOracleLanguagesAreIndependent(t *testing.T) {
	o := NewOracle()
	o.Load(types.LangEnglish, []string{"cat"})
	o.Load(types.LangSwedish, []string{"katt"})

	assert.Equal(t, Valid, o.IsValidWord("cat", types.LangEnglish))
	assert.Equal(t, Invalid, o.IsValidWord("katt", types.LangEnglish))
	assert.Equal(t, Valid, o.IsValidWord("katt", types.LangSwedish))
	assert.Equal(t, Unknown, o.IsValidWord("katze", types.LangHebrew))
}

func TestOracleLoadReplaces(t *testing.T) {
	o := NewOracle()
	o.Load(types.LangEnglish, []string{"cat"})
	o.Load(types.LangEnglish, []string{"dog"})

	assert.Equal(t, Invalid, o.IsValidWord("cat", types.LangEnglish))
	assert.Equal(t, Valid, o.IsValidWord("dog", types.LangEnglish))
}

func TestOracleDropsEmptyWords(t *testing.T) {
	o := NewOracle()
	o.Load(types.LangEnglish, []string{"", "  ", "cat"})

	assert.Equal(t, Valid, o.IsValidWord("cat", types.LangEnglish))
	assert.Equal(t, Invalid, o.IsValidWord("", types.LangEnglish))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cat", Normalize("  CAT "))
	assert.Equal(t, "", Normalize("   "))
	assert.Equal(t, "über", Normalize("ÜBER"))
}
