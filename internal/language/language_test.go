package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_KnownLanguage(t *testing.T) {
	sel := Resolve("kannada")
	assert.Equal(t, "kn-IN", sel.SpeechCode)
	assert.Equal(t, "kn", sel.TextCode)
}

func TestResolve_SpeechFallbackKeepsOwnTextCode(t *testing.T) {
	sel := Resolve("tulu")
	assert.Equal(t, "kn-IN", sel.SpeechCode, "unsupported speech locale borrows the sibling code")
	assert.Equal(t, "tcy", sel.TextCode, "text code stays the language's own")

	sel = Resolve("konkani")
	assert.Equal(t, "hi-IN", sel.SpeechCode)
	assert.Equal(t, "kok", sel.TextCode)
}

func TestResolve_UnknownFallsBackToDefault(t *testing.T) {
	sel := Resolve("klingon")
	assert.Equal(t, DefaultID, sel.ID)
	assert.NotEmpty(t, sel.SpeechCode)
	assert.NotEmpty(t, sel.TextCode)
}

func TestResolve_NeverEmptyCodes(t *testing.T) {
	for _, sel := range All() {
		assert.NotEmpty(t, sel.SpeechCode, sel.ID)
		assert.NotEmpty(t, sel.TextCode, sel.ID)
	}
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("hindi"))
	assert.False(t, Known(""))
	assert.False(t, Known("klingon"))
}
