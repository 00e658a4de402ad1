package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	t.Run("CollapsesWhitespace", func(t *testing.T) {
		assert.Equal(t, "one two three", CleanText("one   two\t\tthree"))
	})

	t.Run("RemovesNonASCII", func(t *testing.T) {
		assert.Equal(t, "caf latte", CleanText("café latte"))
	})

	t.Run("NormalizesDashRuns", func(t *testing.T) {
		assert.Equal(t, "before-after", CleanText("before--after"))
	})

	t.Run("StripsLeadingPunctuation", func(t *testing.T) {
		assert.Equal(t, "word stays", CleanText(";,word stays"))
	})

	t.Run("RepairsHyphenation", func(t *testing.T) {
		assert.Equal(t, "information retrieval", CleanText("infor-\nmation retrieval"))
	})

	t.Run("Idempotent", func(t *testing.T) {
		dirty := "•  bullet point — with  dash…  and   spaces"
		once := CleanText(dirty)
		assert.Equal(t, once, CleanText(once))
	})
}

func TestRemoveHyphenation(t *testing.T) {
	assert.Equal(t, "wordbreak stays", RemoveHyphenation("word-\nbreak stays"))
	assert.Equal(t, "pre-existing", RemoveHyphenation("pre-existing"))
}

func TestSpeller(t *testing.T) {
	t.Run("NoDictionaryPasses", func(t *testing.T) {
		s := NewSpeller()
		assert.Equal(t, 1.0, s.Score("zzxqj wvkpt unknown language", "fi"))
	})

	t.Run("ScoresAgainstDictionary", func(t *testing.T) {
		s := NewSpeller()
		s.RegisterWords("en", []string{"hello", "world"}, 1.0)
		assert.Equal(t, 1.0, s.Score("hello world", "en"))
		assert.Equal(t, 0.5, s.Score("hello zzxqj", "en"))
		assert.Equal(t, 0.0, s.Score("zzxqj qwpfg", "en"))
	})

	t.Run("ShortTokensIgnored", func(t *testing.T) {
		s := NewSpeller()
		s.RegisterWords("en", []string{"hello"}, 1.0)
		// only tokens longer than 4 characters count; none here
		assert.Equal(t, 0.0, s.Score("a an the of to", "en"))
	})

	t.Run("WeightScalesScore", func(t *testing.T) {
		s := NewSpeller()
		s.RegisterWords("de", []string{"hallo"}, 0.5)
		assert.Equal(t, 0.5, s.Score("hallo", "de"))
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		s := NewSpeller()
		s.RegisterWords("en", []string{"Hello"}, 1.0)
		assert.Equal(t, 1.0, s.Score("HELLO", "en"))
	})
}
