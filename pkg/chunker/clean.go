package chunker

import (
	"regexp"
	"strings"
)

var (
	hyphenBreak  = regexp.MustCompile(`(\w+)-\s*\n\s*(\w+)`)
	multiSpace   = regexp.MustCompile(`\s+`)
	dashRun      = regexp.MustCompile(`[-–—]{2,}`)
	bulletMarker = regexp.MustCompile(`(^|\n)\s*[•◦▪*·]\s*`)
)

const leadingPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// RemoveHyphenation joins words broken across line ends.
func RemoveHyphenation(text string) string {
	return hyphenBreak.ReplaceAllString(text, "$1$2")
}

// CleanText applies the standard chunk cleanup: drop non-ASCII runes,
// collapse whitespace, normalize dash runs and bullets, and strip leading
// punctuation. Idempotent after one pass.
func CleanText(text string) string {
	text = RemoveHyphenation(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	text = b.String()

	text = bulletMarker.ReplaceAllString(text, "$1")
	text = dashRun.ReplaceAllString(text, "-")
	text = multiSpace.ReplaceAllString(text, " ")
	text = strings.TrimLeft(text, leadingPunct+" ")
	return strings.TrimSpace(text)
}
