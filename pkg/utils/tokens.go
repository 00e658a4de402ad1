package utils

import "regexp"

var tokenSplit = regexp.MustCompile(`\s+|[()\[\]{}.,:;+=*/\\"'<>-]`)

// CountTokensRough approximates the token count of a prompt by splitting on
// whitespace and common code symbols. Good enough for budget checks; not a
// tokenizer.
func CountTokensRough(text string) int {
	parts := tokenSplit.Split(text, -1)
	count := 0
	for _, p := range parts {
		if p != "" {
			count++
		}
	}
	return count
}
