package chunker

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[\p{L}]+`)

// Speller scores chunk text against per-language word lists. Languages
// without a registered dictionary pass unconditionally.
type Speller struct {
	dicts   map[string]map[string]struct{}
	weights map[string]float64
}

// NewSpeller returns a speller with no dictionaries loaded.
func NewSpeller() *Speller {
	return &Speller{
		dicts:   map[string]map[string]struct{}{},
		weights: map[string]float64{},
	}
}

// RegisterDictionary installs a word list for a language, one word per line.
// weight scales the raw score; pass 1.0 for none.
func (s *Speller) RegisterDictionary(lang string, r io.Reader, weight float64) error {
	dict := map[string]struct{}{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		word := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if word != "" {
			dict[word] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	s.dicts[lang] = dict
	s.weights[lang] = weight
	return nil
}

// RegisterWords installs a word list directly.
func (s *Speller) RegisterWords(lang string, words []string, weight float64) {
	dict := make(map[string]struct{}, len(words))
	for _, w := range words {
		dict[strings.ToLower(w)] = struct{}{}
	}
	s.dicts[lang] = dict
	s.weights[lang] = weight
}

// Score returns the fraction of tokens longer than 4 characters found in
// the language dictionary, scaled by the language weight. A language with
// no dictionary scores 1.0; a text with no such tokens scores 0.
func (s *Speller) Score(text, lang string) float64 {
	dict, ok := s.dicts[lang]
	if !ok {
		return 1.0
	}
	total, hits := 0, 0
	for _, token := range wordPattern.FindAllString(text, -1) {
		if len([]rune(token)) <= 4 {
			continue
		}
		total++
		if _, found := dict[strings.ToLower(token)]; found {
			hits++
		}
	}
	if total == 0 {
		return 0
	}
	weight := s.weights[lang]
	if weight == 0 {
		weight = 1.0
	}
	return weight * float64(hits) / float64(total)
}
