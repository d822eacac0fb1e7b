// Package retrieval implements the hybrid retrieval core: a flat
// inner-product dense index and a BM25 lexical index over one shared
// corpus ordering, fused by a weighted combination of min-max normalized
// scores.
package retrieval

import (
	"strings"
	"unicode"
)

// Tokenize lowercases the input and returns maximal runs of Unicode
// letters, digits and underscores. Mirrors the \b\w+\b extraction the
// index corpus was built with; an empty result is legal.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

// QueryTokens tokenizes a query, falling back to a lowercase whitespace
// split when the word tokenizer yields nothing, so an all-punctuation or
// foreign-script query still attempts a lexical pass.
func QueryTokens(query string) []string {
	if tokens := Tokenize(query); len(tokens) > 0 {
		return tokens
	}
	return strings.Fields(strings.ToLower(query))
}
