package store

import (
	"regexp"
	"strings"
)

var wordRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// TokenizeText splits prose into lowercase word tokens, dropping tokens
// shorter than two characters.
func TokenizeText(text string) []string {
	var tokens []string
	for _, word := range wordRegex.FindAllString(text, -1) {
		lower := strings.ToLower(word)
		if len(lower) >= 2 {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a stop word list to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// DefaultEnglishStopWords are function words dropped during indexing and
// query normalization. Matching is case-insensitive.
var DefaultEnglishStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
	"if", "in", "into", "is", "it", "its", "no", "not", "of", "on",
	"or", "such", "that", "the", "their", "then", "there", "these",
	"they", "this", "to", "was", "were", "which", "will", "with",
	"what", "when", "where", "who", "how",
}
