// Package match scores inbound mail against open job requirements. It is
// pure and stateless: the same inputs always produce the same score, so the
// ingestion daemon and any review surface can call it speculatively.
package match

import "strings"

// stopwords are tokens that carry no matching signal: articles, pronouns,
// auxiliary verbs, and common connectives.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "any": {}, "can": {}, "had": {}, "her": {},
	"was": {}, "one": {}, "our": {}, "out": {}, "has": {}, "him": {},
	"his": {}, "how": {}, "its": {}, "may": {}, "new": {}, "now": {},
	"she": {}, "too": {}, "use": {}, "that": {}, "with": {}, "have": {},
	"this": {}, "will": {}, "your": {}, "from": {}, "they": {}, "been": {},
	"were": {}, "than": {}, "them": {}, "then": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "while": {}, "would": {}, "there": {},
	"their": {}, "about": {}, "could": {}, "should": {}, "these": {},
	"those": {}, "into": {}, "over": {}, "also": {}, "such": {}, "only": {},
	"other": {}, "some": {}, "more": {}, "very": {}, "just": {}, "being": {},
	"does": {}, "doing": {}, "each": {}, "well": {},
}

// ExtractKeywords tokenizes text into a deduplicated set of lowercase
// keywords: punctuation stripped, whitespace split, tokens of length <= 2
// and stopwords discarded. Order is first occurrence. Empty input yields nil.
func ExtractKeywords(text string) []string {
	if text == "" {
		return nil
	}
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune("!\"#$%&'()*+,./:;<=>?@[\\]^_`{|}~", r) {
			return ' '
		}
		return r
	}, strings.ToLower(text))

	seen := make(map[string]struct{})
	var keywords []string
	for _, tok := range strings.Fields(clean) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

// FindMatches returns the keywords that hit text: an exact case-insensitive
// substring counts immediately; otherwise the keyword is accepted when its
// whole-string similarity to text reaches threshold. Comparing one keyword
// against an entire block by edit distance is intentionally coarse — the
// fallback only fires for text of comparable length to the keyword.
func FindMatches(keywords []string, text string, threshold int) []string {
	if len(keywords) == 0 || text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
			continue
		}
		if Similarity(kw, lower) >= threshold {
			matched = append(matched, kw)
		}
	}
	return matched
}
