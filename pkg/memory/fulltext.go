package memory

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	asciiWordRe = regexp.MustCompile(`[A-Za-z]{2,}`)
	digitRunRe  = regexp.MustCompile(`[0-9]{2,}`)
)

// extractKeywords implements the spec's keyword extraction: ASCII words of
// length >= 2, digit runs of length >= 2, and CJK 2-grams plus 3-grams
// when the query has at least 4 CJK characters.
func extractKeywords(query string) []string {
	var keywords []string
	keywords = append(keywords, asciiWordRe.FindAllString(query, -1)...)
	keywords = append(keywords, digitRunRe.FindAllString(query, -1)...)

	cjk := cjkRunes(query)
	if len(cjk) >= 4 {
		for n := 0; n+2 <= len(cjk); n++ {
			keywords = append(keywords, string(cjk[n:n+2]))
		}
		for n := 0; n+3 <= len(cjk); n++ {
			keywords = append(keywords, string(cjk[n:n+3]))
		}
	}
	return keywords
}

func cjkRunes(s string) []rune {
	var out []rune
	for _, r := range s {
		if isCJK(r) {
			out = append(out, r)
		}
	}
	return out
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}

// fulltextScore scores content by the sum of occurrence counts of each
// keyword (case-insensitive, keyword regex metacharacters escaped).
func fulltextScore(content string, keywords []string) int {
	lower := strings.ToLower(content)
	score := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		pattern, err := regexp.Compile(regexp.QuoteMeta(strings.ToLower(kw)))
		if err != nil {
			continue
		}
		score += len(pattern.FindAllStringIndex(lower, -1))
	}
	return score
}

// fulltextSearch scores every candidate, keeps strictly positive scores,
// sorts descending, and caps at limit.
func fulltextSearch(candidates []Entry, query string, limit int) []Entry {
	keywords := extractKeywords(query)
	if len(keywords) == 0 {
		return nil
	}
	type scored struct {
		entry Entry
		score int
	}
	var results []scored
	for _, e := range candidates {
		s := fulltextScore(e.Content, keywords)
		if s > 0 {
			results = append(results, scored{e, s})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > limit {
		results = results[:limit]
	}
	out := make([]Entry, len(results))
	for i, r := range results {
		out[i] = r.entry
		out[i].Score = float32(r.score)
	}
	return out
}
