package engine

import (
	"sort"
	"strings"

	"github.com/scrypster/recollect/pkg/types"
)

const (
	// lexicalBaseScore is awarded for every expanded term found in a record.
	lexicalBaseScore = 50

	// lexicalLengthWeight rewards longer, more specific terms.
	lexicalLengthWeight = 2
)

// LexicalMatch is a record scored by the lexical fallback.
type LexicalMatch struct {
	Record  types.MediaRecord
	Score   int
	Matches []string
}

// LexicalScore sums 50 + 2×len(term) over the terms found in text.
// Matching is case-insensitive; the matched terms are returned in input order.
func LexicalScore(text string, terms []string) (int, []string) {
	text = strings.ToLower(text)
	score := 0
	var matched []string
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(text, term) {
			score += lexicalBaseScore + lexicalLengthWeight*len(term)
			matched = append(matched, term)
		}
	}
	return score, matched
}

// RankLexical scores each record's description and transcript against the
// expanded terms, keeps records scoring above zero, and sorts them by score
// descending with newer captures first on ties.
func RankLexical(records []types.MediaRecord, terms []string) []LexicalMatch {
	var out []LexicalMatch
	for _, rec := range records {
		score, matched := LexicalScore(rec.Description+"\n"+rec.Transcript, terms)
		if score <= 0 {
			continue
		}
		out = append(out, LexicalMatch{Record: rec, Score: score, Matches: matched})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Record.CapturedAt.After(out[j].Record.CapturedAt)
	})
	return out
}
