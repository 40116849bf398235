// Package search ranks a child's timeline entries against a free text query.
//
// Entries are scored by the Jaccard similarity of their term set (title,
// description and tags) with the query's term set. Query words written as
// #tag are filters: only entries carrying every such tag are considered.
// A LogIndex is immutable once built and safe for concurrent use.
package search

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// DefaultLimit is used when TopK is asked for a non-positive number of hits.
const DefaultLimit = 10

// Result is a ranked log entry with its similarity score.
type Result struct {
	Entry domain.LogEntry `json:"entry"`
	Score float64         `json:"score"`
}

// Option tunes a LogIndex.
type Option func(*LogIndex)

// WithMinScore drops hits scoring below s. Values outside [0,1] are ignored.
func WithMinScore(s float64) Option {
	return func(ix *LogIndex) {
		if s >= 0 && s <= 1 {
			ix.minScore = s
		}
	}
}

type termSet map[string]struct{}

type posting struct {
	entry domain.LogEntry
	terms termSet
	tags  termSet
}

// LogIndex holds the analysed entries of one timeline.
type LogIndex struct {
	minScore float64
	postings []posting
}

var stopwords = termSet{
	"a": {}, "an": {}, "and": {}, "are": {}, "at": {}, "for": {}, "he": {},
	"her": {}, "his": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "she": {}, "the": {}, "their": {}, "they": {}, "to": {},
	"was": {}, "were": {}, "with": {},
}

// NewLogIndex analyses logs. Entries with no searchable term are left out.
func NewLogIndex(logs []domain.LogEntry, opts ...Option) *LogIndex {
	ix := &LogIndex{}
	for _, o := range opts {
		o(ix)
	}
	ix.postings = make([]posting, 0, len(logs))
	for _, l := range logs {
		terms := ix.analyse(l.Title + " " + l.Description + " " + strings.Join(l.Tags, " "))
		if len(terms) == 0 {
			continue
		}
		tags := termSet{}
		for _, t := range l.Tags {
			if t = fold(strings.TrimSpace(t)); t != "" {
				tags[t] = struct{}{}
			}
		}
		ix.postings = append(ix.postings, posting{entry: l, terms: terms, tags: tags})
	}
	return ix
}

// Len reports how many entries are searchable.
func (ix *LogIndex) Len() int { return len(ix.postings) }

// TopK returns up to k hits, best first. Equal scores put the newer entry
// first and fall back to ID order.
func (ix *LogIndex) TopK(query string, k int) []Result {
	if k <= 0 {
		k = DefaultLimit
	}
	terms, filters := ix.parseQuery(query)
	if len(terms) == 0 && len(filters) == 0 {
		return nil
	}

	var hits []Result
	for _, p := range ix.postings {
		if !p.hasTags(filters) {
			continue
		}
		score := 1.0
		if len(terms) > 0 {
			score = jaccard(terms, p.terms)
		}
		if score == 0 || score < ix.minScore {
			continue
		}
		hits = append(hits, Result{Entry: p.entry, Score: score})
	}
	if len(hits) == 0 {
		return nil
	}
	slices.SortStableFunc(hits, rank)
	return hits[:min(k, len(hits))]
}

func rank(a, b Result) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	case a.Entry.CreatedAt.After(b.Entry.CreatedAt):
		return -1
	case b.Entry.CreatedAt.After(a.Entry.CreatedAt):
		return 1
	}
	return strings.Compare(a.Entry.ID, b.Entry.ID)
}

func (p posting) hasTags(want []string) bool {
	for _, t := range want {
		if _, ok := p.tags[t]; !ok {
			return false
		}
	}
	return true
}

// parseQuery splits a query into scored terms and #tag filters.
func (ix *LogIndex) parseQuery(q string) (termSet, []string) {
	var rest []string
	var filters []string
	for _, f := range strings.Fields(q) {
		if tag, ok := strings.CutPrefix(f, "#"); ok {
			if tag = fold(tag); tag != "" {
				filters = append(filters, tag)
			}
			continue
		}
		rest = append(rest, f)
	}
	return ix.analyse(strings.Join(rest, " ")), filters
}

// analyse folds case and keeps letter runs with optional trailing digits,
// minus stop words.
func (ix *LogIndex) analyse(s string) termSet {
	words := strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	var out termSet
	for _, w := range words {
		w = strings.TrimLeftFunc(w, unicode.IsNumber)
		if w == "" {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if out == nil {
			out = termSet{}
		}
		out[w] = struct{}{}
	}
	return out
}

// fold uses a fresh Caser per call since Casers are not safe for concurrent use.
func fold(s string) string { return cases.Fold().String(s) }

func jaccard(a, b termSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for t := range small {
		if _, ok := large[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}
