package knowledge

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"you": true, "your": true, "are": true, "was": true, "have": true, "has": true,
	"from": true, "not": true, "but": true, "can": true, "will": true, "about": true,
	"what": true, "how": true, "want": true, "like": true, "our": true, "they": true,
}

// Index answers keyword queries over loaded chunks
type Index struct {
	chunks []Chunk
	terms  []map[string]int
}

// NewIndex builds the term table for chunks
func NewIndex(chunks []Chunk) *Index {
	idx := &Index{chunks: chunks, terms: make([]map[string]int, len(chunks))}
	for i, c := range chunks {
		tf := map[string]int{}
		for _, t := range tokenize(c.Text) {
			tf[t]++
		}
		idx.terms[i] = tf
	}
	return idx
}

// Len returns the number of chunks
func (idx *Index) Len() int { return len(idx.chunks) }

// Retrieve returns up to limit chunk texts sharing the most terms with query
func (idx *Index) Retrieve(query string, limit int) []string {
	if idx == nil || limit <= 0 {
		return nil
	}
	queryTerms := map[string]bool{}
	for _, t := range tokenize(query) {
		queryTerms[t] = true
	}
	if len(queryTerms) == 0 {
		return nil
	}

	type scored struct {
		i       int
		matched int
		hits    int
	}
	var hits []scored
	for i, tf := range idx.terms {
		s := scored{i: i}
		for t := range queryTerms {
			if n := tf[t]; n > 0 {
				s.matched++
				s.hits += n
			}
		}
		if s.matched > 0 {
			hits = append(hits, s)
		}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].matched != hits[b].matched {
			return hits[a].matched > hits[b].matched
		}
		return hits[a].hits > hits[b].hits
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, idx.chunks[h.i].Text)
	}
	return out
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
