package search

import (
	"sort"

	"github.com/Aman-CERP/amanctx/internal/store"
)

// RRFFusion combines a lexical and a vector ranked list.
//
// Algorithm: score(d) = Σ 1 / (K + rank_i(d)), rank 1-indexed.
//
// Results are deduplicated by composite key (see FusionKey). The payload of
// the first occurrence is kept, lexical channel first; the score is the sum
// of every occurrence's contribution.
type RRFFusion struct {
	K int
}

// NewRRFFusion returns a fusion with constant k; k <= 0 means the default.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// FusionKey is the deduplication key of a result:
// code:scope:class:method for code, doc:scope:title for documents.
func FusionKey(r Result) string {
	if r.Kind == store.KindDocument {
		return "doc:" + r.ScopeID + ":" + r.Title
	}
	return "code:" + r.ScopeID + ":" + r.ClassName + ":" + r.MethodName
}

// Fuse returns the fused list sorted by score descending, then Identity.
func (f *RRFFusion) Fuse(lexical, vector []Result) []Result {
	if len(lexical) == 0 && len(vector) == 0 {
		return []Result{}
	}

	index := make(map[string]int, len(lexical)+len(vector))
	fused := make([]Result, 0, len(lexical)+len(vector))

	add := func(list []Result, lexicalChannel bool) {
		for i, r := range list {
			rank := i + 1
			contribution := 1.0 / float64(f.K+rank)
			key := FusionKey(r)

			pos, seen := index[key]
			if !seen {
				r.Score = 0
				r.LexicalRank, r.VectorRank = 0, 0
				fused = append(fused, r)
				pos = len(fused) - 1
				index[key] = pos
			}
			fused[pos].Score += contribution
			if lexicalChannel && fused[pos].LexicalRank == 0 {
				fused[pos].LexicalRank = rank
			}
			if !lexicalChannel && fused[pos].VectorRank == 0 {
				fused[pos].VectorRank = rank
			}
		}
	}
	add(lexical, true)
	add(vector, false)

	SortResults(fused)
	return fused
}

// SortResults orders by score descending, breaking ties by Identity.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Identity < results[j].Identity
	})
}
