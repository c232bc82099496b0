package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// Graph parameters.
const (
	DefaultM        = 16
	DefaultEfSearch = 64
	defaultMl       = 0.25
)

// vectorIndex is an in-memory HNSW graph over cosine distance, keyed by
// record identity and tagged with each record's scope for post-filtering.
//
// Replacing or removing an identity orphans its graph node rather than
// calling Delete on the graph, which misbehaves when the last node is
// removed. Orphans are skipped at search time and disappear on rebuild.
type vectorIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	dims    int
	idMap   map[string]uint64 // identity -> live key
	keyMap  map[uint64]string // live key -> identity
	scopes  map[uint64]string // live key -> scope
	nextKey uint64
	closed  bool
}

func newVectorIndex(dims int) *vectorIndex {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = DefaultM
	g.EfSearch = DefaultEfSearch
	g.Ml = defaultMl
	return &vectorIndex{
		graph:  g,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		scopes: make(map[uint64]string),
	}
}

// set adds or replaces the vector for id.
func (v *vectorIndex) set(id, scope string, vec []float32) error {
	if len(vec) != v.dims {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", v.dims, len(vec))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return errIndexClosed
	}

	v.orphanLocked(id)

	key := v.nextKey
	v.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeVectorInPlace(normalized)

	v.graph.Add(hnsw.MakeNode(key, normalized))
	v.idMap[id] = key
	v.keyMap[key] = id
	v.scopes[key] = scope
	return nil
}

// remove drops ids; unknown ids are ignored.
func (v *vectorIndex) remove(ids ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		v.orphanLocked(id)
	}
}

func (v *vectorIndex) orphanLocked(id string) {
	if key, ok := v.idMap[id]; ok {
		delete(v.keyMap, key)
		delete(v.scopes, key)
		delete(v.idMap, id)
	}
}

// search returns up to k live identities nearest to q, restricted to scope
// when it is non-empty. The graph is asked for k*multiplier candidates so
// scope filtering still leaves enough hits.
func (v *vectorIndex) search(ctx context.Context, q []float32, scope string, k, multiplier int) ([]scoredID, error) {
	if len(q) != v.dims {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", v.dims, len(q))
	}
	if multiplier < 1 {
		multiplier = 1
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, errIndexClosed
	}
	if len(v.idMap) == 0 || k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalized := make([]float32, len(q))
	copy(normalized, q)
	normalizeVectorInPlace(normalized)

	pool := k * multiplier
	// Orphans occupy graph slots, so widen the pool by their count.
	pool += v.graph.Len() - len(v.idMap)

	nodes := v.graph.Search(normalized, pool)
	out := make([]scoredID, 0, k)
	for _, node := range nodes {
		id, live := v.keyMap[node.Key]
		if !live {
			continue
		}
		if scope != "" && v.scopes[node.Key] != scope {
			continue
		}
		d := v.graph.Distance(normalized, node.Value)
		out = append(out, scoredID{ID: id, Score: distanceToScore(d)})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (v *vectorIndex) count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

func (v *vectorIndex) close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.graph = nil
	v.idMap = nil
	v.keyMap = nil
	v.scopes = nil
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps cosine distance [0,2] to similarity [0,1].
func distanceToScore(distance float32) float64 {
	return float64(1.0 - distance/2.0)
}
