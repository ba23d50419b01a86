// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ann

import (
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/cortexeng/cortex/common/heap"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"modernc.org/mathutil"
)

// HNSW is a vector index based on Hierarchical Navigable Small Worlds.
// Insertion is single threaded and levels are drawn from a seeded source, so
// the same sequence of Add calls always builds the same graph.
type HNSW[T any] struct {
	distanceFunc    func(a, b T) float32
	vectors         []T
	bottomNeighbors []*heap.PriorityQueue
	upperNeighbors  []map[int32]*heap.PriorityQueue
	enterPoint      int32
	rng             *rand.Rand

	levelFactor    float32
	maxConnection  int // maximum number of connections for each element per layer
	maxConnection0 int
	ef             int
	efConstruction int
}

type Option func(*options)

type options struct {
	maxConnection  int
	efConstruction int
	ef             int
	seed           int64
}

// WithMaxConnection sets the maximum number of connections per element on upper layers.
func WithMaxConnection(m int) Option {
	return func(o *options) {
		o.maxConnection = m
	}
}

// WithEFConstruction sets the size of the candidate list used while inserting.
func WithEFConstruction(ef int) Option {
	return func(o *options) {
		o.efConstruction = ef
	}
}

// WithEF sets the size of the candidate list used while searching.
func WithEF(ef int) Option {
	return func(o *options) {
		o.ef = ef
	}
}

// WithSeed sets the seed of level generation.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

func NewHNSW[T any](distanceFunc func(a, b T) float32, opts ...Option) *HNSW[T] {
	o := options{maxConnection: 48, efConstruction: 100}
	for _, opt := range opts {
		opt(&o)
	}
	return &HNSW[T]{
		distanceFunc:   distanceFunc,
		rng:            rand.New(rand.NewSource(o.seed)),
		levelFactor:    1.0 / math32.Log(float32(o.maxConnection)),
		maxConnection:  o.maxConnection,
		maxConnection0: o.maxConnection * 2,
		ef:             o.ef,
		efConstruction: o.efConstruction,
	}
}

// Len returns the number of indexed vectors.
func (h *HNSW[T]) Len() int {
	return len(h.vectors)
}

// Add inserts a vector and returns its index.
func (h *HNSW[T]) Add(v T) int {
	h.vectors = append(h.vectors, v)
	h.bottomNeighbors = append(h.bottomNeighbors, heap.NewPriorityQueue(false))
	q := len(h.vectors) - 1
	h.insert(int32(q))
	return q
}

// SearchIndex returns the k nearest vectors to the q-th vector, the q-th vector included.
func (h *HNSW[T]) SearchIndex(q, k int) ([]lo.Tuple2[int, float32], error) {
	if q < 0 || q >= len(h.vectors) {
		return nil, errors.Errorf("index out of range: %v", q)
	}
	return h.SearchVector(h.vectors[q], k), nil
}

// SearchVector returns the k nearest vectors to q ordered by distance.
func (h *HNSW[T]) SearchVector(q T, k int) []lo.Tuple2[int, float32] {
	if len(h.vectors) == 0 || k <= 0 {
		return nil
	}
	w := h.knnSearch(q, k, h.efSearchValue(k))
	scores := make([]lo.Tuple2[int, float32], 0, w.Len())
	for w.Len() > 0 {
		value, score := w.Pop()
		scores = append(scores, lo.Tuple2[int, float32]{A: int(value), B: score})
	}
	return scores
}

func (h *HNSW[T]) knnSearch(q T, k, ef int) *heap.PriorityQueue {
	var (
		w           *heap.PriorityQueue
		enterPoints = h.distance(q, []int32{h.enterPoint})
		topLayer    = len(h.upperNeighbors)
	)
	for currentLayer := topLayer; currentLayer > 0; currentLayer-- {
		w = h.searchLayer(q, enterPoints, 1, currentLayer)
		enterPoints = heap.NewPriorityQueue(false)
		enterPoints.Push(w.Peek())
	}
	w = h.searchLayer(q, enterPoints, ef, 0)
	return h.selectNeighbors(w, k)
}

func (h *HNSW[T]) insert(q int32) {
	if q == 0 {
		h.enterPoint = q
		return
	}
	var (
		w           *heap.PriorityQueue
		enterPoints = h.distance(h.vectors[q], []int32{h.enterPoint})
		l           = int(math32.Floor(-math32.Log(1-h.rng.Float32()) * h.levelFactor))
		topLayer    = len(h.upperNeighbors)
	)
	for currentLayer := topLayer; currentLayer >= l+1; currentLayer-- {
		w = h.searchLayer(h.vectors[q], enterPoints, 1, currentLayer)
		enterPoints = h.selectNeighbors(w, 1)
	}
	for currentLayer := mathutil.Min(topLayer, l); currentLayer >= 0; currentLayer-- {
		w = h.searchLayer(h.vectors[q], enterPoints, h.efConstruction, currentLayer)
		neighbors := h.selectNeighbors(w, h.maxConnection)
		h.setNeighbourhood(q, currentLayer, neighbors)
		// add bidirectional connections
		maxConnection := h.maxConnection
		if currentLayer == 0 {
			maxConnection = h.maxConnection0
		}
		for _, e := range neighbors.Elems() {
			connections := h.getNeighbourhood(e.Value, currentLayer)
			connections.Push(q, e.Weight)
			if connections.Len() > maxConnection {
				h.setNeighbourhood(e.Value, currentLayer, h.selectNeighbors(connections, maxConnection))
			}
		}
		enterPoints = w
	}
	for layer := topLayer + 1; layer <= l; layer++ {
		h.upperNeighbors = append(h.upperNeighbors, make(map[int32]*heap.PriorityQueue))
		h.setNeighbourhood(q, layer, heap.NewPriorityQueue(false))
	}
	if l > topLayer {
		h.enterPoint = q
	}
}

func (h *HNSW[T]) searchLayer(q T, enterPoints *heap.PriorityQueue, ef, currentLayer int) *heap.PriorityQueue {
	var (
		v          = mapset.NewThreadUnsafeSet(enterPoints.Values()...) // visited elements
		candidates = enterPoints.Clone()
		w          = enterPoints.Reverse() // furthest on top
	)
	for candidates.Len() > 0 {
		c, cq := candidates.Pop()
		if _, fq := w.Peek(); cq > fq {
			break
		}
		for _, e := range h.getNeighbourhood(c, currentLayer).Values() {
			if v.Contains(e) {
				continue
			}
			v.Add(e)
			_, fq := w.Peek()
			if eq := h.distanceFunc(h.vectors[e], q); eq < fq || w.Len() < ef {
				candidates.Push(e, eq)
				w.Push(e, eq)
				if w.Len() > ef {
					w.Pop()
				}
			}
		}
	}
	return w.Reverse()
}

func (h *HNSW[T]) setNeighbourhood(e int32, currentLayer int, connections *heap.PriorityQueue) {
	if currentLayer == 0 {
		h.bottomNeighbors[e] = connections
	} else {
		h.upperNeighbors[currentLayer-1][e] = connections
	}
}

func (h *HNSW[T]) getNeighbourhood(e int32, currentLayer int) *heap.PriorityQueue {
	if currentLayer == 0 {
		return h.bottomNeighbors[e]
	}
	if connections, ok := h.upperNeighbors[currentLayer-1][e]; ok {
		return connections
	}
	return heap.NewPriorityQueue(false)
}

// selectNeighbors keeps the m nearest candidates.
func (h *HNSW[T]) selectNeighbors(candidates *heap.PriorityQueue, m int) *heap.PriorityQueue {
	pq := candidates.Reverse()
	for pq.Len() > m {
		pq.Pop()
	}
	return pq.Reverse()
}

func (h *HNSW[T]) distance(q T, points []int32) *heap.PriorityQueue {
	pq := heap.NewPriorityQueue(false)
	for _, point := range points {
		pq.Push(point, h.distanceFunc(h.vectors[point], q))
	}
	return pq
}

func (h *HNSW[T]) efSearchValue(n int) int {
	if h.ef > 0 {
		return mathutil.Max(h.ef, n)
	}
	return mathutil.Max(h.efConstruction, n)
}
