// Copyright 2022 gorse Project Authors
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

package heap

import (
	"cmp"
	"container/heap"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
)

type Elem[E cmp.Ordered, W cmp.Ordered] struct {
	Value  E
	Weight W
}

// _heap orders elements by weight. Equal weights are ordered by value so that
// the pop order never depends on insertion order.
type _heap[T cmp.Ordered, W cmp.Ordered] struct {
	elems []Elem[T, W]
	less  func(a, b Elem[T, W]) bool
}

func ascending[T cmp.Ordered, W cmp.Ordered](a, b Elem[T, W]) bool {
	if a.Weight != b.Weight {
		return a.Weight < b.Weight
	}
	return a.Value < b.Value
}

func descending[T cmp.Ordered, W cmp.Ordered](a, b Elem[T, W]) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	return a.Value > b.Value
}

func (e *_heap[T, W]) Len() int {
	return len(e.elems)
}

func (e *_heap[T, W]) Less(i, j int) bool {
	return e.less(e.elems[i], e.elems[j])
}

func (e *_heap[T, W]) Swap(i, j int) {
	e.elems[i], e.elems[j] = e.elems[j], e.elems[i]
}

func (e *_heap[T, W]) Push(x interface{}) {
	e.elems = append(e.elems, x.(Elem[T, W]))
}

func (e *_heap[T, W]) Pop() interface{} {
	old := e.elems
	item := old[len(old)-1]
	e.elems = old[:len(old)-1]
	return item
}

// PriorityQueue is a heap of int32 ids weighted by float32 distances.
type PriorityQueue struct {
	_heap[int32, float32]
	desc   bool
	lookup mapset.Set[int32]
}

// NewPriorityQueue initializes an empty priority queue. The smallest weight is
// popped first unless desc is set.
func NewPriorityQueue(desc bool) *PriorityQueue {
	pq := &PriorityQueue{desc: desc, lookup: mapset.NewThreadUnsafeSet[int32]()}
	if desc {
		pq.less = descending[int32, float32]
	} else {
		pq.less = ascending[int32, float32]
	}
	return pq
}

// Push inserts a new element into the queue. No action is performed on duplicate elements.
func (p *PriorityQueue) Push(v int32, weight float32) {
	if math32.IsNaN(weight) {
		panic("NaN weight is forbidden")
	}
	if p.lookup.Contains(v) {
		return
	}
	heap.Push(&p._heap, Elem[int32, float32]{Value: v, Weight: weight})
	p.lookup.Add(v)
}

// Pop removes the element with the highest priority from the queue and returns it.
func (p *PriorityQueue) Pop() (int32, float32) {
	item := heap.Pop(&p._heap).(Elem[int32, float32])
	p.lookup.Remove(item.Value)
	return item.Value, item.Weight
}

func (p *PriorityQueue) Peek() (int32, float32) {
	return p.elems[0].Value, p.elems[0].Weight
}

func (p *PriorityQueue) Values() []int32 {
	values := make([]int32, 0, p.Len())
	for _, elem := range p.elems {
		values = append(values, elem.Value)
	}
	return values
}

func (p *PriorityQueue) Elems() []Elem[int32, float32] {
	return p.elems
}

func (p *PriorityQueue) Clone() *PriorityQueue {
	pq := NewPriorityQueue(p.desc)
	pq.elems = make([]Elem[int32, float32], p.Len())
	copy(pq.elems, p.elems)
	pq.lookup = p.lookup.Clone()
	return pq
}

// Reverse returns a copy of the queue with the opposite order.
func (p *PriorityQueue) Reverse() *PriorityQueue {
	pq := NewPriorityQueue(!p.desc)
	pq.elems = make([]Elem[int32, float32], 0, p.Len())
	for _, elem := range p.elems {
		pq.Push(elem.Value, elem.Weight)
	}
	return pq
}
