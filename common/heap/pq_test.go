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
	"sort"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestPriorityQueue(t *testing.T) {
	pq := NewPriorityQueue(false)
	elements := []int32{5, 3, 7, 8, 6, 2, 9}
	for _, e := range elements {
		pq.Push(e, float32(e))
	}
	assert.Equal(t, len(elements), pq.Len())
	assert.ElementsMatch(t, elements, pq.Values())
	assert.Equal(t, len(elements), len(pq.Elems()))

	// duplicates are ignored
	pq.Push(5, 100)
	assert.Equal(t, len(elements), pq.Len())

	cp := pq.Clone()
	assert.Equal(t, len(elements), cp.Len())

	sort.Slice(elements, func(i, j int) bool { return elements[i] < elements[j] })
	for _, e := range elements {
		value, weight := pq.Peek()
		assert.Equal(t, e, value)
		assert.Equal(t, e, int32(weight))
		value, weight = pq.Pop()
		assert.Equal(t, e, value)
		assert.Equal(t, e, int32(weight))
	}

	r := cp.Reverse()
	lo.Reverse(elements)
	for _, e := range elements {
		value, weight := r.Pop()
		assert.Equal(t, e, value)
		assert.Equal(t, e, int32(weight))
	}
}

func TestPriorityQueueTies(t *testing.T) {
	pq := NewPriorityQueue(false)
	pq.Push(4, 1)
	pq.Push(2, 1)
	pq.Push(3, 1)
	values := make([]int32, 0, 3)
	for pq.Len() > 0 {
		v, _ := pq.Pop()
		values = append(values, v)
	}
	assert.Equal(t, []int32{2, 3, 4}, values)
}

func TestPriorityQueueNaN(t *testing.T) {
	pq := NewPriorityQueue(true)
	assert.Panics(t, func() {
		pq.Push(1, float32(nan()))
	})
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}
