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

package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSparseVector(t *testing.T) {
	vec := NewSparseVector()
	assert.True(t, vec.Set(5, 1))
	assert.True(t, vec.Set(1, 2))
	assert.True(t, vec.Set(3, 3))
	assert.False(t, vec.Set(3, 4))
	assert.Equal(t, []int32{1, 3, 5}, vec.Indices)
	assert.Equal(t, []float64{2, 4, 1}, vec.Values)
	v, ok := vec.Get(3)
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)
	_, ok = vec.Get(2)
	assert.False(t, ok)
	assert.InDelta(t, math.Sqrt(21), vec.Norm(), 1e-12)
	assert.InDelta(t, 7.0/3, vec.Mean(), 1e-12)
	assert.True(t, math.IsNaN(NewSparseVector().Mean()))
	assert.Equal(t, 0.0, NewSparseVector().Norm())
}

func TestSparseVector_ForIntersection(t *testing.T) {
	a := &SparseVector{Indices: []int32{1, 2, 4, 8}, Values: []float64{1, 2, 4, 8}}
	b := &SparseVector{Indices: []int32{2, 3, 4, 9}, Values: []float64{20, 30, 40, 90}}
	var indices []int32
	a.ForIntersection(b, func(index int32, x, y float64) {
		indices = append(indices, index)
		assert.Equal(t, float64(index)*10, y)
		assert.Equal(t, float64(index), x)
	})
	assert.Equal(t, []int32{2, 4}, indices)
	assert.Equal(t, 200.0, a.Dot(b))
}

func TestSparseVector_ForUnion(t *testing.T) {
	a := &SparseVector{Indices: []int32{1, 4}, Values: []float64{1, 4}}
	b := &SparseVector{Indices: []int32{2, 4, 6}, Values: []float64{2, 40, 6}}
	var pairs [][3]float64
	a.ForUnion(b, func(index int32, x, y float64) {
		pairs = append(pairs, [3]float64{float64(index), x, y})
	})
	assert.Equal(t, [][3]float64{{1, 1, 0}, {2, 0, 2}, {4, 4, 40}, {6, 0, 6}}, pairs)
}

func TestFreqDict(t *testing.T) {
	d := NewFreqDict()
	assert.Equal(t, int32(0), d.Id(42))
	assert.Equal(t, int32(1), d.Id(7))
	assert.Equal(t, int32(0), d.Id(42))
	assert.Equal(t, 2, d.Count())
	assert.Equal(t, NotId, d.Lookup(8))
	assert.Equal(t, 7, d.External(1))
	d.inc(1)
	assert.Equal(t, 1, d.Freq(1))
	assert.Equal(t, 0, d.Freq(5))
}
