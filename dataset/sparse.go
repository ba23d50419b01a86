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
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SparseVector stores (index, value) pairs sorted by index.
type SparseVector struct {
	Indices []int32
	Values  []float64
}

func NewSparseVector() *SparseVector {
	return &SparseVector{}
}

// Len returns the number of present values.
func (vec *SparseVector) Len() int {
	if vec == nil {
		return 0
	}
	return len(vec.Indices)
}

func (vec *SparseVector) search(index int32) int {
	return sort.Search(len(vec.Indices), func(i int) bool {
		return vec.Indices[i] >= index
	})
}

// Set inserts or overwrites a value. It returns true if the index was absent.
func (vec *SparseVector) Set(index int32, value float64) bool {
	i := vec.search(index)
	if i < len(vec.Indices) && vec.Indices[i] == index {
		vec.Values[i] = value
		return false
	}
	vec.Indices = append(vec.Indices, 0)
	vec.Values = append(vec.Values, 0)
	copy(vec.Indices[i+1:], vec.Indices[i:])
	copy(vec.Values[i+1:], vec.Values[i:])
	vec.Indices[i] = index
	vec.Values[i] = value
	return true
}

func (vec *SparseVector) Get(index int32) (float64, bool) {
	if vec == nil {
		return 0, false
	}
	i := vec.search(index)
	if i < len(vec.Indices) && vec.Indices[i] == index {
		return vec.Values[i], true
	}
	return 0, false
}

// ForEach iterates values in index order.
func (vec *SparseVector) ForEach(f func(index int32, value float64)) {
	for i := range vec.Indices {
		f(vec.Indices[i], vec.Values[i])
	}
}

// ForIntersection iterates values present in both vectors in linear time.
func (vec *SparseVector) ForIntersection(other *SparseVector, f func(index int32, a, b float64)) {
	i, j := 0, 0
	for i < vec.Len() && j < other.Len() {
		if vec.Indices[i] == other.Indices[j] {
			f(vec.Indices[i], vec.Values[i], other.Values[j])
			i++
			j++
		} else if vec.Indices[i] < other.Indices[j] {
			i++
		} else {
			j++
		}
	}
}

// ForUnion iterates the union of indices in order. Absent values are zero.
func (vec *SparseVector) ForUnion(other *SparseVector, f func(index int32, a, b float64)) {
	i, j := 0, 0
	for i < vec.Len() || j < other.Len() {
		switch {
		case j >= other.Len() || (i < vec.Len() && vec.Indices[i] < other.Indices[j]):
			f(vec.Indices[i], vec.Values[i], 0)
			i++
		case i >= vec.Len() || other.Indices[j] < vec.Indices[i]:
			f(other.Indices[j], 0, other.Values[j])
			j++
		default:
			f(vec.Indices[i], vec.Values[i], other.Values[j])
			i++
			j++
		}
	}
}

// Norm returns the euclidean norm of present values.
func (vec *SparseVector) Norm() float64 {
	if vec.Len() == 0 {
		return 0
	}
	return floats.Norm(vec.Values, 2)
}

// Mean returns the mean of present values or NaN for an empty vector.
func (vec *SparseVector) Mean() float64 {
	if vec.Len() == 0 {
		return math.NaN()
	}
	return stat.Mean(vec.Values, nil)
}

// Dot returns the dot product with another vector.
func (vec *SparseVector) Dot(other *SparseVector) float64 {
	var sum float64
	vec.ForIntersection(other, func(_ int32, a, b float64) {
		sum += a * b
	})
	return sum
}

// Clone returns a deep copy.
func (vec *SparseVector) Clone() *SparseVector {
	return &SparseVector{
		Indices: append([]int32(nil), vec.Indices...),
		Values:  append([]float64(nil), vec.Values...),
	}
}
