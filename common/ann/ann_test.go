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
	"testing"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

const (
	trainSize = 1000
	testSize  = 100
	dimension = 16
)

func euclidean(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += (a[i] - b[i]) * (a[i] - b[i])
	}
	return math32.Sqrt(sum)
}

func randomVectors(rng *rand.Rand, n int) [][]float32 {
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = make([]float32, dimension)
		for j := range vectors[i] {
			vectors[i][j] = rng.Float32()
		}
	}
	return vectors
}

func recall(gt, pred []lo.Tuple2[int, float32]) float64 {
	s := mapset.NewSet[int]()
	for _, pair := range gt {
		s.Add(pair.A)
	}
	hit := 0
	for _, pair := range pred {
		if s.Contains(pair.A) {
			hit++
		}
	}
	return float64(hit) / float64(len(gt))
}

func TestHNSW(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	train := randomVectors(rng, trainSize)
	test := randomVectors(rng, testSize)

	bf := NewBruteforce(euclidean)
	hnsw := NewHNSW(euclidean, WithMaxConnection(16), WithEFConstruction(100), WithSeed(1))
	for _, v := range train {
		bf.Add(v)
		hnsw.Add(v)
	}
	assert.Equal(t, trainSize, hnsw.Len())

	var total float64
	for _, q := range test {
		gt := bf.SearchVector(q, 10)
		pred := hnsw.SearchVector(q, 10)
		assert.Len(t, pred, 10)
		total += recall(gt, pred)
	}
	assert.Greater(t, total/testSize, 0.9)
}

func TestHNSWDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	train := randomVectors(rng, 300)
	build := func() *HNSW[[]float32] {
		h := NewHNSW(euclidean, WithMaxConnection(8), WithSeed(3))
		for _, v := range train {
			h.Add(v)
		}
		return h
	}
	a, b := build(), build()
	for i := 0; i < 20; i++ {
		ra, err := a.SearchIndex(i, 5)
		assert.NoError(t, err)
		rb, err := b.SearchIndex(i, 5)
		assert.NoError(t, err)
		assert.Equal(t, ra, rb)
		// the query itself is the nearest
		assert.Equal(t, i, ra[0].A)
	}
}

func TestHNSWSearchIndexOutOfRange(t *testing.T) {
	h := NewHNSW(euclidean)
	_, err := h.SearchIndex(0, 1)
	assert.Error(t, err)
	assert.Empty(t, h.SearchVector([]float32{0}, 3))
}
