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

package knn

import (
	"time"

	"github.com/cortexeng/cortex/base/log"
	"github.com/cortexeng/cortex/common/parallel"
	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/dataset"
	"go.uber.org/zap"
)

// DenseEngine keeps the full users x users similarity matrix.
type DenseEngine struct {
	snapshot
	similarity Similarity
	jobs       int
	matrix     [][]float64
	empty      []bool
}

func NewDenseEngine(similarity Similarity, jobs int) *DenseEngine {
	return &DenseEngine{similarity: similarity, jobs: jobs}
}

func (e *DenseEngine) Name() string {
	return config.EngineDense
}

func (e *DenseEngine) IsFitted() bool {
	return e.fitted()
}

func (e *DenseEngine) IsStale() bool {
	return e.stale()
}

func (e *DenseEngine) reset() {
	e.snapshot = snapshot{}
	e.matrix = nil
	e.empty = nil
}

// Fit computes the upper triangle in parallel and mirrors it. Each cell is
// written by exactly one worker.
func (e *DenseEngine) Fit(store *dataset.RatingStore) error {
	start := time.Now()
	n := store.CountUsers()
	matrix := make([][]float64, n)
	empty := make([]bool, n)
	userIds := store.UserIds()
	for i := range matrix {
		matrix[i] = make([]float64, n)
		empty[i] = store.Row(int32(i)).Len() == 0
	}
	parallel.For(n, e.jobs, func(i int) {
		a := store.Row(int32(i))
		matrix[i][i] = e.similarity(a, a)
		for j := i + 1; j < n; j++ {
			s := e.similarity(a, store.Row(int32(j)))
			matrix[i][j] = s
			matrix[j][i] = s
		}
	})
	e.matrix = matrix
	e.empty = empty
	e.snapshot = snapshot{store: store, version: store.Version(), userIds: userIds}
	log.Logger().Debug("fit dense user similarity",
		zap.Int("n_users", n),
		zap.Int("n_jobs", e.jobs),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (e *DenseEngine) KNearest(userId, k int) []Neighbor {
	row, ok := e.row(userId)
	if !ok || e.empty[row] || k <= 0 {
		return nil
	}
	similarities := e.matrix[row]
	return topK(k, len(similarities), func(j int) (Neighbor, bool) {
		if j == int(row) {
			return Neighbor{}, false
		}
		return Neighbor{UserId: e.userIds[j], Similarity: similarities[j]}, true
	})
}
