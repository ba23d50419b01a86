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
	"sort"
	"time"

	"github.com/cortexeng/cortex/base/log"
	"github.com/cortexeng/cortex/common/ann"
	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/dataset"
	"go.uber.org/zap"
)

// IndexEngine answers neighbor queries from an HNSW graph over user rows
// without materializing the similarity matrix. Candidates found in the graph
// are re-scored with the exact similarity.
type IndexEngine struct {
	snapshot
	similarity Similarity
	seed       int64
	options    []ann.Option
	index      *ann.HNSW[*dataset.SparseVector]
	rows       []*dataset.SparseVector // row -> copy of ratings at fit time
	positions  []int32                 // row -> position in the index
	rowOf      []int32                 // position in the index -> row
}

func NewIndexEngine(similarity Similarity, seed int64, opts ...ann.Option) *IndexEngine {
	return &IndexEngine{similarity: similarity, seed: seed, options: opts}
}

func (e *IndexEngine) Name() string {
	return config.EngineIndex
}

func (e *IndexEngine) IsFitted() bool {
	return e.fitted()
}

func (e *IndexEngine) IsStale() bool {
	return e.stale()
}

func (e *IndexEngine) reset() {
	e.snapshot = snapshot{}
	e.index = nil
	e.rows = nil
	e.positions = nil
	e.rowOf = nil
}

func (e *IndexEngine) distance(a, b *dataset.SparseVector) float32 {
	return float32(1 - e.similarity(a, b))
}

// Fit inserts non-empty rows into a new graph in row order.
func (e *IndexEngine) Fit(store *dataset.RatingStore) error {
	start := time.Now()
	n := store.CountUsers()
	index := ann.NewHNSW(e.distance, append([]ann.Option{ann.WithSeed(e.seed)}, e.options...)...)
	rows := make([]*dataset.SparseVector, n)
	positions := make([]int32, n)
	rowOf := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		rows[i] = store.Row(int32(i)).Clone()
		positions[i] = dataset.NotId
		if rows[i].Len() > 0 {
			positions[i] = int32(index.Add(rows[i]))
			rowOf = append(rowOf, int32(i))
		}
	}
	e.index = index
	e.rows = rows
	e.positions = positions
	e.rowOf = rowOf
	e.snapshot = snapshot{store: store, version: store.Version(), userIds: store.UserIds()}
	log.Logger().Debug("fit user similarity index",
		zap.Int("n_users", n),
		zap.Int("n_indexed", len(rowOf)),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (e *IndexEngine) KNearest(userId, k int) []Neighbor {
	row, ok := e.row(userId)
	if !ok || e.positions[row] == dataset.NotId || k <= 0 {
		return nil
	}
	query := e.rows[row]
	results, err := e.index.SearchIndex(int(e.positions[row]), k+1)
	if err != nil {
		log.Logger().Error("failed to search user similarity index", zap.Int("user_id", userId), zap.Error(err))
		return nil
	}
	neighbors := make([]Neighbor, 0, len(results))
	for _, result := range results {
		other := e.rowOf[result.A]
		if other == row {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			UserId:     e.userIds[other],
			Similarity: e.similarity(query, e.rows[other]),
		})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].UserId < neighbors[j].UserId
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}
