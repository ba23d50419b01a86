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
	"github.com/cortexeng/cortex/common/ann"
	"github.com/cortexeng/cortex/common/heap"
	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/dataset"
	"github.com/juju/errors"
)

// Neighbor is a user and its similarity to the query user.
type Neighbor struct {
	UserId     int
	Similarity float64
}

// Engine finds the most similar users of a user.
type Engine interface {
	// Fit recomputes similarities of all rows in the store. Fitting the same
	// store twice gives identical results.
	Fit(store *dataset.RatingStore) error
	// KNearest returns up to k neighbors of a user, excluding the user, by
	// similarity descending then user id ascending. The list is empty if the
	// engine is not fitted, the user was added after the last fit or the
	// user has no ratings.
	KNearest(userId, k int) []Neighbor
	// IsFitted reports whether Fit has completed at least once.
	IsFitted() bool
	// IsStale reports whether the store changed since the last fit.
	IsStale() bool
	// Name of the engine.
	Name() string
}

// NewEngine creates an engine from the model configuration.
func NewEngine(cfg config.ModelConfig) (Engine, error) {
	similarity, err := NewSimilarity(cfg.Metric)
	if err != nil {
		return nil, errors.Trace(err)
	}
	jobs := max(cfg.FitJobs, 1)
	var opts []ann.Option
	if cfg.IndexMaxConnection > 1 {
		opts = append(opts, ann.WithMaxConnection(cfg.IndexMaxConnection))
	}
	if cfg.IndexEFConstruction > 0 {
		opts = append(opts, ann.WithEFConstruction(cfg.IndexEFConstruction))
	}
	if cfg.IndexEF > 0 {
		opts = append(opts, ann.WithEF(cfg.IndexEF))
	}
	switch cfg.Engine {
	case config.EngineDense:
		return NewDenseEngine(similarity, jobs), nil
	case config.EngineIndex:
		return NewIndexEngine(similarity, cfg.Seed, opts...), nil
	case config.EngineAuto, "":
		return &AutoEngine{
			dense:    NewDenseEngine(similarity, jobs),
			index:    NewIndexEngine(similarity, cfg.Seed, opts...),
			maxUsers: cfg.DenseMaxUsers,
		}, nil
	}
	return nil, errors.NotSupportedf("engine %q", cfg.Engine)
}

// snapshot is the part of the store captured by a fit.
type snapshot struct {
	store   *dataset.RatingStore
	version uint64
	userIds []int // row -> user id
}

func (s *snapshot) fitted() bool {
	return s.store != nil
}

func (s *snapshot) stale() bool {
	return s.store == nil || s.store.Version() != s.version
}

// row returns the row of a user if the user was present at the last fit.
func (s *snapshot) row(userId int) (int32, bool) {
	if s.store == nil {
		return 0, false
	}
	row := s.store.UserIndex(userId)
	if row == dataset.NotId || int(row) >= len(s.userIds) {
		return 0, false
	}
	return row, true
}

func topK(k int, n int, f func(i int) (Neighbor, bool)) []Neighbor {
	filter := heap.NewTopKFilter[int, float64](k)
	for i := 0; i < n; i++ {
		if neighbor, ok := f(i); ok {
			filter.Push(neighbor.UserId, neighbor.Similarity)
		}
	}
	elems := filter.PopAll()
	neighbors := make([]Neighbor, len(elems))
	for i, elem := range elems {
		neighbors[i] = Neighbor{UserId: elem.Value, Similarity: elem.Weight}
	}
	return neighbors
}

// AutoEngine fits a dense engine for small stores and an index engine otherwise.
type AutoEngine struct {
	dense    *DenseEngine
	index    *IndexEngine
	maxUsers int
	current  Engine
}

func (e *AutoEngine) Fit(store *dataset.RatingStore) error {
	if store.CountUsers() <= e.maxUsers {
		e.current = e.dense
		e.index.reset()
	} else {
		e.current = e.index
		e.dense.reset()
	}
	return e.current.Fit(store)
}

func (e *AutoEngine) KNearest(userId, k int) []Neighbor {
	if e.current == nil {
		return nil
	}
	return e.current.KNearest(userId, k)
}

func (e *AutoEngine) IsFitted() bool {
	return e.current != nil && e.current.IsFitted()
}

func (e *AutoEngine) IsStale() bool {
	return e.current == nil || e.current.IsStale()
}

func (e *AutoEngine) Name() string {
	if e.current == nil {
		return config.EngineAuto
	}
	return e.current.Name()
}
