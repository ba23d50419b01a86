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

package logics

import (
	"math/rand"
	"slices"
	"sync"

	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/dataset"
)

// Fallback predicts ratings without neighbors. The base value is the mean
// rating of the movie, or the mean rating of movies sharing a genre with it,
// or the neutral rating. Uniform noise in [-jitter, jitter] is added to the
// base value before clipping.
type Fallback struct {
	store   *dataset.RatingStore
	catalog Catalog
	neutral float64
	jitter  float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewFallback(store *dataset.RatingStore, catalog Catalog, cfg config.ModelConfig) *Fallback {
	return &Fallback{
		store:   store,
		catalog: catalog,
		neutral: cfg.NeutralRating,
		jitter:  cfg.FallbackJitter,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (f *Fallback) Predict(movieId int) Prediction {
	value, reason := f.base(movieId)
	return Prediction{
		Value:  f.store.Bound().Clip(value + f.noise()),
		Reason: reason,
	}
}

func (f *Fallback) base(movieId int) (float64, Reason) {
	if mean, ok := f.store.MovieMean(movieId); ok {
		return mean, ItemMean
	}
	if f.catalog != nil {
		if movie, ok := f.catalog.GetMovie(movieId); ok && len(movie.Genres) > 0 {
			movieIds := f.catalog.GenreMovies(movie.Genres)
			slices.Sort(movieIds)
			var sum float64
			var count int
			for _, id := range movieIds {
				s, n := f.store.MovieStats(id)
				sum += s
				count += n
			}
			if count > 0 {
				return sum / float64(count), GenreMean
			}
		}
	}
	return f.neutral, Neutral
}

func (f *Fallback) noise() float64 {
	if f.jitter <= 0 {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return (2*f.rng.Float64() - 1) * f.jitter
}
