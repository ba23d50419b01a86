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
	"math"
	"math/rand"
	"testing"

	"github.com/cortexeng/cortex/dataset"
	"github.com/cortexeng/cortex/storage/data"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

// clusteredStore generates two groups of users rating disjoint halves of the movies.
func clusteredStore(t *testing.T, nUsers, nMovies int, seed int64) *dataset.RatingStore {
	rng := rand.New(rand.NewSource(seed))
	store := dataset.NewRatingStore(dataset.DefaultBound)
	for u := 0; u < nUsers; u++ {
		for m := 0; m < nMovies; m++ {
			if u%2 == m%2 && rng.Float64() < 0.4 {
				assert.NoError(t, store.Put(u, m, float64(4+rng.Intn(2))))
			}
		}
	}
	return store
}

func TestEvaluate(t *testing.T) {
	store := clusteredStore(t, 60, 40, 0)
	catalog := NewMovieCatalog()
	catalog.Add(data.Movie{MovieId: 0, Genres: []string{"Drama"}})
	score, err := Evaluate(store, catalog, newTestConfig(), 0.2, 10, 0)
	assert.NoError(t, err)
	assert.Greater(t, score.Count, 0)
	assert.Greater(t, score.Users, 0)
	assert.Equal(t, 10, score.TopK)
	assert.False(t, math.IsNaN(score.MAE))
	assert.Less(t, score.MAE, 1.0)
	assert.GreaterOrEqual(t, score.RMSE, score.MAE)
	assert.Greater(t, score.Precision, 0.0)
	assert.LessOrEqual(t, score.Precision, 1.0)
	assert.Greater(t, score.Recall, 0.0)
	assert.LessOrEqual(t, score.Recall, 1.0)

	// deterministic
	again, err := Evaluate(store, catalog, newTestConfig(), 0.2, 10, 0)
	assert.NoError(t, err)
	assert.Equal(t, score, again)
}

func TestEvaluateInvalid(t *testing.T) {
	store := clusteredStore(t, 10, 10, 0)
	_, err := Evaluate(store, nil, newTestConfig(), 1, 10, 0)
	assert.True(t, errors.IsNotValid(err))

	cfg := newTestConfig()
	cfg.Metric = "jaccard"
	_, err = Evaluate(store, nil, cfg, 0.2, 10, 0)
	assert.True(t, errors.IsNotSupported(err))
}
