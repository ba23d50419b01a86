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
	"testing"
	"time"

	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/storage/data"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestRecommend(t *testing.T) {
	store := newFixtureStore(t, fixture)
	predictor := newTestPredictor(t, store, nil, newTestConfig())
	recommender := NewRecommender(store, predictor, nil, mapset.NewSet(0, 1, 2, 3, 4), nil)

	recommendations, err := recommender.Recommend(0, 10)
	assert.NoError(t, err)
	if assert.Len(t, recommendations, 1) {
		assert.Equal(t, 2, recommendations[0].MovieId)
		assert.InDelta(t, 3.0, recommendations[0].PredictedRating, 1e-9)
		assert.Equal(t, recommendations[0].PredictedRating, recommendations[0].Score)
	}

	sim30 := 9 / (math.Sqrt(17) * math.Sqrt(35))
	sim31 := 8 / (math.Sqrt(17) * math.Sqrt(26))
	sim32 := 21 / (math.Sqrt(17) * math.Sqrt(27))
	sim34 := 16 / (math.Sqrt(17) * math.Sqrt(42))
	recommendations, err = recommender.Recommend(3, 10)
	assert.NoError(t, err)
	if assert.Len(t, recommendations, 2) {
		assert.Equal(t, 2, recommendations[0].MovieId)
		assert.InDelta(t, (3*sim31+5*sim34)/(sim31+sim34), recommendations[0].PredictedRating, 1e-9)
		assert.Equal(t, 1, recommendations[1].MovieId)
		assert.InDelta(t, (3*sim30+sim32+sim34)/(sim30+sim32+sim34), recommendations[1].PredictedRating, 1e-9)
	}

	// truncate
	recommendations, err = recommender.Recommend(3, 1)
	assert.NoError(t, err)
	if assert.Len(t, recommendations, 1) {
		assert.Equal(t, 2, recommendations[0].MovieId)
	}
	recommendations, err = recommender.Recommend(3, 0)
	assert.NoError(t, err)
	assert.Empty(t, recommendations)
	assert.NotNil(t, recommendations)
}

func TestRecommendUnknownUser(t *testing.T) {
	store := newFixtureStore(t, fixture)
	store.AddUser(5)
	predictor := newTestPredictor(t, store, nil, newTestConfig())
	recommender := NewRecommender(store, predictor, nil, mapset.NewSet(0, 1, 2, 3, 4), nil)
	// registered without ratings
	_, err := recommender.Recommend(5, 10)
	assert.True(t, errors.IsNotFound(err))
	assert.ErrorIs(t, err, ErrUnknownUser)
	// never seen
	_, err = recommender.Recommend(100, 10)
	assert.True(t, errors.IsNotFound(err))
}

func TestRecommendTies(t *testing.T) {
	store := newFixtureStore(t, [][]float64{
		{5, 0, 0, 0},
		{4, 4, 4, 4},
	})
	predictor := newTestPredictor(t, store, nil, newTestConfig())
	recommender := NewRecommender(store, predictor, nil, mapset.NewSet(0, 1), nil)
	recommendations, err := recommender.Recommend(0, 10)
	assert.NoError(t, err)
	assert.Equal(t, []Recommendation{
		{MovieId: 1, PredictedRating: 4, Score: 4},
		{MovieId: 2, PredictedRating: 4, Score: 4},
		{MovieId: 3, PredictedRating: 4, Score: 4},
	}, recommendations)
	recommendations, err = recommender.Recommend(0, 2)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2}, []int{recommendations[0].MovieId, recommendations[1].MovieId})
}

func TestRecommendSkipNoEstimate(t *testing.T) {
	matrix := append(append([][]float64{}, fixture...), []float64{0, 0, 0, 0})
	store := newFixtureStore(t, matrix)
	predictor := newTestPredictor(t, store, nil, newTestConfig())
	recommender := NewRecommender(store, predictor, nil, mapset.NewSet(0, 1, 2, 3, 4, 5), nil)
	recommendations, err := recommender.Recommend(5, 10)
	assert.NoError(t, err)
	assert.Empty(t, recommendations)
}

func TestRecommendRerank(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := newFixtureStore(t, fixture)
	catalog := NewMovieCatalog()
	catalog.Add(data.Movie{MovieId: 1, Title: "Oppenheimer", Genres: []string{"Drama"}, Year: 2023})
	catalog.Add(data.Movie{MovieId: 2, Title: "Heat", Genres: []string{"Action", "Crime"}, Year: 1995})
	predictor := newTestPredictor(t, store, catalog, newTestConfig())

	reranker, err := NewReranker(config.RecommendConfig{RecencyWindow: 10}, func() time.Time { return now })
	assert.NoError(t, err)
	recommender := NewRecommender(store, predictor, catalog, mapset.NewSet(3), reranker)
	recommendations, err := recommender.Recommend(3, 10)
	assert.NoError(t, err)
	if assert.Len(t, recommendations, 2) {
		assert.Equal(t, 2, recommendations[0].MovieId)
		assert.Equal(t, recommendations[0].PredictedRating, recommendations[0].Score)
		assert.Equal(t, 1, recommendations[1].MovieId)
		assert.InDelta(t, recommendations[1].PredictedRating+0.9, recommendations[1].Score, 1e-9)
	}

	// expression reranker
	reranker, err = NewReranker(config.RecommendConfig{
		Score:  "predicted + 10 - age",
		Filter: `"Drama" in movie.Genres`,
	}, func() time.Time { return now })
	assert.NoError(t, err)
	recommender = NewRecommender(store, predictor, catalog, mapset.NewSet(3), reranker)
	recommendations, err = recommender.Recommend(3, 10)
	assert.NoError(t, err)
	if assert.Len(t, recommendations, 1) {
		assert.Equal(t, 1, recommendations[0].MovieId)
		assert.InDelta(t, recommendations[0].PredictedRating+9, recommendations[0].Score, 1e-9)
	}
}
