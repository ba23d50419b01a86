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

	"github.com/cortexeng/cortex/common/heap"
	"github.com/cortexeng/cortex/dataset"
	"github.com/cortexeng/cortex/storage/data"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
)

var ErrUnknownUser = errors.NotFoundf("user")

type Recommendation struct {
	MovieId         int     `json:"movie_id"`
	PredictedRating float64 `json:"predicted_rating"`
	Score           float64 `json:"score"`
}

// Recommender ranks movies a user has not rated by predicted ratings.
type Recommender struct {
	store     *dataset.RatingStore
	predictor *Predictor
	catalog   Catalog
	known     mapset.Set[int]
	reranker  Reranker
}

// NewRecommender creates a recommender. Only users in known get recommendations.
// The catalog and the reranker are optional.
func NewRecommender(store *dataset.RatingStore, predictor *Predictor, catalog Catalog, known mapset.Set[int], reranker Reranker) *Recommender {
	return &Recommender{
		store:     store,
		predictor: predictor,
		catalog:   catalog,
		known:     known,
		reranker:  reranker,
	}
}

// Recommend returns up to n movies by score descending then movie id ascending.
func (r *Recommender) Recommend(userId, n int) ([]Recommendation, error) {
	if !r.known.Contains(userId) {
		return nil, errors.Annotatef(ErrUnknownUser, "user_id=%d", userId)
	}
	if n <= 0 {
		return []Recommendation{}, nil
	}
	predicted := make(map[int]float64)
	filter := heap.NewTopKFilter[int, float64](n)
	for _, movieId := range r.store.MovieIds() {
		if _, rated := r.store.Get(userId, movieId); rated {
			continue
		}
		prediction := r.predictor.Predict(userId, movieId)
		if !prediction.IsEstimate() {
			continue
		}
		score, keep := r.score(prediction.Value, movieId)
		if !keep || math.IsNaN(score) {
			continue
		}
		predicted[movieId] = prediction.Value
		filter.Push(movieId, score)
	}
	elems := filter.PopAll()
	recommendations := make([]Recommendation, len(elems))
	for i, elem := range elems {
		recommendations[i] = Recommendation{
			MovieId:         elem.Value,
			PredictedRating: predicted[elem.Value],
			Score:           elem.Weight,
		}
	}
	return recommendations, nil
}

func (r *Recommender) score(predicted float64, movieId int) (float64, bool) {
	if r.reranker == nil {
		return predicted, true
	}
	movie := data.Movie{MovieId: movieId}
	if r.catalog != nil {
		if m, ok := r.catalog.GetMovie(movieId); ok {
			movie = m
		}
	}
	return r.reranker.Rerank(predicted, movie)
}
