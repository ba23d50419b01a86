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
	"math"
	"math/rand"

	"github.com/cortexeng/cortex/dataset"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MAE means Mean Absolute Error.
func MAE(truth, prediction []float64) float64 {
	if len(truth) == 0 {
		return math.NaN()
	}
	diff := make([]float64, len(truth))
	floats.SubTo(diff, truth, prediction)
	for i := range diff {
		diff[i] = math.Abs(diff[i])
	}
	return stat.Mean(diff, nil)
}

// RMSE means Root Mean Square Error.
func RMSE(truth, prediction []float64) float64 {
	if len(truth) == 0 {
		return math.NaN()
	}
	diff := make([]float64, len(truth))
	floats.SubTo(diff, truth, prediction)
	return math.Sqrt(floats.Dot(diff, diff) / float64(len(diff)))
}

// PrecisionAtK is the fraction of relevant items among the top k recommended items.
//
//	\frac{|relevant \cap retrieved_{1..k}|}{k}
func PrecisionAtK(relevant, recommended []int, k int) float64 {
	if k <= 0 {
		return 0
	}
	return float64(hits(relevant, recommended, k)) / float64(k)
}

// RecallAtK is the fraction of relevant items found in the top k recommended items.
//
//	\frac{|relevant \cap retrieved_{1..k}|}{|relevant|}
func RecallAtK(relevant, recommended []int, k int) float64 {
	targets := mapset.NewThreadUnsafeSet(relevant...)
	if targets.Cardinality() == 0 {
		return 0
	}
	return float64(hits(relevant, recommended, k)) / float64(targets.Cardinality())
}

func hits(relevant, recommended []int, k int) int {
	if len(recommended) > k {
		recommended = recommended[:k]
	}
	targets := mapset.NewThreadUnsafeSet(relevant...)
	return targets.Intersect(mapset.NewThreadUnsafeSet(recommended...)).Cardinality()
}

// Rating is a single (user, movie, rating) cell.
type Rating struct {
	UserId  int
	MovieId int
	Rating  float64
}

// Split holds out a random fraction of the ratings of every user. The train
// store keeps every user and movie of the source, rated or not.
func Split(store *dataset.RatingStore, testRatio float64, seed int64) (*dataset.RatingStore, []Rating, error) {
	if testRatio < 0 || testRatio >= 1 {
		return nil, nil, errors.NotValidf("test ratio %v", testRatio)
	}
	rng := rand.New(rand.NewSource(seed))
	train := dataset.NewRatingStore(store.Bound())
	for _, userId := range store.UserIds() {
		train.AddUser(userId)
	}
	for _, movieId := range store.MovieIds() {
		train.AddMovie(movieId)
	}
	var test []Rating
	for _, userId := range store.UserIds() {
		row, _ := store.RowVector(userId)
		var err error
		row.ForEach(func(col int32, rating float64) {
			movieId := store.MovieId(col)
			if row.Len() > 1 && rng.Float64() < testRatio {
				test = append(test, Rating{UserId: userId, MovieId: movieId, Rating: rating})
				return
			}
			if err == nil {
				err = train.Put(userId, movieId, rating)
			}
		})
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
	}
	return train, test, nil
}
