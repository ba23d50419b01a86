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
	"testing"

	"github.com/cortexeng/cortex/dataset"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestMAE(t *testing.T) {
	assert.InDelta(t, 0.5, MAE([]float64{1, 2, 3, 4}, []float64{1.5, 2.5, 2.5, 3.5}), 1e-12)
	assert.True(t, math.IsNaN(MAE(nil, nil)))
}

func TestRMSE(t *testing.T) {
	assert.InDelta(t, math.Sqrt(2.5), RMSE([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.True(t, math.IsNaN(RMSE(nil, nil)))
}

func TestPrecisionAtK(t *testing.T) {
	assert.InDelta(t, 2.0/3, PrecisionAtK([]int{1, 2, 3}, []int{1, 9, 3, 2}, 3), 1e-12)
	assert.Equal(t, 0.0, PrecisionAtK([]int{1}, []int{1}, 0))
}

func TestRecallAtK(t *testing.T) {
	assert.InDelta(t, 0.5, RecallAtK([]int{1, 2, 3, 4}, []int{1, 9, 3, 2}, 3), 1e-12)
	assert.Equal(t, 0.0, RecallAtK(nil, []int{1}, 3))
}

func TestSplit(t *testing.T) {
	store := randomStore(t, 50, 30, 0.3, 4)
	train, test, err := Split(store, 0.2, 0)
	assert.NoError(t, err)
	assert.Equal(t, store.CountUsers(), train.CountUsers())
	assert.Equal(t, store.CountMovies(), train.CountMovies())
	assert.Equal(t, store.CountRatings(), train.CountRatings()+len(test))
	assert.NotEmpty(t, test)
	for _, rating := range test {
		_, ok := train.Get(rating.UserId, rating.MovieId)
		assert.False(t, ok)
		r, ok := store.Get(rating.UserId, rating.MovieId)
		assert.True(t, ok)
		assert.Equal(t, r, rating.Rating)
	}
	// same seed, same split
	_, again, err := Split(store, 0.2, 0)
	assert.NoError(t, err)
	assert.Equal(t, test, again)

	_, _, err = Split(store, 1, 0)
	assert.True(t, errors.IsNotValid(err))
	_, _, err = Split(dataset.NewRatingStore(dataset.DefaultBound), 0.5, 0)
	assert.NoError(t, err)
}
