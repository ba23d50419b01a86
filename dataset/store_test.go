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

package dataset

import (
	"math"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestRatingStore_Put(t *testing.T) {
	store := NewRatingStore(DefaultBound)
	assert.NoError(t, store.Put(10, 100, 4))
	assert.NoError(t, store.Put(10, 200, 2))
	assert.NoError(t, store.Put(20, 100, 5))
	assert.Equal(t, 2, store.CountUsers())
	assert.Equal(t, 2, store.CountMovies())
	assert.Equal(t, 3, store.CountRatings())

	r, ok := store.Get(10, 100)
	assert.True(t, ok)
	assert.Equal(t, 4.0, r)
	_, ok = store.Get(20, 200)
	assert.False(t, ok)
	_, ok = store.Get(30, 100)
	assert.False(t, ok)

	// overwrite
	assert.NoError(t, store.Put(10, 100, 1))
	r, _ = store.Get(10, 100)
	assert.Equal(t, 1.0, r)
	assert.Equal(t, 3, store.CountRatings())
	mean, ok := store.MovieMean(100)
	assert.True(t, ok)
	assert.Equal(t, 3.0, mean)
}

func TestRatingStore_InvalidRating(t *testing.T) {
	store := NewRatingStore(DefaultBound)
	for _, r := range []float64{0, 0.5, 5.5, -1, math.NaN(), math.Inf(1)} {
		err := store.Put(1, 1, r)
		assert.True(t, errors.Is(err, ErrInvalidRating))
		assert.True(t, errors.IsNotValid(err))
	}
	// rejected writes leave the store untouched
	assert.Equal(t, 0, store.CountUsers())
	assert.Equal(t, 0, store.CountMovies())
	assert.Equal(t, uint64(0), store.Version())
	assert.NoError(t, store.Put(1, 1, 1))
	assert.NoError(t, store.Put(1, 2, 5))
}

func TestRatingStore_Positions(t *testing.T) {
	store := NewRatingStore(DefaultBound)
	assert.NoError(t, store.Put(7, 70, 3))
	assert.NoError(t, store.Put(5, 50, 3))
	assert.NoError(t, store.Put(9, 70, 3))
	assert.Equal(t, int32(0), store.UserIndex(7))
	assert.Equal(t, int32(1), store.UserIndex(5))
	assert.Equal(t, int32(2), store.UserIndex(9))
	assert.Equal(t, NotId, store.UserIndex(8))
	assert.Equal(t, 9, store.UserId(2))
	assert.Equal(t, []int{7, 5, 9}, store.UserIds())
	assert.Equal(t, []int{70, 50}, store.MovieIds())
	assert.Equal(t, []int{7, 9}, store.ColumnRaters(70))
	assert.Nil(t, store.ColumnRaters(60))
}

func TestRatingStore_ColumnRatersOrder(t *testing.T) {
	store := NewRatingStore(DefaultBound)
	store.AddUser(1)
	store.AddUser(2)
	store.AddUser(3)
	assert.NoError(t, store.Put(3, 10, 4))
	assert.NoError(t, store.Put(1, 10, 4))
	assert.NoError(t, store.Put(2, 10, 4))
	assert.Equal(t, []int{1, 2, 3}, store.ColumnRaters(10))
}

func TestRatingStore_Version(t *testing.T) {
	store := NewRatingStore(DefaultBound)
	v0 := store.Version()
	assert.NoError(t, store.Put(1, 1, 3))
	v1 := store.Version()
	assert.Greater(t, v1, v0)
	// same rating again is not a mutation
	assert.NoError(t, store.Put(1, 1, 3))
	assert.Equal(t, v1, store.Version())
	assert.NoError(t, store.Put(1, 1, 4))
	assert.Greater(t, store.Version(), v1)
	v2 := store.Version()
	store.AddUser(1)
	assert.Equal(t, v2, store.Version())
	store.AddUser(2)
	assert.Greater(t, store.Version(), v2)
}

func TestRatingStore_FromMatrix(t *testing.T) {
	store, err := NewRatingStoreFromMatrix([][]float64{
		{5, 0, 3},
		{0, 0, 0},
	}, DefaultBound)
	assert.NoError(t, err)
	assert.Equal(t, 2, store.CountUsers())
	assert.Equal(t, 3, store.CountMovies())
	assert.Equal(t, 2, store.CountRatings())
	row, ok := store.RowVector(1)
	assert.True(t, ok)
	assert.Equal(t, 0, row.Len())
	_, ok = store.MovieMean(1)
	assert.False(t, ok)
	assert.Equal(t, 0, store.CountUserRatings(1))
	assert.Equal(t, 2, store.CountUserRatings(0))

	_, err = NewRatingStoreFromMatrix([][]float64{{6}}, DefaultBound)
	assert.True(t, errors.IsNotValid(err))
}

func TestRatingStore_ForEach(t *testing.T) {
	store := NewRatingStore(DefaultBound)
	assert.NoError(t, store.Put(2, 20, 2))
	assert.NoError(t, store.Put(1, 10, 1))
	assert.NoError(t, store.Put(2, 10, 3))
	var got [][3]float64
	store.ForEach(func(userId, movieId int, rating float64) {
		got = append(got, [3]float64{float64(userId), float64(movieId), rating})
	})
	// row order, then column order
	assert.Equal(t, [][3]float64{{2, 20, 2}, {2, 10, 3}, {1, 10, 1}}, got)
}

func TestBound(t *testing.T) {
	b := Bound{Min: 1, Max: 5}
	assert.True(t, b.Contains(1))
	assert.True(t, b.Contains(5))
	assert.False(t, b.Contains(math.NaN()))
	// zero marks an absent cell even when the bound covers it
	assert.False(t, Bound{Min: -1, Max: 1}.Contains(0))
	assert.True(t, Bound{Min: -1, Max: 1}.Contains(-1))
	assert.Equal(t, 1.0, b.Clip(-3))
	assert.Equal(t, 5.0, b.Clip(7))
	assert.Equal(t, 2.5, b.Clip(2.5))
}
