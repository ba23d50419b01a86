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
	"sort"

	"github.com/juju/errors"
)

// ErrInvalidRating is returned when a rating falls outside the rating bound.
var ErrInvalidRating = errors.NotValidf("rating")

// Bound is a closed interval of valid ratings.
type Bound struct {
	Min float64
	Max float64
}

// DefaultBound is the 1 to 5 star scale.
var DefaultBound = Bound{Min: 1, Max: 5}

// Contains checks whether a rating is valid. NaN and 0 are never valid.
func (b Bound) Contains(r float64) bool {
	return r != 0 && r >= b.Min && r <= b.Max
}

// Clip clamps a value into the bound.
func (b Bound) Clip(r float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, r))
}

// RatingStore is a sparse users x movies matrix of ratings. Rows and columns
// are allocated for unknown ids on first use and never removed. Every mutation
// increases Version.
//
// RatingStore is not safe for concurrent use. The owner serializes writers
// against readers.
type RatingStore struct {
	bound   Bound
	users   *FreqDict
	movies  *FreqDict
	rows    []*SparseVector // row -> (column, rating)
	raters  [][]int32       // column -> sorted rows
	sums    []float64       // column -> sum of ratings
	count   int
	version uint64
}

// NewRatingStore creates an empty store.
func NewRatingStore(bound Bound) *RatingStore {
	return &RatingStore{
		bound:  bound,
		users:  NewFreqDict(),
		movies: NewFreqDict(),
	}
}

// NewRatingStoreFromMatrix builds a store from a dense matrix. Row i is user i,
// column j is movie j and zero means unrated. Every row and column is
// registered even when it holds no rating.
func NewRatingStoreFromMatrix(matrix [][]float64, bound Bound) (*RatingStore, error) {
	store := NewRatingStore(bound)
	for i, row := range matrix {
		store.AddUser(i)
		for j := range row {
			store.AddMovie(j)
		}
	}
	for i, row := range matrix {
		for j, r := range row {
			if r == 0 {
				continue
			}
			if err := store.Put(i, j, r); err != nil {
				return nil, errors.Trace(err)
			}
		}
	}
	return store, nil
}

func (s *RatingStore) Bound() Bound {
	return s.bound
}

func (s *RatingStore) Version() uint64 {
	return s.version
}

// AddUser registers a user without ratings.
func (s *RatingStore) AddUser(userId int) int32 {
	if pos := s.users.Lookup(userId); pos != NotId {
		return pos
	}
	pos := s.users.Id(userId)
	s.rows = append(s.rows, NewSparseVector())
	s.version++
	return pos
}

// AddMovie registers a movie without ratings.
func (s *RatingStore) AddMovie(movieId int) int32 {
	if pos := s.movies.Lookup(movieId); pos != NotId {
		return pos
	}
	pos := s.movies.Id(movieId)
	s.raters = append(s.raters, nil)
	s.sums = append(s.sums, 0)
	s.version++
	return pos
}

// Put stores a rating, overwriting any previous rating of the pair. A rating
// outside the bound is rejected and leaves the store untouched.
func (s *RatingStore) Put(userId, movieId int, rating float64) error {
	if !s.bound.Contains(rating) {
		return errors.Annotatef(ErrInvalidRating, "user %d movie %d rating %v out of [%v, %v]",
			userId, movieId, rating, s.bound.Min, s.bound.Max)
	}
	row := s.AddUser(userId)
	col := s.AddMovie(movieId)
	old, exist := s.rows[row].Get(col)
	if exist && old == rating {
		return nil
	}
	s.rows[row].Set(col, rating)
	if exist {
		s.sums[col] += rating - old
	} else {
		s.sums[col] += rating
		s.insertRater(col, row)
		s.users.inc(row)
		s.movies.inc(col)
		s.count++
	}
	s.version++
	return nil
}

func (s *RatingStore) insertRater(col, row int32) {
	raters := s.raters[col]
	i := sort.Search(len(raters), func(i int) bool { return raters[i] >= row })
	raters = append(raters, 0)
	copy(raters[i+1:], raters[i:])
	raters[i] = row
	s.raters[col] = raters
}

// Get returns the rating of a user for a movie.
func (s *RatingStore) Get(userId, movieId int) (float64, bool) {
	row, col := s.users.Lookup(userId), s.movies.Lookup(movieId)
	if row == NotId || col == NotId {
		return 0, false
	}
	return s.rows[row].Get(col)
}

func (s *RatingStore) HasUser(userId int) bool {
	return s.users.Contains(userId)
}

func (s *RatingStore) HasMovie(movieId int) bool {
	return s.movies.Contains(movieId)
}

// UserIndex returns the row of a user or NotId.
func (s *RatingStore) UserIndex(userId int) int32 {
	return s.users.Lookup(userId)
}

// UserId returns the user stored at a row.
func (s *RatingStore) UserId(row int32) int {
	return s.users.External(row)
}

// MovieId returns the movie stored at a column.
func (s *RatingStore) MovieId(col int32) int {
	return s.movies.External(col)
}

// Row returns the ratings of a row keyed by column. The vector is owned by the store.
func (s *RatingStore) Row(row int32) *SparseVector {
	return s.rows[row]
}

// RowVector returns the ratings of a user keyed by column.
func (s *RatingStore) RowVector(userId int) (*SparseVector, bool) {
	row := s.users.Lookup(userId)
	if row == NotId {
		return nil, false
	}
	return s.rows[row], true
}

// ColumnRaters returns the users who rated a movie in row order.
func (s *RatingStore) ColumnRaters(movieId int) []int {
	col := s.movies.Lookup(movieId)
	if col == NotId {
		return nil
	}
	users := make([]int, len(s.raters[col]))
	for i, row := range s.raters[col] {
		users[i] = s.users.External(row)
	}
	return users
}

// MovieStats returns the sum and the number of present ratings of a movie.
func (s *RatingStore) MovieStats(movieId int) (float64, int) {
	col := s.movies.Lookup(movieId)
	if col == NotId {
		return 0, 0
	}
	return s.sums[col], s.movies.Freq(col)
}

// MovieMean returns the mean of present ratings of a movie.
func (s *RatingStore) MovieMean(movieId int) (float64, bool) {
	sum, n := s.MovieStats(movieId)
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// UserIds returns users in row order.
func (s *RatingStore) UserIds() []int {
	return append([]int(nil), s.users.is...)
}

// MovieIds returns movies in column order.
func (s *RatingStore) MovieIds() []int {
	return append([]int(nil), s.movies.is...)
}

func (s *RatingStore) CountUsers() int {
	return s.users.Count()
}

func (s *RatingStore) CountMovies() int {
	return s.movies.Count()
}

func (s *RatingStore) CountRatings() int {
	return s.count
}

// CountUserRatings returns the number of ratings given by a user.
func (s *RatingStore) CountUserRatings(userId int) int {
	row := s.users.Lookup(userId)
	if row == NotId {
		return 0
	}
	return s.users.Freq(row)
}

// ForEach iterates all ratings in row order then column order.
func (s *RatingStore) ForEach(f func(userId, movieId int, rating float64)) {
	for row, vec := range s.rows {
		userId := s.users.External(int32(row))
		vec.ForEach(func(col int32, rating float64) {
			f(userId, s.movies.External(col), rating)
		})
	}
}
