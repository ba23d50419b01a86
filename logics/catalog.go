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
	"github.com/cortexeng/cortex/storage/data"
	mapset "github.com/deckarep/golang-set/v2"
)

// Catalog provides movie meta data.
type Catalog interface {
	GetMovie(movieId int) (data.Movie, bool)
	// GenreMovies returns movies sharing at least one genre with the given genres.
	GenreMovies(genres []string) []int
}

// MovieCatalog is an in-memory Catalog. It is not safe for concurrent writes.
type MovieCatalog struct {
	movies map[int]data.Movie
	genres map[string]mapset.Set[int]
}

func NewMovieCatalog() *MovieCatalog {
	return &MovieCatalog{
		movies: make(map[int]data.Movie),
		genres: make(map[string]mapset.Set[int]),
	}
}

// Add inserts or replaces a movie.
func (c *MovieCatalog) Add(movie data.Movie) {
	if old, exist := c.movies[movie.MovieId]; exist {
		for _, genre := range old.Genres {
			if set, ok := c.genres[genre]; ok {
				set.Remove(movie.MovieId)
			}
		}
	}
	c.movies[movie.MovieId] = movie
	for _, genre := range movie.Genres {
		set, ok := c.genres[genre]
		if !ok {
			set = mapset.NewThreadUnsafeSet[int]()
			c.genres[genre] = set
		}
		set.Add(movie.MovieId)
	}
}

func (c *MovieCatalog) Len() int {
	return len(c.movies)
}

func (c *MovieCatalog) GetMovie(movieId int) (data.Movie, bool) {
	movie, ok := c.movies[movieId]
	return movie, ok
}

func (c *MovieCatalog) GenreMovies(genres []string) []int {
	union := mapset.NewThreadUnsafeSet[int]()
	for _, genre := range genres {
		if set, ok := c.genres[genre]; ok {
			union = union.Union(set)
		}
	}
	return union.ToSlice()
}
