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

package master

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/cortexeng/cortex/base"
	"github.com/cortexeng/cortex/base/log"
	"github.com/cortexeng/cortex/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const noGenres = "(no genres listed)"

var titleYear = regexp.MustCompile(`^(.*?)\s*\((\d{4})\)\s*$`)

// ParseMovieTitle splits the release year from a title like "Heat (1995)".
// The year is zero if the title carries none.
func ParseMovieTitle(text string) (string, int) {
	text = strings.TrimSpace(text)
	matches := titleYear.FindStringSubmatch(text)
	if matches == nil {
		return text, 0
	}
	year, _ := strconv.Atoi(matches[2])
	return matches[1], year
}

// ParseGenres splits pipe separated genres.
func ParseGenres(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" || text == noGenres {
		return []string{}
	}
	genres := make([]string, 0)
	for _, genre := range strings.Split(text, "|") {
		if genre = strings.TrimSpace(genre); genre != "" {
			genres = append(genres, genre)
		}
	}
	return genres
}

// ParseTimestamp accepts unix seconds or any layout known to dateparse.
// Timestamps without a zone are read as UTC.
func ParseTimestamp(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if seconds, err := strconv.ParseInt(text, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	t, err := dateparse.ParseIn(text, time.UTC)
	if err != nil {
		return time.Time{}, errors.NotValidf("timestamp `%v`", text)
	}
	return t, nil
}

// ImportMovies inserts movies from a CSV stream with columns
// movieId,title,genres. It returns the number of imported movies.
func ImportMovies(ctx context.Context, database data.Database, r io.Reader, hasHeader bool) (int, error) {
	timeStart := time.Now()
	movies := make([]data.Movie, 0, batchSize)
	count := 0
	err := base.ReadLines(bufio.NewScanner(r), ',', func(lineNumber int, splits []string) error {
		if hasHeader && lineNumber == 0 {
			return nil
		}
		if len(splits) < 2 {
			return errors.NotValidf("movie at line %d", lineNumber)
		}
		movieId, err := strconv.Atoi(strings.TrimSpace(splits[0]))
		if err != nil {
			return errors.NotValidf("movie id `%v` at line %d", splits[0], lineNumber)
		}
		movie := data.Movie{MovieId: movieId, Genres: []string{}}
		movie.Title, movie.Year = ParseMovieTitle(splits[1])
		if len(splits) > 2 {
			movie.Genres = ParseGenres(splits[2])
		}
		movies = append(movies, movie)
		if len(movies) == batchSize {
			if err = database.BatchInsertMovies(ctx, movies); err != nil {
				return errors.Trace(err)
			}
			count += len(movies)
			movies = movies[:0]
		}
		return nil
	})
	if err != nil {
		return count, errors.Trace(err)
	}
	if len(movies) > 0 {
		if err = database.BatchInsertMovies(ctx, movies); err != nil {
			return count, errors.Trace(err)
		}
		count += len(movies)
	}
	log.Logger().Info("complete import movies",
		zap.Duration("time_used", time.Since(timeStart)),
		zap.Int("num_movies", count))
	return count, nil
}

// ImportRatings inserts ratings from a CSV stream with columns
// userId,movieId,rating[,timestamp]. It returns the number of imported ratings.
func ImportRatings(ctx context.Context, database data.Database, r io.Reader, hasHeader bool) (int, error) {
	timeStart := time.Now()
	ratings := make([]data.Rating, 0, batchSize)
	count := 0
	err := base.ReadLines(bufio.NewScanner(r), ',', func(lineNumber int, splits []string) error {
		if hasHeader && lineNumber == 0 {
			return nil
		}
		if len(splits) < 3 {
			return errors.NotValidf("rating at line %d", lineNumber)
		}
		var (
			rating data.Rating
			err    error
		)
		if rating.UserId, err = strconv.Atoi(strings.TrimSpace(splits[0])); err != nil {
			return errors.NotValidf("user id `%v` at line %d", splits[0], lineNumber)
		}
		if rating.MovieId, err = strconv.Atoi(strings.TrimSpace(splits[1])); err != nil {
			return errors.NotValidf("movie id `%v` at line %d", splits[1], lineNumber)
		}
		if rating.Rating, err = strconv.ParseFloat(strings.TrimSpace(splits[2]), 64); err != nil {
			return errors.NotValidf("rating `%v` at line %d", splits[2], lineNumber)
		}
		if len(splits) > 3 {
			if rating.Timestamp, err = ParseTimestamp(splits[3]); err != nil {
				return errors.Annotatef(err, "line %d", lineNumber)
			}
		}
		ratings = append(ratings, rating)
		if len(ratings) == batchSize {
			if err = database.BatchInsertRatings(ctx, ratings); err != nil {
				return errors.Trace(err)
			}
			count += len(ratings)
			ratings = ratings[:0]
		}
		return nil
	})
	if err != nil {
		return count, errors.Trace(err)
	}
	if len(ratings) > 0 {
		if err = database.BatchInsertRatings(ctx, ratings); err != nil {
			return count, errors.Trace(err)
		}
		count += len(ratings)
	}
	log.Logger().Info("complete import ratings",
		zap.Duration("time_used", time.Since(timeStart)),
		zap.Int("num_ratings", count))
	return count, nil
}
