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
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cortexeng/cortex/logics"
	"github.com/cortexeng/cortex/storage/data"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) data.Database {
	database, err := data.Open(fmt.Sprintf("sqlite://%s/data.db", t.TempDir()), "")
	require.NoError(t, err)
	require.NoError(t, database.Init())
	t.Cleanup(func() {
		assert.NoError(t, database.Close())
	})
	return database
}

func insertFixture(t *testing.T, database data.Database) {
	ctx := context.Background()
	var ratings []data.Rating
	for userId, row := range fixture {
		for movieId, rating := range row {
			if rating != 0 {
				ratings = append(ratings, data.Rating{UserId: userId, MovieId: movieId, Rating: rating})
			}
		}
	}
	require.NoError(t, database.BatchInsertRatings(ctx, ratings))
}

func TestLoadModel(t *testing.T) {
	ctx := context.Background()
	database := newTestDatabase(t)
	insertFixture(t, database)
	require.NoError(t, database.BatchInsertUsers(ctx, []data.User{{UserId: 0}, {UserId: 9, Name: "Grace"}}))
	require.NoError(t, database.BatchInsertMovies(ctx, []data.Movie{
		{MovieId: 0, Title: "Heat", Genres: []string{"Crime", "Drama"}, Year: 1995},
		{MovieId: 7, Title: "Casino", Genres: []string{"Crime"}, Year: 1995},
	}))
	// out of bound ratings are skipped
	require.NoError(t, database.BatchInsertRatings(ctx, []data.Rating{{UserId: 8, MovieId: 0, Rating: 10}}))

	m, err := LoadModel(ctx, database, newTestConfig())
	require.NoError(t, err)
	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.Version)
	assert.Equal(t, 6, stats.Users)
	assert.Equal(t, 5, stats.Movies)
	assert.Equal(t, 14, stats.Ratings)
	assert.Equal(t, 5, stats.KnownUsers)

	prediction := m.Predict(0, 2)
	assert.Equal(t, logics.Neighbors, prediction.Reason)
	assert.InDelta(t, 3.0, prediction.Value, 1e-9)
	assert.Equal(t, logics.Prediction{Value: 2.75, Reason: logics.GenreMean}, m.Predict(0, 7))
	_, err = m.Recommend(8, 10)
	assert.True(t, errors.IsNotFound(err))
	// registered without ratings
	_, err = m.Recommend(9, 10)
	assert.True(t, errors.IsNotFound(err))
}

func TestLoadModelNoDatabase(t *testing.T) {
	_, err := LoadModel(context.Background(), data.NoDatabase{}, newTestConfig())
	assert.ErrorIs(t, err, data.ErrNoDatabase)
}

func TestParseMovieTitle(t *testing.T) {
	title, year := ParseMovieTitle("Toy Story (1995)")
	assert.Equal(t, "Toy Story", title)
	assert.Equal(t, 1995, year)
	title, year = ParseMovieTitle(" American President, The (1995) ")
	assert.Equal(t, "American President, The", title)
	assert.Equal(t, 1995, year)
	title, year = ParseMovieTitle("City of Lost Children, The (Cité des enfants perdus, La) (1995)")
	assert.Equal(t, "City of Lost Children, The (Cité des enfants perdus, La)", title)
	assert.Equal(t, 1995, year)
	title, year = ParseMovieTitle("Babylon 5")
	assert.Equal(t, "Babylon 5", title)
	assert.Zero(t, year)
}

func TestParseGenres(t *testing.T) {
	assert.Equal(t, []string{"Adventure", "Animation", "Children"}, ParseGenres("Adventure|Animation|Children"))
	assert.Equal(t, []string{}, ParseGenres("(no genres listed)"))
	assert.Equal(t, []string{}, ParseGenres(""))
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("964982703")
	assert.NoError(t, err)
	assert.Equal(t, time.Unix(964982703, 0).UTC(), ts)
	ts, err = ParseTimestamp("2000-07-30 18:45:03")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2000, 7, 30, 18, 45, 3, 0, time.UTC), ts)
	_, err = ParseTimestamp("yesterday")
	assert.True(t, errors.IsNotValid(err))
}

func TestImportMovies(t *testing.T) {
	ctx := context.Background()
	database := newTestDatabase(t)
	count, err := ImportMovies(ctx, database, strings.NewReader("movieId,title,genres\r\n"+
		"1,Toy Story (1995),Adventure|Animation|Children\r\n"+
		"11,\"American President, The (1995)\",Comedy|Drama|Romance\r\n"+
		"182715,Annihilation (2018),(no genres listed)\r\n"), true)
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
	movie, err := database.GetMovie(ctx, 11)
	assert.NoError(t, err)
	assert.Equal(t, data.Movie{
		MovieId: 11,
		Title:   "American President, The",
		Genres:  []string{"Comedy", "Drama", "Romance"},
		Year:    1995,
	}, movie)
	movie, err = database.GetMovie(ctx, 182715)
	assert.NoError(t, err)
	assert.Empty(t, movie.Genres)
	assert.Equal(t, 2018, movie.Year)

	_, err = ImportMovies(ctx, database, strings.NewReader("x,Heat (1995),Crime\n"), false)
	assert.True(t, errors.IsNotValid(err))
}

func TestImportRatings(t *testing.T) {
	ctx := context.Background()
	database := newTestDatabase(t)
	count, err := ImportRatings(ctx, database, strings.NewReader("userId,movieId,rating,timestamp\n"+
		"1,1,4.0,964982703\n"+
		"1,3,4.0,964981247\n"+
		"2,1,2.5,1445714835\n"), true)
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
	ratings, errChan := database.GetRatingStream(ctx, 10)
	var stored []data.Rating
	for batch := range ratings {
		stored = append(stored, batch...)
	}
	assert.NoError(t, <-errChan)
	assert.Len(t, stored, 3)
	assert.Equal(t, 2.5, stored[2].Rating)
	assert.True(t, stored[2].Timestamp.Equal(time.Unix(1445714835, 0)))

	_, err = ImportRatings(ctx, database, strings.NewReader("1,1,good,964982703\n"), false)
	assert.True(t, errors.IsNotValid(err))
	_, err = ImportRatings(ctx, database, strings.NewReader("1,1,4,someday\n"), false)
	assert.True(t, errors.IsNotValid(err))
}
