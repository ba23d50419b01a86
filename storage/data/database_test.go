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

package data

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database
}

func (suite *baseTestSuite) TearDownTest() {
	suite.NoError(suite.Database.Purge())
	suite.NoError(suite.Database.Close())
}

func readAll[T any](batches chan []T, errChan chan error) ([]T, error) {
	var items []T
	for batch := range batches {
		items = append(items, batch...)
	}
	return items, <-errChan
}

func (suite *baseTestSuite) TestPing() {
	suite.NoError(suite.Database.Ping())
}

func (suite *baseTestSuite) TestUsers() {
	ctx := context.Background()
	var users []User
	for i := 9; i >= 0; i-- {
		users = append(users, User{UserId: i, Name: fmt.Sprintf("user %d", i)})
	}
	suite.NoError(suite.Database.BatchInsertUsers(ctx, users))
	// overwrite a user
	suite.NoError(suite.Database.BatchInsertUsers(ctx, []User{{UserId: 3, Name: "user three", Comment: "renamed"}}))

	stored, err := readAll[User](suite.Database.GetUserStream(ctx, 3))
	suite.NoError(err)
	if suite.Len(stored, 10) {
		for i, user := range stored {
			suite.Equal(i, user.UserId)
		}
		suite.Equal("user three", stored[3].Name)
		suite.Equal("renamed", stored[3].Comment)
		suite.Equal("user 4", stored[4].Name)
	}
}

func (suite *baseTestSuite) TestMovies() {
	ctx := context.Background()
	movies := []Movie{
		{MovieId: 1, Title: "Toy Story", Genres: []string{"Adventure", "Animation"}, Year: 1995},
		{MovieId: 2, Title: "Jumanji", Genres: []string{"Adventure", "Fantasy"}, Year: 1995},
		{MovieId: 3, Title: "Heat", Genres: []string{"Action", "Crime"}, Year: 1995, ImdbId: "0113277"},
	}
	suite.NoError(suite.Database.BatchInsertMovies(ctx, movies))
	// overwrite a movie
	suite.NoError(suite.Database.BatchInsertMovies(ctx, []Movie{
		{MovieId: 2, Title: "Jumanji", Genres: []string{"Adventure", "Children", "Fantasy"}, Year: 1995},
	}))

	movie, err := suite.Database.GetMovie(ctx, 2)
	suite.NoError(err)
	suite.Equal([]string{"Adventure", "Children", "Fantasy"}, movie.Genres)
	movie, err = suite.Database.GetMovie(ctx, 3)
	suite.NoError(err)
	suite.Equal(movies[2], movie)
	_, err = suite.Database.GetMovie(ctx, 4)
	suite.ErrorIs(err, ErrMovieNotExist)

	stored, err := readAll[Movie](suite.Database.GetMovieStream(ctx, 2))
	suite.NoError(err)
	if suite.Len(stored, 3) {
		suite.Equal(movies[0], stored[0])
		suite.Equal(2, stored[1].MovieId)
		suite.Equal(movies[2], stored[2])
	}
}

func (suite *baseTestSuite) TestRatings() {
	ctx := context.Background()
	timestamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var ratings []Rating
	for userId := 2; userId >= 0; userId-- {
		for movieId := 0; movieId < 4; movieId++ {
			if (userId+movieId)%2 == 0 {
				ratings = append(ratings, Rating{
					UserId:    userId,
					MovieId:   movieId,
					Rating:    float64(1 + (userId+movieId)%5),
					Timestamp: timestamp,
				})
			}
		}
	}
	suite.NoError(suite.Database.BatchInsertRatings(ctx, ratings))
	// overwrite a rating
	suite.NoError(suite.Database.BatchInsertRatings(ctx, []Rating{
		{UserId: 1, MovieId: 1, Rating: 2.5, Timestamp: timestamp.Add(time.Hour)},
		{UserId: 1, MovieId: 1, Rating: 4.5, Timestamp: timestamp.Add(time.Hour)},
	}))

	stored, err := readAll[Rating](suite.Database.GetRatingStream(ctx, 2))
	suite.NoError(err)
	if suite.Len(stored, 6) {
		expected := [][2]int{{0, 0}, {0, 2}, {1, 1}, {1, 3}, {2, 0}, {2, 2}}
		for i, rating := range stored {
			suite.Equal(expected[i][0], rating.UserId)
			suite.Equal(expected[i][1], rating.MovieId)
		}
		suite.Equal(4.5, stored[2].Rating)
		suite.True(timestamp.Add(time.Hour).Equal(stored[2].Timestamp))
		suite.Equal(5.0, stored[5].Rating)
		suite.True(timestamp.Equal(stored[5].Timestamp))
	}
}

func (suite *baseTestSuite) TestEmptyBatches() {
	ctx := context.Background()
	suite.NoError(suite.Database.BatchInsertUsers(ctx, nil))
	suite.NoError(suite.Database.BatchInsertMovies(ctx, nil))
	suite.NoError(suite.Database.BatchInsertRatings(ctx, nil))
	ratings, err := readAll[Rating](suite.Database.GetRatingStream(ctx, 10))
	suite.NoError(err)
	suite.Empty(ratings)
}

func (suite *baseTestSuite) TestPurge() {
	ctx := context.Background()
	suite.NoError(suite.Database.BatchInsertUsers(ctx, []User{{UserId: 1}}))
	suite.NoError(suite.Database.BatchInsertMovies(ctx, []Movie{{MovieId: 1, Title: "Heat", Genres: []string{"Action"}}}))
	suite.NoError(suite.Database.BatchInsertRatings(ctx, []Rating{{UserId: 1, MovieId: 1, Rating: 5}}))
	suite.NoError(suite.Database.Purge())

	users, err := readAll[User](suite.Database.GetUserStream(ctx, 10))
	suite.NoError(err)
	suite.Empty(users)
	movies, err := readAll[Movie](suite.Database.GetMovieStream(ctx, 10))
	suite.NoError(err)
	suite.Empty(movies)
	ratings, err := readAll[Rating](suite.Database.GetRatingStream(ctx, 10))
	suite.NoError(err)
	suite.Empty(ratings)
}
