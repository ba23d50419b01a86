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
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/cortexeng/cortex/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const (
	prefixUser   = "user/"   // prefix for users
	prefixMovie  = "movie/"  // prefix for movies
	prefixRating = "rating/" // prefix for ratings of a user

	keyUsers  = "users"  // sorted set of user ids
	keyMovies = "movies" // sorted set of movie ids
	keyRaters = "raters" // sorted set of users with ratings
)

type redisRating struct {
	Rating    float64   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// Redis use Redis as data storage. Entities are JSON strings and sorted sets
// keep their ids in ascending order.
type Redis struct {
	storage.TablePrefix
	client *redis.Client
}

// Init does nothing.
func (r *Redis) Init() error {
	return nil
}

func (r *Redis) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Purge() error {
	ctx := context.Background()
	for _, pattern := range []string{prefixUser + "*", prefixMovie + "*", prefixRating + "*"} {
		var cursor uint64
		for {
			keys, next, err := r.client.Scan(ctx, cursor, r.Key(pattern), 100).Result()
			if err != nil {
				return errors.Trace(err)
			}
			if len(keys) > 0 {
				if err = r.client.Del(ctx, keys...).Err(); err != nil {
					return errors.Trace(err)
				}
			}
			if cursor = next; cursor == 0 {
				break
			}
		}
	}
	return errors.Trace(r.client.Del(ctx, r.Key(keyUsers), r.Key(keyMovies), r.Key(keyRaters)).Err())
}

func (r *Redis) BatchInsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	pipeline := r.client.Pipeline()
	for _, user := range users {
		data, err := json.Marshal(user)
		if err != nil {
			return errors.Trace(err)
		}
		pipeline.Set(ctx, r.Key(prefixUser+strconv.Itoa(user.UserId)), data, 0)
		pipeline.ZAdd(ctx, r.Key(keyUsers), redis.Z{Score: float64(user.UserId), Member: user.UserId})
	}
	_, err := pipeline.Exec(ctx)
	return errors.Trace(err)
}

func (r *Redis) BatchInsertMovies(ctx context.Context, movies []Movie) error {
	if len(movies) == 0 {
		return nil
	}
	pipeline := r.client.Pipeline()
	for _, movie := range movies {
		data, err := json.Marshal(movie)
		if err != nil {
			return errors.Trace(err)
		}
		pipeline.Set(ctx, r.Key(prefixMovie+strconv.Itoa(movie.MovieId)), data, 0)
		pipeline.ZAdd(ctx, r.Key(keyMovies), redis.Z{Score: float64(movie.MovieId), Member: movie.MovieId})
	}
	_, err := pipeline.Exec(ctx)
	return errors.Trace(err)
}

func (r *Redis) BatchInsertRatings(ctx context.Context, ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	pipeline := r.client.Pipeline()
	for _, rating := range ratings {
		data, err := json.Marshal(redisRating{Rating: rating.Rating, Timestamp: rating.Timestamp})
		if err != nil {
			return errors.Trace(err)
		}
		pipeline.HSet(ctx, r.Key(prefixRating+strconv.Itoa(rating.UserId)), strconv.Itoa(rating.MovieId), data)
		pipeline.ZAdd(ctx, r.Key(keyRaters), redis.Z{Score: float64(rating.UserId), Member: rating.UserId})
	}
	_, err := pipeline.Exec(ctx)
	return errors.Trace(err)
}

func (r *Redis) GetMovie(ctx context.Context, movieId int) (Movie, error) {
	data, err := r.client.Get(ctx, r.Key(prefixMovie+strconv.Itoa(movieId))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Movie{}, errors.Annotatef(ErrMovieNotExist, "movie_id=%d", movieId)
		}
		return Movie{}, errors.Trace(err)
	}
	var movie Movie
	err = json.Unmarshal([]byte(data), &movie)
	return movie, errors.Trace(err)
}

// forIds iterates a sorted set of ids in batches.
func (r *Redis) forIds(ctx context.Context, key string, batchSize int, f func(ids []string) error) error {
	for start := int64(0); ; start += int64(batchSize) {
		ids, err := r.client.ZRange(ctx, r.Key(key), start, start+int64(batchSize)-1).Result()
		if err != nil {
			return errors.Trace(err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err = f(ids); err != nil {
			return err
		}
		if len(ids) < batchSize {
			return nil
		}
	}
}

func (r *Redis) GetUserStream(ctx context.Context, batchSize int) (chan []User, chan error) {
	userChan := make(chan []User, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(userChan)
		defer close(errChan)
		errChan <- r.forIds(ctx, keyUsers, batchSize, func(ids []string) error {
			values, err := r.client.MGet(ctx, lo.Map(ids, func(id string, _ int) string {
				return r.Key(prefixUser + id)
			})...).Result()
			if err != nil {
				return errors.Trace(err)
			}
			users := make([]User, 0, len(values))
			for _, value := range values {
				if data, ok := value.(string); ok {
					var user User
					if err = json.Unmarshal([]byte(data), &user); err != nil {
						return errors.Trace(err)
					}
					users = append(users, user)
				}
			}
			userChan <- users
			return nil
		})
	}()
	return userChan, errChan
}

func (r *Redis) GetMovieStream(ctx context.Context, batchSize int) (chan []Movie, chan error) {
	movieChan := make(chan []Movie, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(movieChan)
		defer close(errChan)
		errChan <- r.forIds(ctx, keyMovies, batchSize, func(ids []string) error {
			values, err := r.client.MGet(ctx, lo.Map(ids, func(id string, _ int) string {
				return r.Key(prefixMovie + id)
			})...).Result()
			if err != nil {
				return errors.Trace(err)
			}
			movies := make([]Movie, 0, len(values))
			for _, value := range values {
				if data, ok := value.(string); ok {
					var movie Movie
					if err = json.Unmarshal([]byte(data), &movie); err != nil {
						return errors.Trace(err)
					}
					movies = append(movies, movie)
				}
			}
			movieChan <- movies
			return nil
		})
	}()
	return movieChan, errChan
}

// GetRatingStream sends ratings ordered by user id then movie id. A batch
// holds the ratings of up to batchSize users.
func (r *Redis) GetRatingStream(ctx context.Context, batchSize int) (chan []Rating, chan error) {
	ratingChan := make(chan []Rating, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(ratingChan)
		defer close(errChan)
		errChan <- r.forIds(ctx, keyRaters, batchSize, func(ids []string) error {
			var ratings []Rating
			for _, id := range ids {
				userId, err := strconv.Atoi(id)
				if err != nil {
					return errors.Trace(err)
				}
				fields, err := r.client.HGetAll(ctx, r.Key(prefixRating+id)).Result()
				if err != nil {
					return errors.Trace(err)
				}
				userRatings := make([]Rating, 0, len(fields))
				for field, data := range fields {
					movieId, err := strconv.Atoi(field)
					if err != nil {
						return errors.Trace(err)
					}
					var value redisRating
					if err = json.Unmarshal([]byte(data), &value); err != nil {
						return errors.Trace(err)
					}
					userRatings = append(userRatings, Rating{
						UserId:    userId,
						MovieId:   movieId,
						Rating:    value.Rating,
						Timestamp: value.Timestamp,
					})
				}
				sort.Slice(userRatings, func(i, j int) bool {
					return userRatings[i].MovieId < userRatings[j].MovieId
				})
				ratings = append(ratings, userRatings...)
			}
			ratingChan <- ratings
			return nil
		})
	}()
	return ratingChan, errChan
}
