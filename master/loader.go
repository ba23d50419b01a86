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
	"time"

	"github.com/cortexeng/cortex/base/log"
	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const batchSize = 10000

// LoadModel builds a model from the users, movies and ratings of a database.
// Ratings out of the configured bound are skipped. The returned model is fitted.
func LoadModel(ctx context.Context, database data.Database, cfg *config.Config) (*Model, error) {
	m, err := NewModel(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = m.load(ctx, database); err != nil {
		return nil, errors.Trace(err)
	}
	return m, nil
}

func (m *Model) load(ctx context.Context, database data.Database) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := time.Now()

	// pull users
	stepStart := time.Now()
	users, errChan := database.GetUserStream(ctx, batchSize)
	err := consume(users, errChan, func(user data.User) {
		m.store.AddUser(user.UserId)
	})
	if err != nil {
		return errors.Annotate(err, "failed to load users")
	}
	LoadDatasetStepSecondsVec.WithLabelValues("load_users").Set(time.Since(stepStart).Seconds())

	// pull movies
	stepStart = time.Now()
	movies, errChan := database.GetMovieStream(ctx, batchSize)
	err = consume(movies, errChan, func(movie data.Movie) {
		m.catalog.Add(movie)
		m.store.AddMovie(movie.MovieId)
	})
	if err != nil {
		return errors.Annotate(err, "failed to load movies")
	}
	LoadDatasetStepSecondsVec.WithLabelValues("load_movies").Set(time.Since(stepStart).Seconds())

	// pull ratings
	stepStart = time.Now()
	var rejected int
	ratings, errChan := database.GetRatingStream(ctx, batchSize)
	err = consume(ratings, errChan, func(rating data.Rating) {
		if err := m.store.Put(rating.UserId, rating.MovieId, rating.Rating); err != nil {
			log.Logger().Debug("skip invalid rating", zap.Error(err))
			rejected++
			return
		}
		m.known.Add(rating.UserId)
	})
	if err != nil {
		return errors.Annotate(err, "failed to load ratings")
	}
	if rejected > 0 {
		log.Logger().Warn("skip invalid ratings", zap.Int("n_ratings", rejected))
	}
	LoadDatasetStepSecondsVec.WithLabelValues("load_ratings").Set(time.Since(stepStart).Seconds())

	stepStart = time.Now()
	if err = m.fit(); err != nil {
		return errors.Trace(err)
	}
	LoadDatasetStepSecondsVec.WithLabelValues("fit").Set(time.Since(stepStart).Seconds())
	LoadDatasetTotalSeconds.Set(time.Since(start).Seconds())
	log.Logger().Info("load dataset",
		zap.Int("n_users", m.store.CountUsers()),
		zap.Int("n_movies", m.store.CountMovies()),
		zap.Int("n_ratings", m.store.CountRatings()),
		zap.Int("n_known_users", m.known.Cardinality()),
		zap.Duration("used_time", time.Since(start)))
	return nil
}

// consume drains a batch stream and then returns the error of the producer.
func consume[T any](batches chan []T, errChan chan error, handle func(T)) error {
	for batch := range batches {
		for _, v := range batch {
			handle(v)
		}
	}
	return errors.Trace(<-errChan)
}
