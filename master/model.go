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
	"slices"
	"sync"
	"time"

	"github.com/cortexeng/cortex/base/log"
	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/dataset"
	"github.com/cortexeng/cortex/logics"
	"github.com/cortexeng/cortex/model/knn"
	"github.com/cortexeng/cortex/storage/data"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Stats summarizes the state of a model.
type Stats struct {
	Version    uint64    `json:"version"`
	Engine     string    `json:"engine"`
	Users      int       `json:"users"`
	Movies     int       `json:"movies"`
	Ratings    int       `json:"ratings"`
	KnownUsers int       `json:"known_users"`
	FittedAt   time.Time `json:"fitted_at"`
}

// Model owns the rating store, the similarity engine and the set of users
// eligible for recommendations. Reads run concurrently and writes are
// exclusive. Every successful write refits the engine and bumps the version.
type Model struct {
	mu          sync.RWMutex
	cfg         *config.Config
	store       *dataset.RatingStore
	engine      knn.Engine
	catalog     *logics.MovieCatalog
	known       mapset.Set[int]
	predictor   *logics.Predictor
	recommender *logics.Recommender
	version     uint64
	fittedAt    time.Time
}

// NewModel creates an empty model.
func NewModel(cfg *config.Config) (*Model, error) {
	engine, err := knn.NewEngine(cfg.Model)
	if err != nil {
		return nil, errors.Trace(err)
	}
	reranker, err := logics.NewReranker(cfg.Recommend, time.Now)
	if err != nil {
		return nil, errors.Trace(err)
	}
	store := dataset.NewRatingStore(dataset.Bound{Min: cfg.Model.MinRating, Max: cfg.Model.MaxRating})
	catalog := logics.NewMovieCatalog()
	known := mapset.NewSet[int]()
	predictor := logics.NewPredictor(store, engine, logics.NewFallback(store, catalog, cfg.Model), cfg.Model)
	return &Model{
		cfg:         cfg,
		store:       store,
		engine:      engine,
		catalog:     catalog,
		known:       known,
		predictor:   predictor,
		recommender: logics.NewRecommender(store, predictor, catalog, known, reranker),
	}, nil
}

// Predict the rating of a user on a movie.
func (m *Model) Predict(userId, movieId int) logics.Prediction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prediction := m.predictor.Predict(userId, movieId)
	PredictionsTotalVec.WithLabelValues(prediction.Reason.String()).Inc()
	return prediction
}

// Recommend top n movies to a user.
func (m *Model) Recommend(userId, n int) ([]logics.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recommender.Recommend(userId, n)
}

// Ingest stores ratings of a user in ascending movie order and refits the
// engine. Invalid ratings are skipped and reported together in the returned
// error while valid ones are still applied. The model is left untouched if
// nothing changed.
func (m *Model) Ingest(userId int, ratings map[int]float64) error {
	if len(ratings) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.store.Version()
	movieIds := lo.Keys(ratings)
	slices.Sort(movieIds)
	var errs error
	stored := 0
	for _, movieId := range movieIds {
		if err := m.store.Put(userId, movieId, ratings[movieId]); err != nil {
			RejectedRatingsTotal.Inc()
			errs = multierr.Append(errs, err)
			continue
		}
		stored++
	}
	IngestedRatingsTotal.Add(float64(stored))
	if stored > 0 {
		m.known.Add(userId)
	}
	if m.store.Version() != before {
		if err := m.fit(); err != nil {
			return multierr.Append(errs, err)
		}
	}
	return errs
}

// AddUsers registers users. A registered user stays unknown to Recommend
// until a rating of the user is stored.
func (m *Model) AddUsers(users []data.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.store.Version()
	for _, user := range users {
		m.store.AddUser(user.UserId)
	}
	return m.refitIfChanged(before)
}

// AddMovies upserts movies into the catalog and registers them as candidates.
func (m *Model) AddMovies(movies []data.Movie) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.store.Version()
	for _, movie := range movies {
		m.catalog.Add(movie)
		m.store.AddMovie(movie.MovieId)
	}
	return m.refitIfChanged(before)
}

// Fit refits the engine on the current ratings.
func (m *Model) Fit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fit()
}

func (m *Model) refitIfChanged(before uint64) error {
	if m.store.Version() == before {
		return nil
	}
	return m.fit()
}

func (m *Model) fit() error {
	start := time.Now()
	if err := m.engine.Fit(m.store); err != nil {
		return errors.Trace(err)
	}
	elapsed := time.Since(start)
	m.version++
	m.fittedAt = time.Now()
	FitSeconds.Set(elapsed.Seconds())
	ModelVersion.Set(float64(m.version))
	UsersTotal.Set(float64(m.store.CountUsers()))
	KnownUsersTotal.Set(float64(m.known.Cardinality()))
	MoviesTotal.Set(float64(m.store.CountMovies()))
	RatingsTotal.Set(float64(m.store.CountRatings()))
	log.Logger().Debug("fit similarity engine",
		zap.String("engine", m.engine.Name()),
		zap.Uint64("version", m.version),
		zap.Int("n_users", m.store.CountUsers()),
		zap.Int("n_movies", m.store.CountMovies()),
		zap.Int("n_ratings", m.store.CountRatings()),
		zap.Duration("time_used", elapsed))
	return nil
}

// Version increases by one on every fit.
func (m *Model) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *Model) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Version:    m.version,
		Engine:     m.engine.Name(),
		Users:      m.store.CountUsers(),
		Movies:     m.store.CountMovies(),
		Ratings:    m.store.CountRatings(),
		KnownUsers: m.known.Cardinality(),
		FittedAt:   m.fittedAt,
	}
}

// GetMovie returns a movie from the catalog.
func (m *Model) GetMovie(movieId int) (data.Movie, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalog.GetMovie(movieId)
}

// Evaluate scores the model configuration on a hold-out split of the
// current ratings. The served model is not modified.
func (m *Model) Evaluate(testRatio float64, topK int, seed int64) (logics.Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return logics.Evaluate(m.store, m.catalog, m.cfg.Model, testRatio, topK, seed)
}
