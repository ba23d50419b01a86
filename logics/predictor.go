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
	"github.com/cortexeng/cortex/base/log"
	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/dataset"
	"github.com/cortexeng/cortex/model/knn"
	"go.uber.org/zap"
)

// Predictor predicts the rating of a user on a movie from ratings of similar users.
type Predictor struct {
	store     *dataset.RatingStore
	engine    knn.Engine
	fallback  *Fallback
	k         int
	threshold float64
}

func NewPredictor(store *dataset.RatingStore, engine knn.Engine, fallback *Fallback, cfg config.ModelConfig) *Predictor {
	return &Predictor{
		store:     store,
		engine:    engine,
		fallback:  fallback,
		k:         cfg.K,
		threshold: cfg.SimThreshold,
	}
}

// Predict never fails. Unknown users and movies get fallback predictions and
// users without ratings get no estimate.
func (p *Predictor) Predict(userId, movieId int) (prediction Prediction) {
	if rating, ok := p.store.Get(userId, movieId); ok {
		return Prediction{Value: rating, Reason: Rated}
	}
	if !p.store.HasUser(userId) || !p.store.HasMovie(movieId) {
		return p.fallback.Predict(movieId)
	}
	defer func() {
		if r := recover(); r != nil {
			log.Logger().Error("failed to predict from neighbors",
				zap.Int("user_id", userId), zap.Int("movie_id", movieId), zap.Any("panic", r))
			prediction = p.fallback.Predict(movieId)
		}
	}()
	return p.predictFromNeighbors(userId, movieId)
}

func (p *Predictor) predictFromNeighbors(userId, movieId int) Prediction {
	if p.store.CountUserRatings(userId) == 0 {
		return noEstimate(EmptyProfile)
	}
	var weights, weighted float64
	var used int
	for _, neighbor := range p.engine.KNearest(userId, p.k) {
		if neighbor.Similarity <= p.threshold {
			// neighbors are sorted by similarity
			break
		}
		rating, ok := p.store.Get(neighbor.UserId, movieId)
		if !ok {
			continue
		}
		weights += neighbor.Similarity
		weighted += neighbor.Similarity * rating
		used++
	}
	if used == 0 {
		log.Logger().Debug("no neighbor rated the movie",
			zap.Int("user_id", userId), zap.Int("movie_id", movieId))
		return p.fallback.Predict(movieId)
	}
	if weights == 0 {
		return noEstimate(ZeroWeight)
	}
	return Prediction{
		Value:  p.store.Bound().Clip(weighted / weights),
		Reason: Neighbors,
	}
}
