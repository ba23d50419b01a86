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
	"context"

	"github.com/cortexeng/cortex/base/log"
	"github.com/cortexeng/cortex/common/parallel"
	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/dataset"
	"github.com/cortexeng/cortex/model/knn"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Score is the result of a hold-out evaluation.
type Score struct {
	MAE       float64
	RMSE      float64
	Precision float64
	Recall    float64
	// Count is the number of held-out ratings with an estimate.
	Count int
	// Users is the number of users with relevant held-out ratings.
	Users int
	TopK  int
}

// Evaluate holds out a random fraction of the ratings of each user, fits a
// model on the rest and scores the held-out ratings. Held-out ratings above
// the neutral rating are relevant for precision and recall at topK. Fallback
// jitter is disabled during evaluation.
func Evaluate(store *dataset.RatingStore, catalog Catalog, cfg config.ModelConfig, testRatio float64, topK int, seed int64) (Score, error) {
	cfg.FallbackJitter = 0
	train, test, err := knn.Split(store, testRatio, seed)
	if err != nil {
		return Score{}, errors.Trace(err)
	}
	engine, err := knn.NewEngine(cfg)
	if err != nil {
		return Score{}, errors.Trace(err)
	}
	if err = engine.Fit(train); err != nil {
		return Score{}, errors.Trace(err)
	}
	predictor := NewPredictor(train, engine, NewFallback(train, catalog, cfg), cfg)

	// rating prediction
	var truth, prediction []float64
	relevant := make(map[int][]int)
	var userIds []int
	for _, rating := range test {
		if result := predictor.Predict(rating.UserId, rating.MovieId); result.IsEstimate() {
			truth = append(truth, rating.Rating)
			prediction = append(prediction, result.Value)
		}
		if rating.Rating > cfg.NeutralRating {
			if _, exist := relevant[rating.UserId]; !exist {
				userIds = append(userIds, rating.UserId)
			}
			relevant[rating.UserId] = append(relevant[rating.UserId], rating.MovieId)
		}
	}
	score := Score{
		MAE:   knn.MAE(truth, prediction),
		RMSE:  knn.RMSE(truth, prediction),
		Count: len(truth),
		TopK:  topK,
	}

	// ranking
	known := mapset.NewSet[int]()
	for _, userId := range train.UserIds() {
		if train.CountUserRatings(userId) > 0 {
			known.Add(userId)
		}
	}
	recommender := NewRecommender(train, predictor, catalog, known, nil)
	chunks := parallel.Split(userIds, max(cfg.FitJobs, 1))
	partials := make([]Score, len(chunks))
	if err = parallel.Parallel(context.Background(), len(chunks), len(chunks), func(_, jobId int) error {
		for _, userId := range chunks[jobId] {
			recommendations, err := recommender.Recommend(userId, topK)
			if errors.IsNotFound(err) {
				continue
			} else if err != nil {
				return errors.Trace(err)
			}
			movieIds := make([]int, len(recommendations))
			for i, recommendation := range recommendations {
				movieIds[i] = recommendation.MovieId
			}
			partials[jobId].Precision += knn.PrecisionAtK(relevant[userId], movieIds, topK)
			partials[jobId].Recall += knn.RecallAtK(relevant[userId], movieIds, topK)
			partials[jobId].Users++
		}
		return nil
	}); err != nil {
		return Score{}, errors.Trace(err)
	}
	var precision, recall float64
	for _, partial := range partials {
		precision += partial.Precision
		recall += partial.Recall
		score.Users += partial.Users
	}
	if score.Users > 0 {
		score.Precision = precision / float64(score.Users)
		score.Recall = recall / float64(score.Users)
	}
	log.Logger().Info("evaluate model",
		zap.String("engine", engine.Name()),
		zap.Int("n_test", len(test)),
		zap.Float64("mae", score.MAE),
		zap.Float64("rmse", score.RMSE),
		zap.Float64("precision", score.Precision),
		zap.Float64("recall", score.Recall))
	return score, nil
}
