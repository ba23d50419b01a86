// Copyright 2024 gorse Project Authors
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
	"reflect"
	"time"

	"github.com/cortexeng/cortex/base/log"
	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/storage/data"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Reranker adjusts the ranking score of a recommended movie.
type Reranker interface {
	// Rerank returns the score of a movie and whether the movie is kept.
	Rerank(predicted float64, movie data.Movie) (float64, bool)
}

// NewReranker creates a reranker from the configuration. It returns nil if
// reranking is disabled.
func NewReranker(cfg config.RecommendConfig, now func() time.Time) (Reranker, error) {
	if cfg.Score != "" || cfg.Filter != "" {
		reranker, err := NewExprReranker(cfg.Score, cfg.Filter, now)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return reranker, nil
	}
	if cfg.RecencyWindow > 0 {
		return NewRecencyReranker(cfg.RecencyWindow, now), nil
	}
	return nil, nil
}

// RecencyBoost is max(0, 1 - age/window) for a movie released in year. Movies
// without a release year get no boost.
func RecencyBoost(year, currentYear, window int) float64 {
	if year <= 0 || window <= 0 {
		return 0
	}
	age := max(currentYear-year, 0)
	return max(0, 1-float64(age)/float64(window))
}

// RecencyReranker adds RecencyBoost to predicted ratings.
type RecencyReranker struct {
	window int
	now    func() time.Time
}

func NewRecencyReranker(window int, now func() time.Time) *RecencyReranker {
	return &RecencyReranker{window: window, now: now}
}

func (r *RecencyReranker) Rerank(predicted float64, movie data.Movie) (float64, bool) {
	return predicted + RecencyBoost(movie.Year, r.now().Year(), r.window), true
}

// ExprReranker scores and filters movies by expressions over "predicted",
// "age" and "movie".
type ExprReranker struct {
	scoreFunc  *vm.Program
	filterFunc *vm.Program
	now        func() time.Time
}

func rerankEnv(predicted float64, age int, movie data.Movie) map[string]any {
	return map[string]any{
		"predicted": predicted,
		"age":       age,
		"movie":     movie,
	}
}

func NewExprReranker(score, filter string, now func() time.Time) (*ExprReranker, error) {
	if score == "" {
		score = "predicted"
	}
	// Compile score expression
	scoreFunc, err := expr.Compile(score, expr.Env(rerankEnv(0, 0, data.Movie{})))
	if err != nil {
		return nil, errors.Annotate(err, "compile score expression")
	}
	switch scoreFunc.Node().Type().Kind() {
	case reflect.Float64, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return nil, errors.NotValidf("score expression %q must return a number", score)
	}
	// Compile filter expression
	var filterFunc *vm.Program
	if filter != "" {
		filterFunc, err = expr.Compile(filter, expr.Env(rerankEnv(0, 0, data.Movie{})))
		if err != nil {
			return nil, errors.Annotate(err, "compile filter expression")
		}
		if filterFunc.Node().Type().Kind() != reflect.Bool {
			return nil, errors.NotValidf("filter expression %q must return bool", filter)
		}
	}
	return &ExprReranker{scoreFunc: scoreFunc, filterFunc: filterFunc, now: now}, nil
}

func (r *ExprReranker) Rerank(predicted float64, movie data.Movie) (float64, bool) {
	age := 0
	if movie.Year > 0 {
		age = max(r.now().Year()-movie.Year, 0)
	}
	env := rerankEnv(predicted, age, movie)
	// Evaluate filter function
	if r.filterFunc != nil {
		result, err := expr.Run(r.filterFunc, env)
		if err != nil {
			log.Logger().Error("evaluate filter function", zap.Int("movie_id", movie.MovieId), zap.Error(err))
			return 0, false
		}
		if !result.(bool) {
			return 0, false
		}
	}
	// Evaluate score function
	result, err := expr.Run(r.scoreFunc, env)
	if err != nil {
		log.Logger().Error("evaluate score function", zap.Int("movie_id", movie.MovieId), zap.Error(err))
		return 0, false
	}
	switch typed := result.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	}
	log.Logger().Error("score function must return a number", zap.Any("result", result))
	return 0, false
}
