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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelReason = "reason"
	LabelStep   = "step"
)

var (
	LoadDatasetStepSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cortex",
		Subsystem: "model",
		Name:      "load_dataset_step_seconds",
	}, []string{LabelStep})
	LoadDatasetTotalSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cortex",
		Subsystem: "model",
		Name:      "load_dataset_total_seconds",
	})
	FitSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cortex",
		Subsystem: "model",
		Name:      "fit_seconds",
	})
	ModelVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cortex",
		Subsystem: "model",
		Name:      "version",
	})
	UsersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cortex",
		Subsystem: "model",
		Name:      "users",
	})
	KnownUsersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cortex",
		Subsystem: "model",
		Name:      "known_users",
	})
	MoviesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cortex",
		Subsystem: "model",
		Name:      "movies",
	})
	RatingsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cortex",
		Subsystem: "model",
		Name:      "ratings",
	})

	PredictionsTotalVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cortex",
		Name:      "predictions_total",
	}, []string{LabelReason})
	IngestedRatingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cortex",
		Name:      "ingested_ratings_total",
	})
	RejectedRatingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cortex",
		Name:      "rejected_ratings_total",
	})
)
