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

package knn

import (
	"math"

	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/dataset"
	"github.com/juju/errors"
)

// Similarity between two rating rows. Absent cells count as zero unless the
// metric says otherwise. Every metric is symmetric and a row is at least as
// similar to itself as to any other row.
type Similarity func(a, b *dataset.SparseVector) float64

// NewSimilarity returns the similarity function of a metric.
func NewSimilarity(metric string) (Similarity, error) {
	switch metric {
	case config.MetricCosine:
		return Cosine, nil
	case config.MetricEuclidean:
		return Euclidean, nil
	case config.MetricPearson:
		return Pearson, nil
	}
	return nil, errors.NotSupportedf("similarity metric %q", metric)
}

// Cosine similarity of full rows. Only co-rated cells contribute to the dot
// product but norms cover every rating of each row. Zero if either row is empty.
func Cosine(a, b *dataset.SparseVector) float64 {
	normA, normB := a.Norm(), b.Norm()
	if normA == 0 || normB == 0 {
		return 0
	}
	return a.Dot(b) / (normA * normB)
}

// Euclidean similarity 1/(1+d) where d is the distance between full rows.
func Euclidean(a, b *dataset.SparseVector) float64 {
	var sum float64
	a.ForUnion(b, func(_ int32, x, y float64) {
		sum += (x - y) * (x - y)
	})
	return 1 / (1 + math.Sqrt(sum))
}

// Pearson correlation over co-rated cells, each row centered on the mean of
// all its ratings. Zero when there is no variance to correlate.
func Pearson(a, b *dataset.SparseVector) float64 {
	if a.Len() == 0 || b.Len() == 0 {
		return 0
	}
	meanA, meanB := a.Mean(), b.Mean()
	var num, sa, sb float64
	a.ForIntersection(b, func(_ int32, x, y float64) {
		dx, dy := x-meanA, y-meanB
		num += dx * dy
		sa += dx * dx
		sb += dy * dy
	})
	if sa == 0 || sb == 0 {
		return 0
	}
	return num / math.Sqrt(sa*sb)
}
