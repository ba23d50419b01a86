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

// Reason tells how a prediction was made.
type Reason int

const (
	// Rated means the user has rated the movie.
	Rated Reason = iota
	// Neighbors means the prediction is a weighted average of similar users' ratings.
	Neighbors
	// ItemMean means the prediction falls back to the mean rating of the movie.
	ItemMean
	// GenreMean means the prediction falls back to the mean rating of movies in the same genres.
	GenreMean
	// Neutral means nothing is known about the movie.
	Neutral
	// NoEstimate means no prediction could be made. The value must not be used.
	NoEstimate
)

func (r Reason) String() string {
	switch r {
	case Rated:
		return "rated"
	case Neighbors:
		return "neighbors"
	case ItemMean:
		return "item_mean"
	case GenreMean:
		return "genre_mean"
	case Neutral:
		return "neutral"
	case NoEstimate:
		return "no_estimate"
	}
	return "unknown"
}

// Cause tells why no estimate was made.
type Cause int

const (
	NoCause Cause = iota
	// EmptyProfile means the user has no ratings and no neighbors.
	EmptyProfile
	// ZeroWeight means similarities of the selected neighbors sum to zero.
	ZeroWeight
)

func (c Cause) String() string {
	switch c {
	case EmptyProfile:
		return "empty_profile"
	case ZeroWeight:
		return "zero_weight"
	}
	return ""
}

type Prediction struct {
	Value  float64
	Reason Reason
	Cause  Cause
}

func (p Prediction) IsEstimate() bool {
	return p.Reason != NoEstimate
}

func noEstimate(cause Cause) Prediction {
	return Prediction{Reason: NoEstimate, Cause: cause}
}
