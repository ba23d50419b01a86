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

import "context"

// NoDatabase means that no database used.
type NoDatabase struct{}

func (NoDatabase) Init() error {
	return ErrNoDatabase
}

func (NoDatabase) Ping() error {
	return ErrNoDatabase
}

func (NoDatabase) Close() error {
	return ErrNoDatabase
}

func (NoDatabase) Purge() error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertUsers(_ context.Context, _ []User) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertMovies(_ context.Context, _ []Movie) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertRatings(_ context.Context, _ []Rating) error {
	return ErrNoDatabase
}

func (NoDatabase) GetMovie(_ context.Context, _ int) (Movie, error) {
	return Movie{}, ErrNoDatabase
}

func (NoDatabase) GetUserStream(_ context.Context, _ int) (chan []User, chan error) {
	return closedStream[User]()
}

func (NoDatabase) GetMovieStream(_ context.Context, _ int) (chan []Movie, chan error) {
	return closedStream[Movie]()
}

func (NoDatabase) GetRatingStream(_ context.Context, _ int) (chan []Rating, chan error) {
	return closedStream[Rating]()
}

func closedStream[T any]() (chan []T, chan error) {
	batchChan := make(chan []T)
	errChan := make(chan error, 1)
	errChan <- ErrNoDatabase
	close(batchChan)
	close(errChan)
	return batchChan, errChan
}
