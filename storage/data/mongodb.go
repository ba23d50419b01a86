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

	"github.com/cortexeng/cortex/storage"
	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB is the data storage based on MongoDB.
type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string
}

// Init collections and indices in MongoDB.
func (db *MongoDB) Init() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	// list collections
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	exists := make(map[string]bool, len(collections))
	for _, collectionName := range collections {
		exists[collectionName] = true
	}
	// create collections
	for _, name := range []string{db.UsersTable(), db.MoviesTable(), db.RatingsTable()} {
		if !exists[name] {
			if err = d.CreateCollection(ctx, name); err != nil {
				return errors.Trace(err)
			}
		}
	}
	// create index
	if _, err = d.Collection(db.UsersTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"userid": 1},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return errors.Trace(err)
	}
	if _, err = d.Collection(db.MoviesTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"movieid": 1},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return errors.Trace(err)
	}
	_, err = d.Collection(db.RatingsTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userid", Value: 1}, {Key: "movieid", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Trace(err)
}

func (db *MongoDB) Ping() error {
	return db.client.Ping(context.Background(), nil)
}

// Close connection to MongoDB.
func (db *MongoDB) Close() error {
	return db.client.Disconnect(context.Background())
}

func (db *MongoDB) Purge() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	for _, name := range []string{db.UsersTable(), db.MoviesTable(), db.RatingsTable()} {
		if _, err := d.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (db *MongoDB) BatchInsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	c := db.client.Database(db.dbName).Collection(db.UsersTable())
	var models []mongo.WriteModel
	for _, user := range users {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"userid": bson.M{"$eq": user.UserId}}).
			SetUpdate(bson.M{"$set": user}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (db *MongoDB) BatchInsertMovies(ctx context.Context, movies []Movie) error {
	if len(movies) == 0 {
		return nil
	}
	c := db.client.Database(db.dbName).Collection(db.MoviesTable())
	var models []mongo.WriteModel
	for _, movie := range movies {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"movieid": bson.M{"$eq": movie.MovieId}}).
			SetUpdate(bson.M{"$set": movie}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (db *MongoDB) BatchInsertRatings(ctx context.Context, ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	c := db.client.Database(db.dbName).Collection(db.RatingsTable())
	var models []mongo.WriteModel
	for _, rating := range ratings {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{
				"userid":  bson.M{"$eq": rating.UserId},
				"movieid": bson.M{"$eq": rating.MovieId},
			}).
			SetUpdate(bson.M{"$set": rating}))
	}
	_, err := c.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return errors.Trace(err)
}

func (db *MongoDB) GetMovie(ctx context.Context, movieId int) (movie Movie, err error) {
	c := db.client.Database(db.dbName).Collection(db.MoviesTable())
	r := c.FindOne(ctx, bson.M{"movieid": movieId})
	if errors.Is(r.Err(), mongo.ErrNoDocuments) {
		err = errors.Annotatef(ErrMovieNotExist, "movie_id=%d", movieId)
		return
	}
	err = errors.Trace(r.Decode(&movie))
	return
}

func (db *MongoDB) GetUserStream(ctx context.Context, batchSize int) (chan []User, chan error) {
	return streamCollection[User](ctx, db.client.Database(db.dbName).Collection(db.UsersTable()),
		bson.D{{Key: "userid", Value: 1}}, batchSize)
}

func (db *MongoDB) GetMovieStream(ctx context.Context, batchSize int) (chan []Movie, chan error) {
	return streamCollection[Movie](ctx, db.client.Database(db.dbName).Collection(db.MoviesTable()),
		bson.D{{Key: "movieid", Value: 1}}, batchSize)
}

func (db *MongoDB) GetRatingStream(ctx context.Context, batchSize int) (chan []Rating, chan error) {
	return streamCollection[Rating](ctx, db.client.Database(db.dbName).Collection(db.RatingsTable()),
		bson.D{{Key: "userid", Value: 1}, {Key: "movieid", Value: 1}}, batchSize)
}

func streamCollection[T any](ctx context.Context, c *mongo.Collection, sort bson.D, batchSize int) (chan []T, chan error) {
	batchChan := make(chan []T, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(batchChan)
		defer close(errChan)
		opt := options.Find().SetSort(sort).SetBatchSize(int32(batchSize))
		r, err := c.Find(ctx, bson.M{}, opt)
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		defer r.Close(ctx)
		batch := make([]T, 0, batchSize)
		for r.Next(ctx) {
			var doc T
			if err = r.Decode(&doc); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			batch = append(batch, doc)
			if len(batch) == batchSize {
				batchChan <- batch
				batch = make([]T, 0, batchSize)
			}
		}
		if err = r.Err(); err != nil {
			errChan <- errors.Trace(err)
			return
		}
		if len(batch) > 0 {
			batchChan <- batch
		}
		errChan <- nil
	}()
	return batchChan, errChan
}
