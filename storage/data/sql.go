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
	"database/sql"
	"time"

	"github.com/cortexeng/cortex/storage"
	"github.com/juju/errors"
	_ "github.com/mailru/go-clickhouse/v2"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const bufSize = 1

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
	ClickHouse
)

type SQLUser User

type SQLMovie Movie

type SQLRating Rating

// ClickHouse tables are ReplacingMergeTree tables. Rows with the same key are
// merged in the background and the newest version wins.

type ClickHouseUser struct {
	UserId  int       `gorm:"column:user_id;type:Int64"`
	Name    string    `gorm:"column:name;type:String"`
	Comment string    `gorm:"column:comment;type:String"`
	Version time.Time `gorm:"column:version;type:DateTime"`
}

type ClickHouseMovie struct {
	MovieId int       `gorm:"column:movie_id;type:Int64"`
	Title   string    `gorm:"column:title;type:String"`
	Genres  []string  `gorm:"column:genres;type:String;serializer:json"`
	Year    int       `gorm:"column:year;type:Int64"`
	ImdbId  string    `gorm:"column:imdb_id;type:String"`
	TmdbId  string    `gorm:"column:tmdb_id;type:String"`
	Version time.Time `gorm:"column:version;type:DateTime"`
}

type ClickHouseRating struct {
	UserId    int       `gorm:"column:user_id;type:Int64"`
	MovieId   int       `gorm:"column:movie_id;type:Int64"`
	Rating    float64   `gorm:"column:rating;type:Float64"`
	Timestamp time.Time `gorm:"column:time_stamp;type:DateTime"`
	Version   time.Time `gorm:"column:version;type:DateTime"`
}

// SQLDatabase use MySQL, Postgres, SQLite or ClickHouse as data storage.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

func (d *SQLDatabase) Init() error {
	switch d.driver {
	case ClickHouse:
		tables := []lo.Tuple2[any, string]{
			{A: &ClickHouseUser{}, B: "ENGINE = ReplacingMergeTree(version) ORDER BY user_id"},
			{A: &ClickHouseMovie{}, B: "ENGINE = ReplacingMergeTree(version) ORDER BY movie_id"},
			{A: &ClickHouseRating{}, B: "ENGINE = ReplacingMergeTree(version) ORDER BY (user_id, movie_id)"},
		}
		for _, table := range tables {
			if err := d.gormDB.Set("gorm:table_options", table.B).AutoMigrate(table.A); err != nil {
				return errors.Trace(err)
			}
		}
	case MySQL:
		if err := d.gormDB.Set("gorm:table_options", "ENGINE=InnoDB").AutoMigrate(&SQLUser{}, &SQLMovie{}, &SQLRating{}); err != nil {
			return errors.Trace(err)
		}
	default:
		if err := d.gormDB.AutoMigrate(&SQLUser{}, &SQLMovie{}, &SQLRating{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

func (d *SQLDatabase) Purge() error {
	tables := []string{d.UsersTable(), d.MoviesTable(), d.RatingsTable()}
	statement := "DELETE FROM "
	if d.driver == ClickHouse {
		statement = "TRUNCATE TABLE "
	}
	for _, table := range tables {
		if err := d.gormDB.Exec(statement + table).Error; err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// BatchInsertUsers inserts users and overwrites existing users with the same id.
func (d *SQLDatabase) BatchInsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	users = lastByKey(users, func(u User) int { return u.UserId })
	if d.driver == ClickHouse {
		version := time.Now()
		rows := lo.Map(users, func(u User, _ int) ClickHouseUser {
			return ClickHouseUser{UserId: u.UserId, Name: u.Name, Comment: u.Comment, Version: version}
		})
		return errors.Trace(d.gormDB.WithContext(ctx).Create(&rows).Error)
	}
	rows := make([]SQLUser, len(users))
	for i, user := range users {
		rows[i] = SQLUser(user)
	}
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "comment"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

// BatchInsertMovies inserts movies and overwrites existing movies with the same id.
func (d *SQLDatabase) BatchInsertMovies(ctx context.Context, movies []Movie) error {
	if len(movies) == 0 {
		return nil
	}
	movies = lastByKey(movies, func(m Movie) int { return m.MovieId })
	if d.driver == ClickHouse {
		version := time.Now()
		rows := lo.Map(movies, func(m Movie, _ int) ClickHouseMovie {
			return ClickHouseMovie{
				MovieId: m.MovieId,
				Title:   m.Title,
				Genres:  lo.Ternary(m.Genres == nil, []string{}, m.Genres),
				Year:    m.Year,
				ImdbId:  m.ImdbId,
				TmdbId:  m.TmdbId,
				Version: version,
			}
		})
		return errors.Trace(d.gormDB.WithContext(ctx).Create(&rows).Error)
	}
	rows := make([]SQLMovie, len(movies))
	for i, movie := range movies {
		rows[i] = SQLMovie(movie)
		if rows[i].Genres == nil {
			rows[i].Genres = []string{}
		}
	}
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "movie_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "genres", "year", "imdb_id", "tmdb_id"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) BatchInsertRatings(ctx context.Context, ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	ratings = lastByKey(ratings, ratingKey)
	if d.driver == ClickHouse {
		version := time.Now()
		rows := lo.Map(ratings, func(r Rating, _ int) ClickHouseRating {
			return ClickHouseRating{UserId: r.UserId, MovieId: r.MovieId, Rating: r.Rating, Timestamp: r.Timestamp, Version: version}
		})
		return errors.Trace(d.gormDB.WithContext(ctx).Create(&rows).Error)
	}
	rows := make([]SQLRating, len(ratings))
	for i, rating := range ratings {
		rows[i] = SQLRating(rating)
	}
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "movie_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "time_stamp"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) GetMovie(ctx context.Context, movieId int) (Movie, error) {
	var movies []SQLMovie
	if err := d.table(ctx, d.MoviesTable()).Where("movie_id = ?", movieId).Limit(1).Find(&movies).Error; err != nil {
		return Movie{}, errors.Trace(err)
	}
	if len(movies) == 0 {
		return Movie{}, errors.Annotatef(ErrMovieNotExist, "movie_id=%d", movieId)
	}
	return Movie(movies[0]), nil
}

// table starts a query on a table. Reads from ClickHouse use FINAL so that
// rows not merged yet are deduplicated.
func (d *SQLDatabase) table(ctx context.Context, name string) *gorm.DB {
	if d.driver == ClickHouse {
		name += " FINAL"
	}
	return d.gormDB.WithContext(ctx).Table(name)
}

func (d *SQLDatabase) GetUserStream(ctx context.Context, batchSize int) (chan []User, chan error) {
	tx := d.table(ctx, d.UsersTable()).Select("user_id, name, comment").Order("user_id")
	return streamRows(ctx, tx, batchSize, func(row SQLUser) User { return User(row) })
}

func (d *SQLDatabase) GetMovieStream(ctx context.Context, batchSize int) (chan []Movie, chan error) {
	tx := d.table(ctx, d.MoviesTable()).Select("movie_id, title, genres, year, imdb_id, tmdb_id").Order("movie_id")
	return streamRows(ctx, tx, batchSize, func(row SQLMovie) Movie { return Movie(row) })
}

func (d *SQLDatabase) GetRatingStream(ctx context.Context, batchSize int) (chan []Rating, chan error) {
	tx := d.table(ctx, d.RatingsTable()).Select("user_id, movie_id, rating, time_stamp").Order("user_id, movie_id")
	return streamRows(ctx, tx, batchSize, func(row SQLRating) Rating { return Rating(row) })
}

// streamRows sends rows of a query in batches. The error channel receives
// exactly one value after the last batch.
func streamRows[R, T any](ctx context.Context, tx *gorm.DB, batchSize int, convert func(R) T) (chan []T, chan error) {
	batchChan := make(chan []T, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(batchChan)
		defer close(errChan)
		// send query
		result, err := tx.Rows()
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		defer result.Close()
		// fetch result
		batch := make([]T, 0, batchSize)
		for result.Next() {
			var row R
			if err = tx.ScanRows(result, &row); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			batch = append(batch, convert(row))
			if len(batch) == batchSize {
				select {
				case batchChan <- batch:
				case <-ctx.Done():
					errChan <- errors.Trace(ctx.Err())
					return
				}
				batch = make([]T, 0, batchSize)
			}
		}
		if err = result.Err(); err != nil {
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
