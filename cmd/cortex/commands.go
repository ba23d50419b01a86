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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cortexeng/cortex/base/log"
	"github.com/cortexeng/cortex/master"
	"github.com/cortexeng/cortex/storage/data"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var recommendCommand = &cobra.Command{
	Use:   "recommend <user-id>",
	Short: "Recommend movies to a user.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userId := parseId(args[0], "user id")
		n, _ := cmd.Flags().GetInt("n")
		quiet(cmd)
		m, closeDatabase := loadModel(cmd)
		defer closeDatabase()
		recommendations, err := m.Recommend(userId, n)
		if err != nil {
			log.Logger().Fatal("failed to recommend", zap.Error(err))
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "Movie", "Title", "Year", "Predicted", "Score")
		for i, recommendation := range recommendations {
			movie, _ := m.GetMovie(recommendation.MovieId)
			if err = table.Append([]string{
				strconv.Itoa(i + 1),
				strconv.Itoa(recommendation.MovieId),
				movie.Title,
				formatYear(movie.Year),
				fmt.Sprintf("%.3f", recommendation.PredictedRating),
				fmt.Sprintf("%.3f", recommendation.Score),
			}); err != nil {
				log.Logger().Fatal("failed to append row", zap.Error(err))
			}
		}
		if err = table.Render(); err != nil {
			log.Logger().Fatal("failed to render table", zap.Error(err))
		}
	},
}

var predictCommand = &cobra.Command{
	Use:   "predict <user-id> <movie-id>",
	Short: "Predict the rating of a user on a movie.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		userId := parseId(args[0], "user id")
		movieId := parseId(args[1], "movie id")
		quiet(cmd)
		m, closeDatabase := loadModel(cmd)
		defer closeDatabase()
		prediction := m.Predict(userId, movieId)
		if !prediction.IsEstimate() {
			fmt.Printf("no estimate (%s)\n", prediction.Cause)
			return
		}
		fmt.Printf("%.3f (%s)\n", prediction.Value, prediction.Reason)
	},
}

var evaluateCommand = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate the model on held-out ratings.",
	Run: func(cmd *cobra.Command, args []string) {
		testRatio, _ := cmd.Flags().GetFloat64("test-ratio")
		topK, _ := cmd.Flags().GetInt("top-k")
		seed, _ := cmd.Flags().GetInt64("seed")
		quiet(cmd)
		m, closeDatabase := loadModel(cmd)
		defer closeDatabase()
		score, err := m.Evaluate(testRatio, topK, seed)
		if err != nil {
			log.Logger().Fatal("failed to evaluate", zap.Error(err))
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Metric", "Value")
		rows := [][]string{
			{"MAE", fmt.Sprintf("%.4f", score.MAE)},
			{"RMSE", fmt.Sprintf("%.4f", score.RMSE)},
			{fmt.Sprintf("Precision@%d", score.TopK), fmt.Sprintf("%.4f", score.Precision)},
			{fmt.Sprintf("Recall@%d", score.TopK), fmt.Sprintf("%.4f", score.Recall)},
			{"Predicted", strconv.Itoa(score.Count)},
			{"Ranked users", strconv.Itoa(score.Users)},
		}
		if err = table.Bulk(rows); err != nil {
			log.Logger().Fatal("failed to append rows", zap.Error(err))
		}
		if err = table.Render(); err != nil {
			log.Logger().Fatal("failed to render table", zap.Error(err))
		}
	},
}

var importCommand = &cobra.Command{
	Use:   "import",
	Short: "Import MovieLens CSV files into the data store.",
}

var importRatingsCommand = &cobra.Command{
	Use:   "ratings <csv>",
	Short: "Import ratings (userId,movieId,rating,timestamp).",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runImport(cmd, args[0], "ratings", master.ImportRatings)
	},
}

var importMoviesCommand = &cobra.Command{
	Use:   "movies <csv>",
	Short: "Import movies (movieId,title,genres).",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runImport(cmd, args[0], "movies", master.ImportMovies)
	},
}

type importer func(ctx context.Context, database data.Database, r io.Reader, hasHeader bool) (int, error)

func runImport(cmd *cobra.Command, path, name string, load importer) {
	noHeader, _ := cmd.Flags().GetBool("no-header")
	database, err := openDatabase(loadConfig(cmd))
	if err != nil {
		log.Logger().Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Logger().Error("failed to close database", zap.Error(err))
		}
	}()
	file, err := os.Open(path)
	if err != nil {
		log.Logger().Fatal("failed to open file", zap.String("path", path), zap.Error(err))
	}
	stat, err := file.Stat()
	if err != nil {
		log.Logger().Fatal("failed to stat file", zap.String("path", path), zap.Error(err))
	}
	pbReader := progressbar.NewReader(file, progressbar.DefaultBytes(stat.Size(), "Importing "+name))
	defer pbReader.Close()
	count, err := load(context.Background(), database, &pbReader, !noHeader)
	if err != nil {
		log.Logger().Fatal("failed to import "+name, zap.Int("imported", count), zap.Error(err))
	}
	fmt.Printf("imported %d %s\n", count, name)
}

func parseId(text, name string) int {
	id, err := strconv.Atoi(text)
	if err != nil {
		log.Logger().Fatal("invalid "+name, zap.String(name, text))
	}
	return id
}

func formatYear(year int) string {
	if year <= 0 {
		return ""
	}
	return strconv.Itoa(year)
}

// quiet mutes logs below fatal so tables stay readable.
func quiet(cmd *cobra.Command) {
	if debug, _ := cmd.Flags().GetBool("debug"); !debug {
		log.CloseLogger()
	}
}

func init() {
	recommendCommand.Flags().IntP("n", "n", 10, "number of recommended movies")
	evaluateCommand.Flags().Float64("test-ratio", 0.2, "fraction of each user's ratings held out")
	evaluateCommand.Flags().Int("top-k", 10, "length of recommendation lists for precision and recall")
	evaluateCommand.Flags().Int64("seed", 0, "random seed of the split")
	importCommand.PersistentFlags().Bool("no-header", false, "the CSV file has no header line")
	importCommand.AddCommand(importRatingsCommand, importMoviesCommand)
	rootCommand.AddCommand(recommendCommand, predictCommand, evaluateCommand, importCommand)
}
