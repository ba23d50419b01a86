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
	"os"
	"os/signal"
	"syscall"

	"github.com/cortexeng/cortex/base/log"
	"github.com/cortexeng/cortex/cmd/version"
	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/master"
	"github.com/cortexeng/cortex/storage/data"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "cortex",
	Short: "Movie recommender based on user-based collaborative filtering.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Load the model from the data store and serve the REST API.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		m := master.NewMaster(conf)
		// Stop master
		done := make(chan struct{})
		go func() {
			sigint := make(chan os.Signal, 1)
			signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
			<-sigint
			m.Shutdown()
			close(done)
		}()
		// Start master
		m.Serve()
		<-done
		log.Logger().Info("stop cortex successfully")
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print the version of cortex.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.Get())
	},
}

func loadConfig(cmd *cobra.Command) *config.Config {
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	return conf
}

// openDatabase connects and initializes the configured data store.
func openDatabase(conf *config.Config) (data.Database, error) {
	database, err := data.Open(conf.Database.DataStore, conf.Database.TablePrefix)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to connect data database %s", log.RedactDBURL(conf.Database.DataStore))
	}
	if err = database.Init(); err != nil {
		return nil, errors.Annotate(err, "failed to init database")
	}
	return database, nil
}

// loadModel loads a fitted model for one-shot commands.
func loadModel(cmd *cobra.Command) (*master.Model, func()) {
	conf := loadConfig(cmd)
	database, err := openDatabase(conf)
	if err != nil {
		log.Logger().Fatal("failed to open database", zap.Error(err))
	}
	m, err := master.LoadModel(context.Background(), database, conf)
	if err != nil {
		log.Logger().Fatal("failed to load model", zap.Error(err))
	}
	return m, func() {
		if err := database.Close(); err != nil {
			log.Logger().Error("failed to close database", zap.Error(err))
		}
	}
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.AddCommand(serveCommand, versionCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
