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
	"context"

	"github.com/cortexeng/cortex/base/log"
	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/storage/data"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Master serves a model loaded from the data store.
type Master struct {
	RestServer
}

// NewMaster creates a master node.
func NewMaster(cfg *config.Config) *Master {
	otel.SetErrorHandler(log.GetErrorHandler())
	return &Master{
		RestServer: RestServer{
			Config:     cfg,
			DataClient: data.NoDatabase{},
		},
	}
}

// Open connects the data store and loads the model.
func (m *Master) Open(ctx context.Context) error {
	var err error
	m.DataClient, err = data.Open(m.Config.Database.DataStore, m.Config.Database.TablePrefix)
	if err != nil {
		return errors.Annotatef(err, "failed to connect data database %s", log.RedactDBURL(m.Config.Database.DataStore))
	}
	if err = m.DataClient.Init(); err != nil {
		return errors.Annotate(err, "failed to init database")
	}
	m.Model, err = LoadModel(ctx, m.DataClient, m.Config)
	if err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Serve loads the model and starts the REST server. It blocks until Shutdown.
func (m *Master) Serve() {
	if err := m.Open(context.Background()); err != nil {
		log.Logger().Fatal("failed to load model", zap.Error(err))
	}
	m.StartHttpServer()
}

// Shutdown stops the REST server and closes the data store.
func (m *Master) Shutdown() {
	if err := m.ShutdownHttpServer(); err != nil {
		log.Logger().Error("failed to shutdown http server", zap.Error(err))
	}
	if err := m.DataClient.Close(); err != nil && !errors.Is(err, data.ErrNoDatabase) {
		log.Logger().Error("failed to close data database", zap.Error(err))
	}
}
