// Copyright 2026 gorse Project Authors
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
	"github.com/gorse-io/canteen/base/log"
	"github.com/gorse-io/canteen/dataset"
	"github.com/gorse-io/canteen/logics"
	"github.com/gorse-io/canteen/server"
	"github.com/gorse-io/canteen/storage/data"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations and catalog queries over RESTful APIs",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		conf := loadConfig(cmd)
		if cmd.Flags().Changed("host") {
			conf.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			conf.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		database := openDatabase(conf)
		users, items, orders, err := data.Load(ctx, database)
		if closeErr := database.Close(); closeErr != nil {
			log.Logger().Warn("failed to close data store", zap.Error(closeErr))
		}
		if err != nil {
			log.Logger().Fatal("failed to load data", zap.Error(err))
		}
		aggregation, err := dataset.ParseAggregation(conf.Database.Aggregation)
		if err != nil {
			log.Logger().Fatal("failed to parse aggregation", zap.Error(err))
		}
		d, err := dataset.NewDatasetWithAggregation(users, items, orders, aggregation)
		if err != nil {
			log.Logger().Fatal("failed to build dataset", zap.Error(err))
		}

		s := &server.RestServer{
			Recommender: logics.NewRecommender(loadModel(ctx, conf, d), logics.NewPivot(d)),
			Catalog:     logics.NewCatalog(items, orders),
			Config:      conf,
		}
		if err = s.StartHttpServer(ctx); err != nil {
			log.Logger().Fatal("failed to start http server", zap.Error(err))
		}
	},
}

func init() {
	serveCommand.Flags().String("host", "", "host of the RESTful API server (default to server.host)")
	serveCommand.Flags().Int("port", 0, "port of the RESTful API server (default to server.port)")
	rootCommand.AddCommand(serveCommand)
}
