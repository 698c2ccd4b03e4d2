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
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gorse-io/canteen/base/log"
	"github.com/gorse-io/canteen/cmd/version"
	"github.com/gorse-io/canteen/config"
	"github.com/gorse-io/canteen/dataset"
	"github.com/gorse-io/canteen/model"
	"github.com/gorse-io/canteen/storage/data"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "canteen",
	Short: "Hybrid food recommender for canteens.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show the version of canteen",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
		fmt.Println("Bundle version:\t", model.BundleVersion)
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.AddCommand(versionCommand)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCommand.ExecuteContext(ctx); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
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

func openDatabase(conf *config.Config) data.Database {
	log.Logger().Info("connect data store", zap.String("data_store", log.RedactDBURL(conf.Database.DataStore)))
	database, err := data.Open(conf.Database.DataStore, conf.Database.TablePrefix)
	if err != nil {
		log.Logger().Fatal("failed to connect data store", zap.Error(err))
	}
	return database
}

func loadDataset(ctx context.Context, conf *config.Config, database data.Database) (*dataset.Dataset, error) {
	aggregation, err := dataset.ParseAggregation(conf.Database.Aggregation)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return data.LoadDataset(ctx, database, aggregation)
}

func modelParams(conf config.ModelConfig) model.Params {
	return model.Params{
		model.NFactors:    conf.NFactors,
		model.NEpochs:     conf.NEpochs,
		model.Lr:          conf.Lr,
		model.Reg:         conf.Reg,
		model.InitStdDev:  conf.InitStdDev,
		model.MaxSampled:  conf.MaxSampled,
		model.Margin:      conf.Margin,
		model.RandomState: conf.RandomState,
	}
}
