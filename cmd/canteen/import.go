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

	"github.com/gorse-io/canteen/base/log"
	"github.com/gorse-io/canteen/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const importBatchSize = 1000

var importCommand = &cobra.Command{
	Use:   "import SOURCE",
	Short: "Copy users, items and orders from another data store",
	Long: `Copy users, items and orders from another data store into the configured one.
SOURCE is a data store URL, for example csv:///path/to/dir or sqlite:///path/to/canteen.db.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		conf := loadConfig(cmd)
		source, err := data.Open(args[0], "")
		if err != nil {
			log.Logger().Fatal("failed to open source", zap.String("source", log.RedactDBURL(args[0])), zap.Error(err))
		}
		defer source.Close()
		target := openDatabase(conf)
		defer target.Close()
		if err = target.Init(); err != nil {
			log.Logger().Fatal("failed to init data store", zap.Error(err))
		}
		if purge, _ := cmd.Flags().GetBool("purge"); purge {
			if err = target.Purge(); err != nil {
				log.Logger().Fatal("failed to purge data store", zap.Error(err))
			}
		}

		users, items, orders, err := data.Load(ctx, source)
		if err != nil {
			log.Logger().Fatal("failed to load source", zap.Error(err))
		}
		if err = importBatches(ctx, "Users", users, target.BatchInsertUsers); err != nil {
			log.Logger().Fatal("failed to import users", zap.Error(err))
		}
		if err = importBatches(ctx, "Items", items, target.BatchInsertItems); err != nil {
			log.Logger().Fatal("failed to import items", zap.Error(err))
		}
		if err = importBatches(ctx, "Orders", orders, target.BatchInsertOrders); err != nil {
			log.Logger().Fatal("failed to import orders", zap.Error(err))
		}
	},
}

func importBatches[T any](ctx context.Context, description string, rows []T, insert func(context.Context, []T) error) error {
	bar := progressbar.Default(int64(len(rows)), description)
	defer func() { _ = bar.Finish() }()
	for _, chunk := range lo.Chunk(rows, importBatchSize) {
		if err := insert(ctx, chunk); err != nil {
			return errors.Trace(err)
		}
		_ = bar.Add(len(chunk))
	}
	return nil
}

func init() {
	importCommand.Flags().Bool("purge", false, "purge the data store before importing")
	rootCommand.AddCommand(importCommand)
}
