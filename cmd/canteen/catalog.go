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
	"os"
	"strconv"

	"github.com/gorse-io/canteen/base/log"
	"github.com/gorse-io/canteen/logics"
	"github.com/gorse-io/canteen/storage/data"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var catalogCommand = &cobra.Command{
	Use:   "catalog",
	Short: "Query the menu and its order history",
}

var popularCommand = &cobra.Command{
	Use:   "popular",
	Short: "List the most ordered items",
	Run: func(cmd *cobra.Command, args []string) {
		n, _ := cmd.Flags().GetInt("n")
		renderScores("Orders", openCatalog(cmd).PopularByCount(n))
	},
}

var topRatedCommand = &cobra.Command{
	Use:   "top-rated",
	Short: "List the items with the highest mean rating",
	Run: func(cmd *cobra.Command, args []string) {
		n, _ := cmd.Flags().GetInt("n")
		renderScores("Rating", openCatalog(cmd).TopRated(n))
	},
}

var categoryCommand = &cobra.Command{
	Use:   "category CATEGORY",
	Short: "List the items of a category",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "Item")
		for i, itemId := range openCatalog(cmd).ByCategory(args[0]) {
			_ = table.Append([]string{strconv.Itoa(i + 1), itemId})
		}
		if err := table.Render(); err != nil {
			log.Logger().Error("failed to render table", zap.Error(err))
		}
	},
}

func openCatalog(cmd *cobra.Command) *logics.Catalog {
	conf := loadConfig(cmd)
	database := openDatabase(conf)
	defer database.Close()
	_, items, orders, err := data.Load(cmd.Context(), database)
	if err != nil {
		log.Logger().Fatal("failed to load data", zap.Error(err))
	}
	return logics.NewCatalog(items, orders)
}

func renderScores(column string, scores []logics.Score) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Item", column)
	for i, score := range scores {
		_ = table.Append([]string{strconv.Itoa(i + 1), score.Id, strconv.FormatFloat(score.Score, 'f', -1, 64)})
	}
	if err := table.Render(); err != nil {
		log.Logger().Error("failed to render table", zap.Error(err))
	}
}

func init() {
	popularCommand.Flags().IntP("n", "n", 10, "number of items")
	topRatedCommand.Flags().IntP("n", "n", 10, "number of items")
	catalogCommand.AddCommand(popularCommand, topRatedCommand, categoryCommand)
	rootCommand.AddCommand(catalogCommand)
}
