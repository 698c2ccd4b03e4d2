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
	"strconv"

	"github.com/gorse-io/canteen/base/log"
	"github.com/gorse-io/canteen/config"
	"github.com/gorse-io/canteen/dataset"
	"github.com/gorse-io/canteen/logics"
	"github.com/gorse-io/canteen/model"
	"github.com/gorse-io/canteen/storage/blob"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var recommendCommand = &cobra.Command{
	Use:   "recommend USER_ID",
	Short: "Recommend items to a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		conf := loadConfig(cmd)
		n, _ := cmd.Flags().GetInt("n")
		if n <= 0 {
			n = conf.Recommend.TopN
		}
		database := openDatabase(conf)
		defer database.Close()
		d, err := loadDataset(ctx, conf, database)
		if err != nil {
			log.Logger().Fatal("failed to load dataset", zap.Error(err))
		}

		recommender := logics.NewRecommender(loadModel(ctx, conf, d), logics.NewPivot(d))
		recommendations, path := recommender.RecommendWithPath(args[0], n)
		items := lo.SliceToMap(d.GetItems(), func(item dataset.Item) (string, dataset.Item) {
			return item.ItemId, item
		})
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "Item", "Category", "Price")
		for i, itemId := range recommendations {
			item := items[itemId]
			_ = table.Append([]string{strconv.Itoa(i + 1), itemId, item.Category, strconv.FormatFloat(item.Price, 'f', 2, 64)})
		}
		if err = table.Render(); err != nil {
			log.Logger().Error("failed to render table", zap.Error(err))
		}
		fmt.Println("Recommended by:", path)
	},
}

// loadModel returns nil if no usable model is found, so that recommendations fall back to
// item similarity and popularity.
func loadModel(ctx context.Context, conf *config.Config, d *dataset.Dataset) *model.HybridFM {
	store, err := blob.Open(conf.Blob)
	if err != nil {
		log.Logger().Fatal("failed to open blob store", zap.Error(err))
	}
	m, err := model.LoadModel(ctx, store, conf.Model.Name)
	if errors.Is(err, errors.NotFound) {
		log.Logger().Warn("model not found, use fallback recommenders", zap.String("name", conf.Model.Name))
		return nil
	} else if errors.Is(err, model.ErrIncompatibleModelVersion) {
		log.Logger().Warn("model is incompatible, retrain it", zap.String("name", conf.Model.Name), zap.Error(err))
		return nil
	} else if err != nil {
		log.Logger().Fatal("failed to load model", zap.Error(err))
	}
	if err = m.CheckVocabulary(d.GetEncoder().Vocabulary()); err != nil {
		log.Logger().Warn("feature tags have changed since training, retrain the model", zap.Error(err))
		return nil
	}
	return m
}

func init() {
	recommendCommand.Flags().IntP("n", "n", 0, "number of recommendations (default to recommend.top_n)")
	rootCommand.AddCommand(recommendCommand)
}
