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

	"github.com/gorse-io/canteen/base/encoding"
	"github.com/gorse-io/canteen/base/log"
	"github.com/gorse-io/canteen/dataset"
	"github.com/gorse-io/canteen/model"
	"github.com/gorse-io/canteen/storage/blob"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var trainCommand = &cobra.Command{
	Use:   "train",
	Short: "Train the hybrid model and save it to the blob store",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		conf := loadConfig(cmd)
		database := openDatabase(conf)
		defer database.Close()
		d, err := loadDataset(ctx, conf, database)
		if err != nil {
			log.Logger().Fatal("failed to load dataset", zap.Error(err))
		}

		trainSet, testSet := d, (*dataset.Dataset)(nil)
		if conf.Model.TestRatio > 0 {
			trainSet, testSet = d.Split(conf.Model.TestRatio, conf.Model.RandomState)
		}
		m := model.NewHybridFM(modelParams(conf.Model))
		bar := progressbar.Default(int64(conf.Model.NEpochs), "Training")
		fitConfig := model.NewFitConfig().
			SetJobs(conf.Model.NumJobs).
			SetVerbose(conf.Model.Verbose).
			SetOnEpoch(func(int) { _ = bar.Add(1) })
		fitConfig.TopK = conf.Model.TopK
		score, err := m.Fit(ctx, trainSet, testSet, fitConfig)
		_ = bar.Finish()
		if err != nil {
			log.Logger().Fatal("failed to fit model", zap.Error(err))
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Metric", "Value")
		if testSet != nil {
			topK := strconv.Itoa(conf.Model.TopK)
			_ = table.Append([]string{"NDCG@" + topK, encoding.FormatFloat32(score.NDCG)})
			_ = table.Append([]string{"Precision@" + topK, encoding.FormatFloat32(score.Precision)})
			_ = table.Append([]string{"Recall@" + topK, encoding.FormatFloat32(score.Recall)})
		}
		_ = table.Append([]string{"Loss", encoding.FormatFloat32(score.Loss)})
		if err = table.Render(); err != nil {
			log.Logger().Error("failed to render table", zap.Error(err))
		}

		store, err := blob.Open(conf.Blob)
		if err != nil {
			log.Logger().Fatal("failed to open blob store", zap.Error(err))
		}
		if err = model.SaveModel(ctx, store, conf.Model.Name, m); err != nil {
			log.Logger().Fatal("failed to save model", zap.Error(err))
		}
	},
}

func init() {
	rootCommand.AddCommand(trainCommand)
}
