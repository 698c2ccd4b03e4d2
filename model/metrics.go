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

package model

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FitSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "canteen",
		Subsystem: "model",
		Name:      "fit_seconds",
	})
	FitEpochsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "canteen",
		Subsystem: "model",
		Name:      "fit_epochs_total",
	})
	EpochLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "canteen",
		Subsystem: "model",
		Name:      "epoch_loss",
	})
	ValidationNDCG = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "canteen",
		Subsystem: "model",
		Name:      "validation_ndcg",
	})
	ValidationPrecision = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "canteen",
		Subsystem: "model",
		Name:      "validation_precision",
	})
	ValidationRecall = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "canteen",
		Subsystem: "model",
		Name:      "validation_recall",
	})
)
