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

package data

import (
	"context"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/gorse-io/canteen/base/log"
	"github.com/gorse-io/canteen/dataset"
	"github.com/gorse-io/canteen/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const batchSize = 1024

// Database stores the users, items and orders a model is trained on.
type Database interface {
	Init() error
	Ping() error
	Close() error
	Purge() error
	BatchInsertUsers(ctx context.Context, users []dataset.User) error
	BatchInsertItems(ctx context.Context, items []dataset.Item) error
	BatchInsertOrders(ctx context.Context, orders []dataset.Interaction) error
	GetUserStream(ctx context.Context, batchSize int) (chan []dataset.User, chan error)
	GetItemStream(ctx context.Context, batchSize int) (chan []dataset.Item, chan error)
	GetOrderStream(ctx context.Context, batchSize int) (chan []dataset.Interaction, chan error)
}

// Open a connection to a database.
func Open(path, tablePrefix string) (Database, error) {
	var err error
	if strings.HasPrefix(path, storage.MySQLPrefix) {
		name := path[len(storage.MySQLPrefix):]
		// append parameters
		if name, err = storage.AppendMySQLParams(name, map[string]string{
			"sql_mode":  "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
			"parseTime": "true",
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		database := new(SQLDatabase)
		database.driver = MySQL
		if database.client, err = otelsql.Open("mysql", name,
			otelsql.WithAttributes(attribute.String("db.system", "mysql")),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.PostgresPrefix) || strings.HasPrefix(path, storage.PostgreSQLPrefix) {
		database := new(SQLDatabase)
		database.driver = Postgres
		if database.client, err = otelsql.Open("postgres", path,
			otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.MongoPrefix) || strings.HasPrefix(path, storage.MongoSrvPrefix) {
		// connect to database
		database := new(MongoDB)
		opts := options.Client()
		opts.Monitor = otelmongo.NewMonitor()
		opts.ApplyURI(path)
		if database.client, err = mongo.Connect(context.Background(), opts); err != nil {
			return nil, errors.Trace(err)
		}
		// parse DSN and extract database name
		if cs, err := connstring.ParseAndValidate(path); err != nil {
			return nil, errors.Trace(err)
		} else {
			database.dbName = cs.Database
			database.TablePrefix = storage.TablePrefix(tablePrefix)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.SQLitePrefix) {
		// append parameters
		if path, err = storage.AppendURLParams(path, []lo.Tuple2[string, string]{
			{"_pragma", "busy_timeout(10000)"},
			{"_pragma", "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		name := path[len(storage.SQLitePrefix):]
		database := new(SQLDatabase)
		database.driver = SQLite
		if database.client, err = otelsql.Open("sqlite", name,
			otelsql.WithAttributes(attribute.String("db.system", "sqlite")),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: database.client}, storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.CSVPrefix) {
		return NewCSV(path[len(storage.CSVPrefix):], tablePrefix), nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}

// Load reads all users, items and orders from a database.
func Load(ctx context.Context, database Database) ([]dataset.User, []dataset.Item, []dataset.Interaction, error) {
	start := time.Now()
	users, err := drain(database.GetUserStream(ctx, batchSize))
	if err != nil {
		return nil, nil, nil, errors.Annotate(err, "load users")
	}
	items, err := drain(database.GetItemStream(ctx, batchSize))
	if err != nil {
		return nil, nil, nil, errors.Annotate(err, "load items")
	}
	orders, err := drain(database.GetOrderStream(ctx, batchSize))
	if err != nil {
		return nil, nil, nil, errors.Annotate(err, "load orders")
	}
	LoadSeconds.Observe(time.Since(start).Seconds())
	log.Logger().Info("load data",
		zap.Int("n_users", len(users)),
		zap.Int("n_items", len(items)),
		zap.Int("n_orders", len(orders)),
		zap.Duration("duration", time.Since(start)))
	return users, items, orders, nil
}

// LoadDataset reads a database and builds a dataset from it.
func LoadDataset(ctx context.Context, database Database, aggregation dataset.Aggregation) (*dataset.Dataset, error) {
	users, items, orders, err := Load(ctx, database)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return dataset.NewDatasetWithAggregation(users, items, orders, aggregation)
}

func drain[T any](dataChan chan []T, errChan chan error) ([]T, error) {
	var all []T
	for batch := range dataChan {
		all = append(all, batch...)
	}
	if err := <-errChan; err != nil {
		return nil, errors.Trace(err)
	}
	return all, nil
}

// send a batch unless the context is done.
func send[T any](ctx context.Context, dataChan chan []T, batch []T) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	select {
	case dataChan <- batch:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}
