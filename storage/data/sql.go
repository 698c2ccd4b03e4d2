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
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorse-io/canteen/dataset"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"
)

const bufSize = 1

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

type SQLUser struct {
	UserId         string `gorm:"column:user_id;type:varchar(256);primaryKey"`
	Age            string `gorm:"column:age;type:varchar(256)"`
	Gender         string `gorm:"column:gender;type:varchar(256)"`
	DietPreference string `gorm:"column:diet_preference;type:varchar(256)"`
	FavCategory    string `gorm:"column:fav_category;type:varchar(256)"`
}

type SQLItem struct {
	ItemId   string  `gorm:"column:item_id;type:varchar(256);primaryKey"`
	Category string  `gorm:"column:category;type:varchar(256)"`
	Price    float64 `gorm:"column:price"`
}

type SQLOrder struct {
	OrderId int64   `gorm:"column:order_id;primaryKey;autoIncrement"`
	UserId  string  `gorm:"column:user_id;type:varchar(256);index"`
	ItemId  string  `gorm:"column:item_id;type:varchar(256);index"`
	Rating  float32 `gorm:"column:rating"`
}

// SQLDatabase stores data in MySQL, Postgres or SQLite.
type SQLDatabase struct {
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init creates tables.
func (d *SQLDatabase) Init() error {
	if d.driver == MySQL {
		return errors.Trace(d.gormDB.Set("gorm:table_options", "ENGINE=InnoDB").
			AutoMigrate(&SQLUser{}, &SQLItem{}, &SQLOrder{}))
	}
	return errors.Trace(d.gormDB.AutoMigrate(&SQLUser{}, &SQLItem{}, &SQLOrder{}))
}

func (d *SQLDatabase) Ping() error {
	return errors.Trace(d.client.Ping())
}

func (d *SQLDatabase) Close() error {
	return errors.Trace(d.client.Close())
}

// Purge deletes all rows.
func (d *SQLDatabase) Purge() error {
	db := d.gormDB.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []any{&SQLUser{}, &SQLItem{}, &SQLOrder{}} {
		if err := db.Delete(model).Error; err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// BatchInsertUsers inserts users. Existing users are overwritten.
func (d *SQLDatabase) BatchInsertUsers(ctx context.Context, users []dataset.User) error {
	if len(users) == 0 {
		return nil
	}
	defer func(start time.Time) {
		BatchInsertUsersSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())
	rows := lo.Map(users, func(user dataset.User, _ int) SQLUser {
		return SQLUser{
			UserId:         user.UserId,
			Age:            user.Age,
			Gender:         user.Gender,
			DietPreference: user.DietPreference,
			FavCategory:    user.FavCategory,
		}
	})
	rows = lo.UniqBy(rows, func(row SQLUser) string { return row.UserId })
	return errors.Trace(d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error)
}

// BatchInsertItems inserts items. Existing items are overwritten.
func (d *SQLDatabase) BatchInsertItems(ctx context.Context, items []dataset.Item) error {
	if len(items) == 0 {
		return nil
	}
	defer func(start time.Time) {
		BatchInsertItemsSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())
	rows := lo.Map(items, func(item dataset.Item, _ int) SQLItem {
		return SQLItem{ItemId: item.ItemId, Category: item.Category, Price: item.Price}
	})
	rows = lo.UniqBy(rows, func(row SQLItem) string { return row.ItemId })
	return errors.Trace(d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error)
}

// BatchInsertOrders appends orders.
func (d *SQLDatabase) BatchInsertOrders(ctx context.Context, orders []dataset.Interaction) error {
	if len(orders) == 0 {
		return nil
	}
	defer func(start time.Time) {
		BatchInsertOrdersSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())
	rows := lo.Map(orders, func(order dataset.Interaction, _ int) SQLOrder {
		return SQLOrder{UserId: order.UserId, ItemId: order.ItemId, Rating: order.Rating}
	})
	return errors.Trace(d.gormDB.WithContext(ctx).Create(&rows).Error)
}

// GetUserStream reads users in batches.
func (d *SQLDatabase) GetUserStream(ctx context.Context, batchSize int) (chan []dataset.User, chan error) {
	return sqlStream(ctx, d.gormDB.WithContext(ctx).Model(&SQLUser{}).Order("user_id"), batchSize,
		func(row SQLUser) dataset.User {
			return dataset.User{
				UserId:         row.UserId,
				Age:            row.Age,
				Gender:         row.Gender,
				DietPreference: row.DietPreference,
				FavCategory:    row.FavCategory,
			}
		})
}

// GetItemStream reads items in batches.
func (d *SQLDatabase) GetItemStream(ctx context.Context, batchSize int) (chan []dataset.Item, chan error) {
	return sqlStream(ctx, d.gormDB.WithContext(ctx).Model(&SQLItem{}).Order("item_id"), batchSize,
		func(row SQLItem) dataset.Item {
			return dataset.Item{ItemId: row.ItemId, Category: row.Category, Price: row.Price}
		})
}

// GetOrderStream reads orders in batches, oldest first.
func (d *SQLDatabase) GetOrderStream(ctx context.Context, batchSize int) (chan []dataset.Interaction, chan error) {
	return sqlStream(ctx, d.gormDB.WithContext(ctx).Model(&SQLOrder{}).Order("order_id"), batchSize,
		func(row SQLOrder) dataset.Interaction {
			return dataset.Interaction{UserId: row.UserId, ItemId: row.ItemId, Rating: row.Rating}
		})
}

func sqlStream[R, T any](ctx context.Context, query *gorm.DB, batchSize int, convert func(R) T) (chan []T, chan error) {
	dataChan := make(chan []T, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(dataChan)
		defer close(errChan)
		// send query
		result, err := query.Rows()
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		defer result.Close()
		// fetch result
		batch := make([]T, 0, batchSize)
		for result.Next() {
			var row R
			if err = query.ScanRows(result, &row); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			batch = append(batch, convert(row))
			if len(batch) == batchSize {
				if err = send(ctx, dataChan, batch); err != nil {
					errChan <- err
					return
				}
				batch = make([]T, 0, batchSize)
			}
		}
		if err = result.Err(); err != nil {
			errChan <- errors.Trace(err)
			return
		}
		if len(batch) > 0 {
			if err = send(ctx, dataChan, batch); err != nil {
				errChan <- err
				return
			}
		}
		errChan <- nil
	}()
	return dataChan, errChan
}
