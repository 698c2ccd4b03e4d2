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
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorse-io/canteen/base/encoding"
	"github.com/gorse-io/canteen/dataset"
	"github.com/gorse-io/canteen/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

var (
	usersHeader  = []string{"user_id", "age", "gender", "diet_preference", "fav_category"}
	itemsHeader  = []string{"item_id", "category", "price"}
	ordersHeader = []string{"user_id", "item_id", "rating"}
)

// CSV stores data as comma separated files in a directory. Columns are matched by header name,
// so exports with extra columns can be read directly. Orders without a rating column use the
// quantity column as weight.
type CSV struct {
	storage.TablePrefix
	dir string
	mu  sync.Mutex
}

func NewCSV(dir, tablePrefix string) *CSV {
	return &CSV{dir: dir, TablePrefix: storage.TablePrefix(tablePrefix)}
}

func (c *CSV) path(table string) string {
	return filepath.Join(c.dir, table+".csv")
}

// Init creates the directory and empty files with headers.
func (c *CSV) Init() error {
	if err := os.MkdirAll(c.dir, os.ModePerm); err != nil {
		return errors.Trace(err)
	}
	for table, header := range c.headers() {
		if err := c.appendRows(table, header, nil); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (c *CSV) headers() map[string][]string {
	return map[string][]string{
		c.UsersTable():  usersHeader,
		c.ItemsTable():  itemsHeader,
		c.OrdersTable(): ordersHeader,
	}
}

func (c *CSV) Ping() error {
	info, err := os.Stat(c.dir)
	if err != nil {
		return errors.Trace(err)
	}
	if !info.IsDir() {
		return errors.NotValidf("data directory %s", c.dir)
	}
	return nil
}

func (c *CSV) Close() error {
	return nil
}

// Purge removes all files.
func (c *CSV) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for table := range c.headers() {
		if err := os.Remove(c.path(table)); err != nil && !os.IsNotExist(err) {
			return errors.Trace(err)
		}
	}
	return nil
}

// BatchInsertUsers appends users. Readers keep the first row of a user.
func (c *CSV) BatchInsertUsers(_ context.Context, users []dataset.User) error {
	defer func(start time.Time) {
		BatchInsertUsersSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())
	return c.appendRows(c.UsersTable(), usersHeader, lo.Map(users, func(user dataset.User, _ int) []string {
		return []string{user.UserId, user.Age, user.Gender, user.DietPreference, user.FavCategory}
	}))
}

// BatchInsertItems appends items. Readers keep the first row of an item.
func (c *CSV) BatchInsertItems(_ context.Context, items []dataset.Item) error {
	defer func(start time.Time) {
		BatchInsertItemsSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())
	return c.appendRows(c.ItemsTable(), itemsHeader, lo.Map(items, func(item dataset.Item, _ int) []string {
		return []string{item.ItemId, item.Category, strconv.FormatFloat(item.Price, 'f', -1, 64)}
	}))
}

// BatchInsertOrders appends orders.
func (c *CSV) BatchInsertOrders(_ context.Context, orders []dataset.Interaction) error {
	defer func(start time.Time) {
		BatchInsertOrdersSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())
	return c.appendRows(c.OrdersTable(), ordersHeader, lo.Map(orders, func(order dataset.Interaction, _ int) []string {
		return []string{order.UserId, order.ItemId, encoding.FormatFloat32(order.Rating)}
	}))
}

func (c *CSV) appendRows(table string, header []string, rows [][]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	file, err := os.OpenFile(c.path(table), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return errors.Trace(err)
	}
	w := csv.NewWriter(file)
	if info.Size() == 0 {
		if err = w.Write(header); err != nil {
			return errors.Trace(err)
		}
	}
	if err = w.WriteAll(rows); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(file.Sync())
}

// GetUserStream reads users in batches.
func (c *CSV) GetUserStream(ctx context.Context, batchSize int) (chan []dataset.User, chan error) {
	return csvStream(ctx, c.path(c.UsersTable()), batchSize, func(row csvRow) (dataset.User, error) {
		return dataset.User{
			UserId:         row.get("user_id"),
			Age:            row.get("age"),
			Gender:         row.get("gender"),
			DietPreference: row.get("diet_preference"),
			FavCategory:    row.get("fav_category"),
		}, nil
	})
}

// GetItemStream reads items in batches.
func (c *CSV) GetItemStream(ctx context.Context, batchSize int) (chan []dataset.Item, chan error) {
	return csvStream(ctx, c.path(c.ItemsTable()), batchSize, func(row csvRow) (dataset.Item, error) {
		item := dataset.Item{ItemId: row.get("item_id"), Category: row.get("category")}
		if price := row.get("price"); price != "" {
			var err error
			if item.Price, err = strconv.ParseFloat(price, 64); err != nil {
				return item, errors.NotValidf("price %q", price)
			}
		}
		return item, nil
	})
}

// GetOrderStream reads orders in batches, in file order.
func (c *CSV) GetOrderStream(ctx context.Context, batchSize int) (chan []dataset.Interaction, chan error) {
	return csvStream(ctx, c.path(c.OrdersTable()), batchSize, func(row csvRow) (dataset.Interaction, error) {
		order := dataset.Interaction{UserId: row.get("user_id"), ItemId: row.get("item_id"), Rating: 1}
		column := "rating"
		if !row.has(column) && row.has("quantity") {
			column = "quantity"
		}
		if row.has(column) {
			value := row.get(column)
			if value == "" {
				order.Rating = float32(math.NaN())
			} else if rating, err := strconv.ParseFloat(value, 32); err != nil {
				return order, errors.NotValidf("%s %q", column, value)
			} else {
				order.Rating = float32(rating)
			}
		}
		return order, nil
	})
}

type csvRow struct {
	columns map[string]int
	record  []string
}

func (r csvRow) has(name string) bool {
	_, ok := r.columns[name]
	return ok
}

func (r csvRow) get(name string) string {
	if i, ok := r.columns[name]; ok && i < len(r.record) {
		return strings.TrimSpace(r.record[i])
	}
	return ""
}

func csvStream[T any](ctx context.Context, path string, batchSize int, convert func(csvRow) (T, error)) (chan []T, chan error) {
	dataChan := make(chan []T, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(dataChan)
		defer close(errChan)
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				errChan <- errors.NotFoundf("data file %s", path)
			} else {
				errChan <- errors.Trace(err)
			}
			return
		}
		defer file.Close()
		reader := csv.NewReader(file)
		reader.FieldsPerRecord = -1
		// read header
		header, err := reader.Read()
		if err == io.EOF {
			errChan <- nil
			return
		} else if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		columns := make(map[string]int, len(header))
		for i, name := range header {
			columns[strings.ToLower(strings.TrimSpace(name))] = i
		}
		// read records
		batch := make([]T, 0, batchSize)
		for line := 2; ; line++ {
			record, err := reader.Read()
			if err == io.EOF {
				break
			} else if err != nil {
				errChan <- errors.Trace(err)
				return
			}
			value, err := convert(csvRow{columns: columns, record: record})
			if err != nil {
				errChan <- errors.Annotatef(err, "%s:%d", path, line)
				return
			}
			batch = append(batch, value)
			if len(batch) == batchSize {
				if err = send(ctx, dataChan, batch); err != nil {
					errChan <- err
					return
				}
				batch = make([]T, 0, batchSize)
			}
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
