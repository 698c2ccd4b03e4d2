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
	"time"

	"github.com/gorse-io/canteen/dataset"
	"github.com/gorse-io/canteen/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoUser struct {
	UserId         string `bson:"_id"`
	Age            string `bson:"age"`
	Gender         string `bson:"gender"`
	DietPreference string `bson:"diet_preference"`
	FavCategory    string `bson:"fav_category"`
}

type mongoItem struct {
	ItemId   string  `bson:"_id"`
	Category string  `bson:"category"`
	Price    float64 `bson:"price"`
}

type mongoOrder struct {
	UserId string  `bson:"user_id"`
	ItemId string  `bson:"item_id"`
	Rating float32 `bson:"rating"`
}

// MongoDB is the data storage based on MongoDB.
type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string
}

// Init collections and indices in MongoDB.
func (db *MongoDB) Init() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	// list collections
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	// create collections
	for _, name := range []string{db.UsersTable(), db.ItemsTable(), db.OrdersTable()} {
		if !lo.Contains(collections, name) {
			if err = d.CreateCollection(ctx, name); err != nil {
				return errors.Trace(err)
			}
		}
	}
	// create index
	_, err = d.Collection(db.OrdersTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.M{
			"user_id": 1,
		},
	})
	return errors.Trace(err)
}

func (db *MongoDB) Ping() error {
	return errors.Trace(db.client.Ping(context.Background(), nil))
}

// Close connection to MongoDB.
func (db *MongoDB) Close() error {
	return errors.Trace(db.client.Disconnect(context.Background()))
}

// Purge deletes all documents.
func (db *MongoDB) Purge() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	for _, name := range []string{db.UsersTable(), db.ItemsTable(), db.OrdersTable()} {
		if _, err := d.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// BatchInsertUsers inserts users into MongoDB. Existing users are overwritten.
func (db *MongoDB) BatchInsertUsers(ctx context.Context, users []dataset.User) error {
	if len(users) == 0 {
		return nil
	}
	defer func(start time.Time) {
		BatchInsertUsersSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())
	c := db.client.Database(db.dbName).Collection(db.UsersTable())
	var models []mongo.WriteModel
	for _, user := range users {
		models = append(models, mongo.NewReplaceOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"_id": bson.M{"$eq": user.UserId}}).
			SetReplacement(mongoUser{
				UserId:         user.UserId,
				Age:            user.Age,
				Gender:         user.Gender,
				DietPreference: user.DietPreference,
				FavCategory:    user.FavCategory,
			}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

// BatchInsertItems inserts items into MongoDB. Existing items are overwritten.
func (db *MongoDB) BatchInsertItems(ctx context.Context, items []dataset.Item) error {
	if len(items) == 0 {
		return nil
	}
	defer func(start time.Time) {
		BatchInsertItemsSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())
	c := db.client.Database(db.dbName).Collection(db.ItemsTable())
	var models []mongo.WriteModel
	for _, item := range items {
		models = append(models, mongo.NewReplaceOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"_id": bson.M{"$eq": item.ItemId}}).
			SetReplacement(mongoItem{ItemId: item.ItemId, Category: item.Category, Price: item.Price}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

// BatchInsertOrders appends orders to MongoDB.
func (db *MongoDB) BatchInsertOrders(ctx context.Context, orders []dataset.Interaction) error {
	if len(orders) == 0 {
		return nil
	}
	defer func(start time.Time) {
		BatchInsertOrdersSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())
	c := db.client.Database(db.dbName).Collection(db.OrdersTable())
	docs := lo.Map(orders, func(order dataset.Interaction, _ int) any {
		return mongoOrder{UserId: order.UserId, ItemId: order.ItemId, Rating: order.Rating}
	})
	_, err := c.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return errors.Trace(err)
}

// GetUserStream reads users from MongoDB in batches.
func (db *MongoDB) GetUserStream(ctx context.Context, batchSize int) (chan []dataset.User, chan error) {
	return mongoStream(ctx, db.client.Database(db.dbName).Collection(db.UsersTable()), batchSize,
		func(doc mongoUser) dataset.User {
			return dataset.User{
				UserId:         doc.UserId,
				Age:            doc.Age,
				Gender:         doc.Gender,
				DietPreference: doc.DietPreference,
				FavCategory:    doc.FavCategory,
			}
		})
}

// GetItemStream reads items from MongoDB in batches.
func (db *MongoDB) GetItemStream(ctx context.Context, batchSize int) (chan []dataset.Item, chan error) {
	return mongoStream(ctx, db.client.Database(db.dbName).Collection(db.ItemsTable()), batchSize,
		func(doc mongoItem) dataset.Item {
			return dataset.Item{ItemId: doc.ItemId, Category: doc.Category, Price: doc.Price}
		})
}

// GetOrderStream reads orders from MongoDB in insertion order.
func (db *MongoDB) GetOrderStream(ctx context.Context, batchSize int) (chan []dataset.Interaction, chan error) {
	return mongoStream(ctx, db.client.Database(db.dbName).Collection(db.OrdersTable()), batchSize,
		func(doc mongoOrder) dataset.Interaction {
			return dataset.Interaction{UserId: doc.UserId, ItemId: doc.ItemId, Rating: doc.Rating}
		})
}

func mongoStream[D, T any](ctx context.Context, c *mongo.Collection, batchSize int, convert func(D) T) (chan []T, chan error) {
	dataChan := make(chan []T, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(dataChan)
		defer close(errChan)
		opt := options.Find()
		opt.SetSort(bson.D{{Key: "_id", Value: 1}})
		opt.SetBatchSize(int32(batchSize))
		r, err := c.Find(ctx, bson.M{}, opt)
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		defer r.Close(ctx)
		batch := make([]T, 0, batchSize)
		for r.Next(ctx) {
			var doc D
			if err = r.Decode(&doc); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			batch = append(batch, convert(doc))
			if len(batch) == batchSize {
				if err = send(ctx, dataChan, batch); err != nil {
					errChan <- err
					return
				}
				batch = make([]T, 0, batchSize)
			}
		}
		if err = r.Err(); err != nil {
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
