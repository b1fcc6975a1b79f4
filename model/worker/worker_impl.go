/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package worker

import (
	"context"
	"regexp"
	"time"

	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/utils/constant"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type RWWorker struct {
	common.MongoDB
}

func NewWorkerRW(db *mongo.Database) *RWWorker {
	return &RWWorker{common.WarpDB(db)}
}

func (rw *RWWorker) coll() *mongo.Collection {
	return rw.C(constant.CollectionWorkers)
}

func (rw *RWWorker) UpsertWorker(ctx context.Context, w *Worker) (*Worker, error) {
	now := time.Now().UTC()
	if w.LastSeen.IsZero() {
		w.LastSeen = now
	}
	var dataS *Worker
	err := rw.coll().FindOneAndUpdate(ctx,
		bson.D{{Key: "name", Value: w.Name}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "addr", Value: w.Addr},
				{Key: "capacity", Value: w.Capacity},
				{Key: "lastSeen", Value: w.LastSeen},
				{Key: "updatedAt", Value: now},
			}},
			{Key: "$setOnInsert", Value: bson.D{
				{Key: "_id", Value: primitive.NewObjectIDFromTimestamp(now)},
				{Key: "createdAt", Value: now},
			}},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).Decode(&dataS)
	if err != nil {
		return nil, common.WrapMongoError("upsert", constant.CollectionWorkers, err)
	}
	return dataS, nil
}

func (rw *RWWorker) GetWorker(ctx context.Context, name string) (*Worker, error) {
	var dataS *Worker
	err := rw.coll().FindOne(ctx, bson.D{{Key: "name", Value: name}}).Decode(&dataS)
	if err != nil {
		return nil, common.WrapMongoError("get", constant.CollectionWorkers, err)
	}
	return dataS, nil
}

func (rw *RWWorker) ListWorker(ctx context.Context, filter *Filter, page, pageSize int) ([]*Worker, error) {
	f := bson.D{}
	if filter != nil {
		if filter.NamePrefix != "" {
			f = append(f, bson.E{Key: "name", Value: bson.D{{Key: "$regex", Value: "^" + regexp.QuoteMeta(filter.NamePrefix)}}})
		}
		if filter.SeenAfter != nil {
			f = append(f, bson.E{Key: "lastSeen", Value: bson.D{{Key: "$gte", Value: *filter.SeenAfter}}})
		}
	}
	skip, limit := common.Page(page, pageSize)
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}}).SetSkip(skip)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := rw.coll().Find(ctx, f, opts)
	if err != nil {
		return nil, common.WrapMongoError("list", constant.CollectionWorkers, err)
	}
	var dataS []*Worker
	if err = cur.All(ctx, &dataS); err != nil {
		return nil, common.WrapMongoError("list", constant.CollectionWorkers, err)
	}
	return dataS, nil
}

func (rw *RWWorker) DeleteWorker(ctx context.Context, name string) error {
	_, err := rw.coll().DeleteOne(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return common.WrapMongoError("delete", constant.CollectionWorkers, err)
	}
	return nil
}
