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
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/utils/constant"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type RWExport struct {
	common.MongoDB
}

func NewExportRW(db *mongo.Database) *RWExport {
	return &RWExport{common.WarpDB(db)}
}

func (rw *RWExport) coll() *mongo.Collection {
	return rw.C(constant.CollectionExports)
}

func keyBSON(key Key, exportField string) bson.D {
	return bson.D{
		{Key: "transaction", Value: key.Transaction},
		{Key: exportField, Value: key.Export},
	}
}

func (rw *RWExport) CreateExport(ctx context.Context, e *Export) (*Export, error) {
	e.Stamp(time.Now().UTC())
	_, err := rw.coll().InsertOne(ctx, e)
	if err != nil {
		return nil, common.WrapMongoError("create", constant.CollectionExports, err)
	}
	return e, nil
}

func (rw *RWExport) GetExport(ctx context.Context, key Key) (*Export, error) {
	var e *Export
	err := rw.coll().FindOne(ctx, keyBSON(key, "name")).Decode(&e)
	if err != nil {
		return nil, common.WrapMongoError("get", constant.CollectionExports, err)
	}
	return e, nil
}

func (rw *RWExport) LatestExport(ctx context.Context, name string) (*Export, error) {
	var e *Export
	err := rw.coll().FindOne(ctx, bson.D{{Key: "name", Value: name}},
		options.FindOne().SetSort(bson.D{{Key: "window.end", Value: -1}})).Decode(&e)
	if err != nil {
		return nil, common.WrapMongoError("latest", constant.CollectionExports, err)
	}
	return e, nil
}

func (rw *RWExport) ListExport(ctx context.Context, name string, page, pageSize int) ([]*Export, error) {
	filter := bson.D{}
	if name != "" {
		filter = append(filter, bson.E{Key: "name", Value: name})
	}
	skip, limit := common.Page(page, pageSize)
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetSkip(skip)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := rw.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, common.WrapMongoError("list", constant.CollectionExports, err)
	}
	var dataS []*Export
	if err = cur.All(ctx, &dataS); err != nil {
		return nil, common.WrapMongoError("list", constant.CollectionExports, err)
	}
	return dataS, nil
}

func (rw *RWExport) TouchExport(ctx context.Context, key Key) error {
	res, err := rw.coll().UpdateOne(ctx, keyBSON(key, "name"), bson.D{
		{Key: "$inc", Value: bson.D{{Key: "revision", Value: int64(1)}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
	})
	if err != nil {
		return common.WrapMongoError("touch", constant.CollectionExports, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("touch collection [%s] record [%s] failed: %w", constant.CollectionExports, key.String(), common.ErrRecordNotFound)
	}
	return nil
}

type RWEvent struct {
	common.MongoDB
}

func NewEventRW(db *mongo.Database) *RWEvent {
	return &RWEvent{common.WarpDB(db)}
}

func (rw *RWEvent) coll() *mongo.Collection {
	return rw.C(constant.CollectionExportEvents)
}

func (rw *RWEvent) CreateEvent(ctx context.Context, e *Event) (*Event, error) {
	e.Stamp(time.Now().UTC())
	_, err := rw.coll().InsertOne(ctx, e)
	if err != nil {
		return nil, common.WrapMongoError("create", constant.CollectionExportEvents, err)
	}
	return e, nil
}

func (rw *RWEvent) GetEvent(ctx context.Context, key Key) (*Event, error) {
	var e *Event
	err := rw.coll().FindOne(ctx, keyBSON(key, "_export")).Decode(&e)
	if err != nil {
		return nil, common.WrapMongoError("get", constant.CollectionExportEvents, err)
	}
	return e, nil
}

func (rw *RWEvent) ListEvent(ctx context.Context, filter *EventFilter, page, pageSize int) ([]*Event, error) {
	f := bson.D{}
	if filter != nil {
		if filter.Transaction != "" {
			f = append(f, bson.E{Key: "transaction", Value: filter.Transaction})
		}
		if filter.Export != "" {
			f = append(f, bson.E{Key: "_export", Value: filter.Export})
		}
		if filter.Kind != "" {
			f = append(f, bson.E{Key: "kind", Value: filter.Kind})
		}
	}
	skip, limit := common.Page(page, pageSize)
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetSkip(skip)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := rw.coll().Find(ctx, f, opts)
	if err != nil {
		return nil, common.WrapMongoError("list", constant.CollectionExportEvents, err)
	}
	var dataS []*Event
	if err = cur.All(ctx, &dataS); err != nil {
		return nil, common.WrapMongoError("list", constant.CollectionExportEvents, err)
	}
	return dataS, nil
}
