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
package task

import (
	"context"
	"time"

	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/utils/constant"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type RWTask struct {
	common.MongoDB
}

func NewTaskRW(db *mongo.Database) *RWTask {
	m := &RWTask{
		common.WarpDB(db),
	}
	return m
}

func (rw *RWTask) coll() *mongo.Collection {
	return rw.C(constant.CollectionTasks)
}

func (rw *RWTask) CreateTask(ctx context.Context, tasks []*Task) ([]*Task, error) {
	if len(tasks) == 0 {
		return tasks, nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(tasks))
	for _, t := range tasks {
		t.Stamp(now)
		docs = append(docs, t)
	}
	_, err := rw.coll().InsertMany(ctx, docs)
	if err != nil {
		return nil, common.WrapMongoError("create", constant.CollectionTasks, err)
	}
	return tasks, nil
}

func (rw *RWTask) GetTask(ctx context.Context, key Key) (*Task, error) {
	var t *Task
	err := rw.coll().FindOne(ctx, (&Filter{Transaction: key.Transaction, Export: key.Export, Collection: key.Collection}).BSON()).Decode(&t)
	if err != nil {
		return nil, common.WrapMongoError("get", constant.CollectionTasks, err)
	}
	return t, nil
}

func (rw *RWTask) ListTask(ctx context.Context, filter *Filter, page, pageSize int) ([]*Task, error) {
	skip, limit := common.Page(page, pageSize)
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetSkip(skip)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := rw.coll().Find(ctx, filter.BSON(), opts)
	if err != nil {
		return nil, common.WrapMongoError("list", constant.CollectionTasks, err)
	}
	var dataS []*Task
	if err = cur.All(ctx, &dataS); err != nil {
		return nil, common.WrapMongoError("list", constant.CollectionTasks, err)
	}
	return dataS, nil
}

func (rw *RWTask) CountTask(ctx context.Context, filter *Filter) (int64, error) {
	n, err := rw.coll().CountDocuments(ctx, filter.BSON())
	if err != nil {
		return 0, common.WrapMongoError("count", constant.CollectionTasks, err)
	}
	return n, nil
}

func (rw *RWTask) UpdateTask(ctx context.Context, filter *Filter, update *Update) (int64, error) {
	res, err := rw.coll().UpdateMany(ctx, filter.BSON(), update.BSON(time.Now().UTC()))
	if err != nil {
		return 0, common.WrapMongoError("update", constant.CollectionTasks, err)
	}
	return res.MatchedCount, nil
}

func (rw *RWTask) ClaimTask(ctx context.Context, filter *Filter, update *Update) (*Task, error) {
	var t *Task
	err := rw.coll().FindOneAndUpdate(ctx, filter.BSON(), update.BSON(time.Now().UTC()),
		options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "_id", Value: 1}}).
			SetReturnDocument(options.After)).Decode(&t)
	if err != nil {
		return nil, common.WrapMongoError("claim", constant.CollectionTasks, err)
	}
	return t, nil
}

func (f *Filter) BSON() bson.D {
	d := bson.D{}
	if f == nil {
		return d
	}
	if f.Transaction != "" {
		d = append(d, bson.E{Key: "transaction", Value: f.Transaction})
	}
	if f.Export != "" {
		d = append(d, bson.E{Key: "_export", Value: f.Export})
	}
	if f.Collection != "" {
		d = append(d, bson.E{Key: "_collection", Value: f.Collection})
	}
	switch {
	case f.Unbound:
		d = append(d, bson.E{Key: "worker", Value: ""})
	case f.Worker != "":
		d = append(d, bson.E{Key: "worker", Value: f.Worker})
	}
	if f.Epoch != 0 {
		d = append(d, bson.E{Key: "epoch", Value: f.Epoch})
	}
	if len(f.Statuses) > 0 {
		d = append(d, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: f.Statuses}}})
	}
	return d
}

func (u *Update) BSON(now time.Time) bson.D {
	set := bson.D{{Key: "updatedAt", Value: now}}
	if u.Status != "" {
		set = append(set, bson.E{Key: "status", Value: u.Status})
	}
	if u.Worker != nil {
		set = append(set, bson.E{Key: "worker", Value: *u.Worker})
	}
	if u.Error != nil {
		set = append(set, bson.E{Key: "error", Value: *u.Error})
	}
	if u.StartTime != nil {
		set = append(set, bson.E{Key: "startTime", Value: *u.StartTime})
	}
	if u.EndTime != nil {
		set = append(set, bson.E{Key: "endTime", Value: *u.EndTime})
	}
	d := bson.D{{Key: "$set", Value: set}}
	if u.IncEpoch {
		d = append(d, bson.E{Key: "$inc", Value: bson.D{{Key: "epoch", Value: int64(1)}}})
	}
	return d
}
