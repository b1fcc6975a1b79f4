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
package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/model/task"
	"github.com/wentaojin/docwh/model/worker"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/utils/constant"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"
)

// IDatabase is the orchestration store
type IDatabase interface {
	// Transaction runs fc in one atomic, isolated, majority-durable
	// transaction. Calls made with txnCtx join it, a nested Transaction call
	// joins the outer one.
	Transaction(ctx context.Context, fc func(txnCtx context.Context) error) error
	GetITaskRW() task.ITask
	GetIExportRW() export.IExport
	GetIEventRW() export.IEvent
	GetIWorkerRW() worker.IWorker
	Close(ctx context.Context) error
}

type database struct {
	client   *mongo.Client
	base     *mongo.Database
	taskRW   task.ITask
	exportRW export.IExport
	eventRW  export.IEvent
	workerRW worker.IWorker
}

// CreateDatabaseConnection create database connection, the master role also
// ensures the collection indexes
func CreateDatabaseConnection(ctx context.Context, cfg *configutil.DatabaseOptions, addRole string) (IDatabase, error) {
	cfg.WithDefaults()

	client, err := NewMongoClient(ctx, cfg.URI,
		options.Client().
			SetConnectTimeout(cfg.ConnectTimeout).
			SetMaxPoolSize(cfg.MaxPoolSize).
			SetMinPoolSize(cfg.MinPoolSize).
			SetMaxConnIdleTime(cfg.MaxConnIdleTime))
	if err != nil {
		return nil, err
	}

	d := &database{
		client: client,
		base:   client.Database(cfg.Database),
	}
	d.initReaderWriters()

	if strings.EqualFold(addRole, constant.DefaultInstanceRoleMaster) {
		startTime := time.Now()
		logger.Info("database index migrate starting", zap.String("database", cfg.Database))
		if err = d.migrateIndexes(ctx); err != nil {
			return nil, fmt.Errorf("database [%s] migrate indexes failed, database error: [%v]", cfg.Database, err)
		}
		logger.Info("database index migrate end", zap.String("database", cfg.Database), zap.String("cost", time.Since(startTime).String()))
	}
	return d, nil
}

// NewMongoClient connects and pings, extra options are applied after the defaults
func NewMongoClient(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(uri).
		SetConnectTimeout(configutil.DefaultDatabaseConnectTimeout).
		SetMaxPoolSize(configutil.DefaultDatabaseMaxPoolSize).
		SetMinPoolSize(configutil.DefaultDatabaseMinPoolSize).
		SetMaxConnIdleTime(configutil.DefaultDatabaseMaxConnIdleTime).
		SetRetryWrites(true).
		SetRetryReads(true).
		SetCompressors([]string{"snappy", "zlib"})
	client, err := mongo.Connect(ctx, append([]*options.ClientOptions{opts}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("database open failed, database error: [%v]", err)
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("database ping failed, database error: [%v]", err)
	}
	return client, nil
}

func (d *database) initReaderWriters() {
	d.taskRW = task.NewTaskRW(d.base)
	d.exportRW = export.NewExportRW(d.base)
	d.eventRW = export.NewEventRW(d.base)
	d.workerRW = worker.NewWorkerRW(d.base)
}

func (d *database) migrateIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		constant.CollectionTasks: {
			{
				Keys:    bson.D{{Key: "transaction", Value: 1}, {Key: "_export", Value: 1}, {Key: "_collection", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "worker", Value: 1}, {Key: "status", Value: 1}}},
		},
		constant.CollectionExports: {
			{
				Keys:    bson.D{{Key: "transaction", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "name", Value: 1}, {Key: "window.end", Value: -1}}},
		},
		constant.CollectionExportEvents: {
			{
				Keys:    bson.D{{Key: "transaction", Value: 1}, {Key: "_export", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		constant.CollectionWorkers: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
	for coll, models := range indexes {
		if _, err := d.base.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("collection [%s] create indexes failed: %v", coll, err)
		}
	}
	return nil
}

// Transaction runs fc with majority write concern and snapshot reads on the
// primary. Write conflicts and other transient transaction errors make the
// driver rerun fc, so fc must not keep state across attempts.
func (d *database) Transaction(ctx context.Context, fc func(txnCtx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fc(ctx)
	}

	sess, err := d.client.StartSession()
	if err != nil {
		return fmt.Errorf("database start session failed: %v", err)
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().
		SetWriteConcern(writeconcern.Majority()).
		SetReadConcern(readconcern.Snapshot()).
		SetReadPreference(readpref.Primary())

	_, err = sess.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fc(common.CtxWithTransaction(sessCtx))
	}, txnOpts)
	return err
}

func (d *database) GetITaskRW() task.ITask {
	return d.taskRW
}

func (d *database) GetIExportRW() export.IExport {
	return d.exportRW
}

func (d *database) GetIEventRW() export.IEvent {
	return d.eventRW
}

func (d *database) GetIWorkerRW() worker.IWorker {
	return d.workerRW
}

func (d *database) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
