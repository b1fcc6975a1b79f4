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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/model"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/utils/stringutil"
	"github.com/wentaojin/docwh/warehouse"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Staged is a staging file ready for consolidation
type Staged struct {
	Path string
	Rows int64
}

// Stager writes the window of one source collection into a local file
type Stager interface {
	Stage(ctx context.Context, e *export.Export, collection string) (*Staged, error)
	Close(ctx context.Context) error
}

// DocumentSource opens a cursor over a source collection
type DocumentSource interface {
	Find(ctx context.Context, database, collection string, filter bson.D, opts *options.FindOptions) (*mongo.Cursor, error)
}

type mongoSource struct {
	client *mongo.Client
}

func (m *mongoSource) Find(ctx context.Context, database, collection string, filter bson.D, opts *options.FindOptions) (*mongo.Cursor, error) {
	return m.client.Database(database).Collection(collection).Find(ctx, filter, opts)
}

// MongoStager stages source collections, one client per configured source
type MongoStager struct {
	sources     map[string]DocumentSource
	clients     []*mongo.Client
	dir         string
	batchSize   int32
	windowField string
	now         func() time.Time
}

// NewMongoStager connects every configured source
func NewMongoStager(ctx context.Context, opts *configutil.WorkerOptions, sources []*configutil.SourceOptions) (*MongoStager, error) {
	s := newStager(opts, nil)
	for _, src := range sources {
		client, err := model.NewMongoClient(ctx, src.URI)
		if err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("source [%s] connect failed: %w", src.Name, err)
		}
		s.clients = append(s.clients, client)
		s.sources[src.Name] = &mongoSource{client: client}
		logger.Info("source connected", zap.String("source", src.Name))
	}
	return s, nil
}

func newStager(opts *configutil.WorkerOptions, sources map[string]DocumentSource) *MongoStager {
	if sources == nil {
		sources = make(map[string]DocumentSource)
	}
	return &MongoStager{
		sources:     sources,
		dir:         opts.StagingDir,
		batchSize:   opts.StageBatchSize,
		windowField: opts.WindowField,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// StagingFile is <transaction>_<export>_<collection>.ndjson under dir
func StagingFile(dir string, e *export.Export, collection string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s.ndjson", e.Transaction, e.Name, collection))
}

// WindowFilter selects the documents whose field falls in the window, an
// empty field selects the whole collection
func WindowFilter(field string, w export.Window) bson.D {
	if field == "" {
		return bson.D{}
	}
	return bson.D{{Key: field, Value: bson.D{
		{Key: "$gte", Value: w.Begin},
		{Key: "$lt", Value: w.End},
	}}}
}

func (s *MongoStager) Stage(ctx context.Context, e *export.Export, collection string) (*Staged, error) {
	src, ok := s.sources[e.Source]
	if !ok {
		return nil, fmt.Errorf("export [%s] source [%s] is not configured on the worker", e.Key().String(), e.Source)
	}
	if err := stringutil.PathNotExistOrCreate(s.dir); err != nil {
		return nil, err
	}

	startTime := time.Now()
	findOpts := options.Find().
		SetBatchSize(s.batchSize).
		SetNoCursorTimeout(true).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := src.Find(ctx, e.Database, collection, WindowFilter(s.windowField, e.Window), findOpts)
	if err != nil {
		return nil, fmt.Errorf("source [%s] collection [%s.%s] find failed: %w", e.Source, e.Database, collection, err)
	}
	defer cursor.Close(ctx)

	path := StagingFile(s.dir, e, collection)
	rows, err := writeStagingFile(ctx, path, cursor, s.now())
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("staging file remove failed", zap.String("file", path), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("source [%s] collection [%s.%s] stage failed: %w", e.Source, e.Database, collection, err)
	}
	logger.Info("source collection staged",
		zap.String("export", e.Key().String()),
		zap.String("collection", collection),
		zap.String("file", path),
		zap.Int64("rows", rows),
		zap.String("cost", time.Since(startTime).String()))
	return &Staged{Path: path, Rows: rows}, nil
}

func writeStagingFile(ctx context.Context, path string, cursor *mongo.Cursor, at time.Time) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := warehouse.NewRowWriter(f)
	for cursor.Next(ctx) {
		payload, err := EncodeDocument(cursor.Current)
		if err != nil {
			return 0, err
		}
		if err = w.Write(warehouse.NewRow(RowID(cursor.Current.Lookup("_id")), payload, at)); err != nil {
			return 0, err
		}
	}
	if err = cursor.Err(); err != nil {
		return 0, err
	}
	if err = w.Flush(); err != nil {
		return 0, err
	}
	return w.Count(), f.Sync()
}

// RowID is the string form of a document _id. ObjectIDs are bare hex, every
// other type carries a type prefix so "5" and 5 stay distinct rows.
func RowID(id bson.RawValue) string {
	switch id.Type {
	case bsontype.ObjectID:
		return id.ObjectID().Hex()
	case bsontype.String:
		return "string:" + id.StringValue()
	case bsontype.Int32:
		return "int:" + strconv.FormatInt(int64(id.Int32()), 10)
	case bsontype.Int64:
		return "int:" + strconv.FormatInt(id.Int64(), 10)
	default:
		return id.Type.String() + ":" + id.String()
	}
}

// EncodeDocument renders a document as relaxed extended JSON
func EncodeDocument(doc bson.Raw) ([]byte, error) {
	return bson.MarshalExtJSON(doc, false, false)
}

func (s *MongoStager) Close(ctx context.Context) error {
	var firstErr error
	for _, c := range s.clients {
		if err := c.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
