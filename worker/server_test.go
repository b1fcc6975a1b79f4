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
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/model/memstore"
	"github.com/wentaojin/docwh/model/task"
	"github.com/wentaojin/docwh/service"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/utils/constant"
	"github.com/wentaojin/docwh/warehouse"
	"github.com/wentaojin/docwh/warehouse/sqlite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type fakeSource struct {
	mu      sync.Mutex
	docs    map[string][]interface{}
	failing map[string]error
	filters []bson.D
}

func (f *fakeSource) Find(_ context.Context, _, collection string, filter bson.D, _ *options.FindOptions) (*mongo.Cursor, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	if err, ok := f.failing[collection]; ok {
		return nil, err
	}
	return mongo.NewCursorFromDocuments(f.docs[collection], nil, nil)
}

type harness struct {
	server  *Server
	store   *memstore.Store
	wh      *sqlite.Warehouse
	source  *fakeSource
	staging string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	cfg := NewConfig()
	cfg.WorkerOptions.Name = "worker-1"
	cfg.WorkerOptions.StagingDir = filepath.Join(t.TempDir(), "staging")
	cfg.WorkerOptions.Capacity = 2
	cfg.Warehouse.WithDefaults()
	cfg.Warehouse.RetryAttempts = 3
	cfg.Warehouse.RetryBackoff = time.Millisecond

	wh, err := sqlite.Open(ctx, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { wh.Close() })

	h := &harness{
		store:   memstore.New(),
		wh:      wh,
		staging: cfg.WorkerOptions.StagingDir,
		source: &fakeSource{
			docs: map[string][]interface{}{
				"orders": {
					bson.D{{Key: "_id", Value: "o-1"}, {Key: "total", Value: int32(10)}},
					bson.D{{Key: "_id", Value: "o-2"}, {Key: "total", Value: int32(20)}},
				},
			},
			failing: map[string]error{"customers": errors.New("connection reset by peer")},
		},
	}
	stager := newStager(cfg.WorkerOptions, map[string]DocumentSource{"shop": h.source})
	h.server = NewServer(cfg)
	h.server.init(h.store, stager, wh, nil)
	return h
}

func (h *harness) schedule(t *testing.T, collections ...string) *export.Export {
	t.Helper()
	e, err := h.server.exports.Schedule(context.Background(), &configutil.ExportOptions{
		Name:        "orders",
		Source:      "shop",
		Target:      "Shop Warehouse",
		Database:    "shop",
		Collections: collections,
	})
	require.NoError(t, err)
	return e
}

func TestRunOnceCompletesTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.schedule(t, "orders")

	claimed, err := h.server.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, "orders", claimed.Collection)

	tasks, err := h.server.tasks.ListTask(ctx, &task.Filter{Transaction: e.Transaction}, 0, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, constant.TaskStatusTerminated, tasks[0].Status)
	assert.Equal(t, "worker-1", tasks[0].Worker)

	rows, err := h.wh.Query(ctx, "shop_warehouse", "orders")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "string:o-1", rows[0].RowID)
	assert.JSONEq(t, `{"_id":"o-1","total":10}`, rows[0].Payload)

	_, err = os.Stat(StagingFile(h.staging, e, "orders"))
	assert.True(t, os.IsNotExist(err))

	st, err := h.server.exports.Status(ctx, e.Key())
	require.NoError(t, err)
	assert.Equal(t, constant.ExportStatusTerminated, st.State)
	require.NotNil(t, st.Event)
	assert.Equal(t, constant.ExportEventTerminated, st.Event.Kind)

	_, err = h.server.RunOnce(ctx)
	assert.ErrorIs(t, err, service.ErrNoTaskAvailable)
}

func TestRunOnceRecordsFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	e := h.schedule(t, "orders", "customers")

	for i := 0; i < 2; i++ {
		_, err := h.server.RunOnce(ctx)
		require.NoError(t, err)
	}

	tasks, err := h.server.tasks.ListTask(ctx, &task.Filter{Transaction: e.Transaction}, 0, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, tk := range tasks {
		switch tk.Collection {
		case "customers":
			assert.Equal(t, constant.TaskStatusError, tk.Status)
			assert.Contains(t, tk.Error, "connection reset by peer")
		default:
			assert.Equal(t, constant.TaskStatusTerminated, tk.Status)
		}
	}

	st, err := h.server.exports.Status(ctx, e.Key())
	require.NoError(t, err)
	assert.Equal(t, constant.ExportStatusError, st.State)
	require.NotNil(t, st.Event)
	assert.Equal(t, []string{"customers"}, st.Event.FailedCollections)

	entries, err := os.ReadDir(h.staging)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHeartbeat(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h.server.now = func() time.Time { return first }
	require.NoError(t, h.server.Heartbeat(ctx))

	h.server.now = func() time.Time { return first.Add(time.Minute) }
	require.NoError(t, h.server.Heartbeat(ctx))

	w, err := h.store.GetIWorkerRW().GetWorker(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, 2, w.Capacity)
	assert.True(t, w.LastSeen.Equal(first.Add(time.Minute)))
}

func TestStage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.server.stager.(*MongoStager).windowField = "updatedAt"
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h.server.stager.(*MongoStager).now = func() time.Time { return at }

	win, err := export.NewWindow(at.Add(-time.Hour), at)
	require.NoError(t, err)
	e := &export.Export{Name: "orders", Transaction: "9b1c", Source: "shop", Database: "shop", Window: win}

	staged, err := h.server.stager.Stage(ctx, e, "orders")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.staging, "9b1c_orders_orders.ndjson"), staged.Path)
	assert.Equal(t, int64(2), staged.Rows)
	require.Len(t, h.source.filters, 1)
	assert.Equal(t, WindowFilter("updatedAt", win), h.source.filters[0])

	var rows []*warehouse.Row
	n, err := warehouse.ReadRows(staged.Path, 10, func(batch []*warehouse.Row) error {
		rows = append(rows, batch...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "string:o-2", rows[1].RowID)
	assert.True(t, rows[1].InsertedAt.Equal(at))
	assert.Equal(t, warehouse.NewRow("string:o-2", []byte(rows[1].Payload), at).Hash, rows[1].Hash)

	_, err = h.server.stager.Stage(ctx, &export.Export{Name: "orders", Transaction: "x", Source: "crm"}, "orders")
	assert.ErrorContains(t, err, "source [crm] is not configured")

	_, err = h.server.stager.Stage(ctx, e, "customers")
	assert.ErrorContains(t, err, "connection reset by peer")
}

func TestWindowFilter(t *testing.T) {
	begin := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	end := begin.Add(time.Hour)
	win, err := export.NewWindow(begin, end)
	require.NoError(t, err)

	assert.Empty(t, WindowFilter("", win))
	assert.Equal(t, bson.D{{Key: "updatedAt", Value: bson.D{
		{Key: "$gte", Value: begin},
		{Key: "$lt", Value: end},
	}}}, WindowFilter("updatedAt", win))
}

func TestRowIDAndEncode(t *testing.T) {
	oid := primitive.NewObjectID()
	raw, err := bson.Marshal(bson.D{{Key: "_id", Value: oid}, {Key: "name", Value: "Café"}, {Key: "n", Value: int64(7)}})
	require.NoError(t, err)
	doc := bson.Raw(raw)
	assert.Equal(t, oid.Hex(), RowID(doc.Lookup("_id")))

	payload, err := EncodeDocument(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":{"$oid":"`+oid.Hex()+`"},"name":"Café","n":7}`, string(payload))

	raw, err = bson.Marshal(bson.D{{Key: "_id", Value: int32(42)}})
	require.NoError(t, err)
	assert.Equal(t, "int:42", RowID(bson.Raw(raw).Lookup("_id")))

	raw, err = bson.Marshal(bson.D{{Key: "_id", Value: int64(1) << 40}})
	require.NoError(t, err)
	assert.Equal(t, "int:1099511627776", RowID(bson.Raw(raw).Lookup("_id")))

	raw, err = bson.Marshal(bson.D{{Key: "_id", Value: "5"}})
	require.NoError(t, err)
	assert.Equal(t, "string:5", RowID(bson.Raw(raw).Lookup("_id")))

	raw, err = bson.Marshal(bson.D{{Key: "_id", Value: oid.Hex()}})
	require.NoError(t, err)
	assert.NotEqual(t, oid.Hex(), RowID(bson.Raw(raw).Lookup("_id")))
}

func TestConfigParse(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("DOCWH_WORKER_TEST_URI=mongodb://store:27017\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DOCWH_WORKER_TEST_URI") })

	cfgPath := filepath.Join(dir, "worker.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[worker]
name = "worker-a"
capacity = 4
task-interval = "30s"

[database]
uri = "${DOCWH_WORKER_TEST_URI}/?replicaSet=rs0"

[warehouse]
type = "SQLITE"
path = "/var/lib/docwh"

[[source]]
name = "shop"
uri = "${DOCWH_WORKER_TEST_URI}/shop"

[log]
log-level = "debug"
`), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.Parse([]string{"-config", cfgPath, "-env", envPath, "-name", "worker-b"}))
	assert.Equal(t, "worker-b", cfg.WorkerOptions.Name)
	assert.Equal(t, 4, cfg.WorkerOptions.Capacity)
	assert.Equal(t, 30*time.Second, cfg.WorkerOptions.TaskInterval)
	assert.Equal(t, "mongodb://store:27017/?replicaSet=rs0", cfg.Database.URI)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "mongodb://store:27017/shop", cfg.Sources[0].URI)
	assert.Equal(t, constant.DefaultCatalogRetryAttempts, cfg.Warehouse.RetryAttempts)
	assert.Equal(t, "debug", cfg.LogConfig.LogLevel)
	assert.NotContains(t, cfg.String(), "mongodb://")
}
