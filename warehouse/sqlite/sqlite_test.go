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
package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentaojin/docwh/warehouse"
)

type doc struct {
	id      string
	payload string
}

func stage(t *testing.T, at time.Time, docs ...doc) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "*.ndjson")
	require.NoError(t, err)
	defer f.Close()
	w := warehouse.NewRowWriter(f)
	for _, d := range docs {
		require.NoError(t, w.Write(warehouse.NewRow(d.id, []byte(d.payload), at)))
	}
	require.NoError(t, w.Flush())
	return f.Name()
}

func openWarehouse(t *testing.T, dir string) *Warehouse {
	t.Helper()
	wh, err := Open(context.Background(), dir)
	require.NoError(t, err)
	t.Cleanup(func() { wh.Close() })
	return wh
}

func TestMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	wh := openWarehouse(t, t.TempDir())
	c := warehouse.NewConsolidator(wh, &warehouse.RetryConfig{MaxRetries: 3, Delay: time.Millisecond})
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	docs := []doc{{"a", `{"n":1}`}, {"b", `{"n":2}`}, {"c", `{"n":3}`}}
	res, err := c.Consolidate(ctx, &warehouse.Request{Dataset: "Shop", Table: "Orders", Transaction: "t1", File: stage(t, t0, docs...)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Loaded)
	assert.Equal(t, int64(3), res.Merged)

	res, err = c.Consolidate(ctx, &warehouse.Request{Dataset: "Shop", Table: "Orders", Transaction: "t2", File: stage(t, t0.Add(time.Hour), docs...)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Loaded)
	assert.Equal(t, int64(0), res.Merged)

	docs[1].payload = `{"n":20}`
	res, err = c.Consolidate(ctx, &warehouse.Request{Dataset: "Shop", Table: "Orders", Transaction: "t3", File: stage(t, t0.Add(2*time.Hour), docs...)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Merged)

	// back to the first payload: differs from the latest version, so it lands again
	docs[1].payload = `{"n":2}`
	res, err = c.Consolidate(ctx, &warehouse.Request{Dataset: "Shop", Table: "Orders", Transaction: "t4", File: stage(t, t0.Add(3*time.Hour), docs...)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Merged)

	rows, err := wh.Query(ctx, "shop", "orders")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "a", rows[0].RowID)
	assert.Equal(t, `{"n":2}`, rows[1].Payload)
	assert.Equal(t, `{"n":20}`, rows[2].Payload)
	assert.Equal(t, `{"n":2}`, rows[3].Payload)

	for _, tx := range []string{"t1", "t2", "t3", "t4"} {
		ok, err := wh.TableExists(ctx, "shop", "orders_tmp_"+tx)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestMergeTwiceAgainstSameTemp(t *testing.T) {
	ctx := context.Background()
	wh := openWarehouse(t, t.TempDir())
	c := warehouse.NewConsolidator(wh, &warehouse.RetryConfig{MaxRetries: 3, Delay: time.Millisecond})
	require.NoError(t, c.EnsureDataset(ctx, "shop"))
	require.NoError(t, c.EnsureTable(ctx, "shop", "orders"))
	require.NoError(t, c.EnsureTable(ctx, "shop", "orders_tmp"))

	n, err := wh.LoadFile(ctx, "shop", "orders_tmp", stage(t, time.Now(), doc{"a", `{}`}, doc{"b", `{}`}))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stmt := warehouse.MergeStatement("shop", "orders", "orders_tmp")
	merged, err := wh.Exec(ctx, stmt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), merged)
	merged, err = wh.Exec(ctx, stmt)
	require.NoError(t, err)
	assert.Equal(t, int64(0), merged)
}

func TestMergeSkipsStaleStaging(t *testing.T) {
	ctx := context.Background()
	wh := openWarehouse(t, t.TempDir())
	c := warehouse.NewConsolidator(wh, &warehouse.RetryConfig{MaxRetries: 3, Delay: time.Millisecond})
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := c.Consolidate(ctx, &warehouse.Request{Dataset: "shop", Table: "orders", Transaction: "t1",
		File: stage(t, t0, doc{"a", `{"n":1}`})})
	require.NoError(t, err)
	_, err = c.Consolidate(ctx, &warehouse.Request{Dataset: "shop", Table: "orders", Transaction: "t3",
		File: stage(t, t0.Add(2*time.Hour), doc{"a", `{"n":3}`})})
	require.NoError(t, err)

	// a run staged in between lands after the newer one, e.g. resumed by play
	res, err := c.Consolidate(ctx, &warehouse.Request{Dataset: "shop", Table: "orders", Transaction: "t2",
		File: stage(t, t0.Add(time.Hour), doc{"a", `{"n":2}`}, doc{"b", `{"n":1}`})})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Merged)

	rows, err := wh.Query(ctx, "shop", "orders")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, `{"n":3}`, rows[1].Payload)
	assert.Equal(t, "b", rows[2].RowID)
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	wh := openWarehouse(t, dir)

	ok, err := wh.DatasetExists(ctx, "shop")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, wh.CreateDataset(ctx, "shop"))
	assert.True(t, warehouse.IsAlreadyExists(wh.CreateDataset(ctx, "shop")))

	ok, err = wh.TableExists(ctx, "shop", "orders")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, wh.CreateTable(ctx, "shop", "orders", warehouse.StagingSchema))
	assert.True(t, warehouse.IsAlreadyExists(wh.CreateTable(ctx, "shop", "orders", warehouse.StagingSchema)))

	require.NoError(t, wh.DeleteTable(ctx, "shop", "orders"))
	assert.True(t, warehouse.IsNotFound(wh.DeleteTable(ctx, "shop", "orders")))
	require.NoError(t, wh.CreateTable(ctx, "shop", "orders", warehouse.StagingSchema))
	require.NoError(t, wh.Close())

	_, err = os.Stat(filepath.Join(dir, "shop.db"))
	require.NoError(t, err)

	reopened := openWarehouse(t, dir)
	ok, err = reopened.DatasetExists(ctx, "shop")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = reopened.TableExists(ctx, "shop", "orders")
	require.NoError(t, err)
	assert.True(t, ok)
}
