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
package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/model/task"
	"github.com/wentaojin/docwh/model/worker"
	"github.com/wentaojin/docwh/utils/constant"
)

func seedTasks(t *testing.T, s *Store, collections ...string) {
	t.Helper()
	var tasks []*task.Task
	for _, c := range collections {
		tasks = append(tasks, &task.Task{Transaction: "txn", Export: "orders", Collection: c, Status: constant.TaskStatusCreated})
	}
	_, err := s.GetITaskRW().CreateTask(context.Background(), tasks)
	require.NoError(t, err)
}

func TestTransactionRollback(t *testing.T) {
	s := New()
	seedTasks(t, s, "a", "b")
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(txnCtx context.Context) error {
		n, err := s.GetITaskRW().UpdateTask(txnCtx, &task.Filter{Export: "orders"}, &task.Update{Status: constant.TaskStatusPaused, IncEpoch: true})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.GetITaskRW().CountTask(ctx, &task.Filter{Statuses: []string{constant.TaskStatusCreated}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.GetITaskRW().GetTask(ctx, task.Key{Transaction: "txn", Export: "orders", Collection: "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Epoch)
}

func TestTransactionNested(t *testing.T) {
	s := New()
	seedTasks(t, s, "a")
	ctx := context.Background()

	err := s.Transaction(ctx, func(txnCtx context.Context) error {
		return s.Transaction(txnCtx, func(inner context.Context) error {
			_, err := s.GetITaskRW().UpdateTask(inner, &task.Filter{Collection: "a"}, &task.Update{Status: constant.TaskStatusRunning})
			return err
		})
	})
	require.NoError(t, err)

	got, err := s.GetITaskRW().GetTask(ctx, task.Key{Transaction: "txn", Export: "orders", Collection: "a"})
	require.NoError(t, err)
	assert.Equal(t, constant.TaskStatusRunning, got.Status)
}

func TestClaimOldestFirst(t *testing.T) {
	s := New()
	seedTasks(t, s, "a", "b")
	ctx := context.Background()
	w := "w1"

	claimed, err := s.GetITaskRW().ClaimTask(ctx,
		&task.Filter{Statuses: []string{constant.TaskStatusCreated}},
		&task.Update{Status: constant.TaskStatusRunning, Worker: &w, IncEpoch: true})
	require.NoError(t, err)
	assert.Equal(t, "a", claimed.Collection)
	assert.Equal(t, int64(1), claimed.Epoch)

	_, err = s.GetITaskRW().ClaimTask(ctx,
		&task.Filter{Collection: "zzz"},
		&task.Update{Status: constant.TaskStatusRunning})
	assert.ErrorIs(t, err, common.ErrRecordNotFound)
}

func TestDuplicateKeys(t *testing.T) {
	s := New()
	seedTasks(t, s, "a")
	ctx := context.Background()

	_, err := s.GetITaskRW().CreateTask(ctx, []*task.Task{{Transaction: "txn", Export: "orders", Collection: "a"}})
	assert.ErrorIs(t, err, common.ErrDuplicateKey)

	_, err = s.GetIEventRW().CreateEvent(ctx, &export.Event{Transaction: "txn", Export: "orders", Kind: constant.ExportEventTerminated})
	require.NoError(t, err)
	_, err = s.GetIEventRW().CreateEvent(ctx, &export.Event{Transaction: "txn", Export: "orders", Kind: constant.ExportEventError})
	assert.ErrorIs(t, err, common.ErrDuplicateKey)
}

func TestLatestExportAndTouch(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, txn := range []string{"t1", "t2"} {
		_, err := s.GetIExportRW().CreateExport(ctx, &export.Export{
			Name:        "orders",
			Transaction: txn,
			Window:      export.Window{Begin: base.Add(time.Duration(i) * time.Hour), End: base.Add(time.Duration(i+1) * time.Hour)},
		})
		require.NoError(t, err)
	}
	latest, err := s.GetIExportRW().LatestExport(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "t2", latest.Transaction)

	require.NoError(t, s.GetIExportRW().TouchExport(ctx, export.Key{Transaction: "t1", Export: "orders"}))
	got, err := s.GetIExportRW().GetExport(ctx, export.Key{Transaction: "t1", Export: "orders"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Revision)

	err = s.GetIExportRW().TouchExport(ctx, export.Key{Transaction: "missing", Export: "orders"})
	assert.ErrorIs(t, err, common.ErrRecordNotFound)
}

func TestWorkerUpsertAndFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.GetIWorkerRW().UpsertWorker(ctx, &worker.Worker{Name: "worker-1", Capacity: 1, LastSeen: now})
	require.NoError(t, err)
	_, err = s.GetIWorkerRW().UpsertWorker(ctx, &worker.Worker{Name: "worker-2", Capacity: 1, LastSeen: now.Add(-time.Hour)})
	require.NoError(t, err)
	updated, err := s.GetIWorkerRW().UpsertWorker(ctx, &worker.Worker{Name: "worker-1", Capacity: 4, LastSeen: now})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Capacity)

	seenAfter := now.Add(-time.Minute)
	alive, err := s.GetIWorkerRW().ListWorker(ctx, &worker.Filter{SeenAfter: &seenAfter}, 0, 0)
	require.NoError(t, err)
	require.Len(t, alive, 1)
	assert.Equal(t, "worker-1", alive[0].Name)

	all, err := s.GetIWorkerRW().ListWorker(ctx, &worker.Filter{NamePrefix: "worker-"}, 1, 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "worker-1", all[0].Name)
}
