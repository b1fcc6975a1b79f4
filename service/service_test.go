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
package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/model/memstore"
	"github.com/wentaojin/docwh/model/task"
	"github.com/wentaojin/docwh/utils/configutil"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []*export.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event *export.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Events() []*export.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*export.Event(nil), n.events...)
}

type fixture struct {
	store    *memstore.Store
	exports  *ExportService
	tasks    *TaskStateMachine
	notifier *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.New(),
		notifier: &recordingNotifier{},
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store.SetClock(clock)
	f.exports = NewExportService(f.store)
	f.exports.SetClock(clock)
	f.tasks = NewTaskStateMachine(f.store, f.exports, WithNotifier(f.notifier), WithTaskClock(clock))
	return f
}

func (f *fixture) schedule(t *testing.T, collections ...string) *export.Export {
	t.Helper()
	e, err := f.exports.Schedule(context.Background(), &configutil.ExportOptions{
		Name:        "orders",
		Source:      "shop",
		Target:      "Shop Warehouse",
		Database:    "shop",
		Collections: collections,
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) claimAll(t *testing.T, e *export.Export, worker string) []*task.Task {
	t.Helper()
	var claimed []*task.Task
	for range e.Collections {
		c, err := f.tasks.Claim(context.Background(), worker, &ClaimScope{Transaction: e.Transaction, Export: e.Name})
		require.NoError(t, err)
		claimed = append(claimed, c)
	}
	return claimed
}

func taskKey(e *export.Export, collection string) task.Key {
	return task.Key{Transaction: e.Transaction, Export: e.Name, Collection: collection}
}
