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
	"sync"
	"time"

	"github.com/wentaojin/docwh/model"
	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/model/task"
	"github.com/wentaojin/docwh/model/worker"
)

// Store is an in-process orchestration store. Transactions are serialized
// behind one lock and roll back by restoring a snapshot.
type Store struct {
	mu sync.Mutex

	tasks   []*task.Task
	exports []*export.Export
	events  []*export.Event
	workers map[string]*worker.Worker

	now func() time.Time
}

var _ model.IDatabase = (*Store)(nil)

func New() *Store {
	return &Store{
		workers: make(map[string]*worker.Worker),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for envelope timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// lock takes the store lock unless ctx already holds it through a transaction
func (s *Store) lock(ctx context.Context) func() {
	if common.InTransaction(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Transaction(ctx context.Context, fc func(txnCtx context.Context) error) error {
	if common.InTransaction(ctx) {
		return fc(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fc(common.CtxWithTransaction(ctx)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	tasks   []*task.Task
	exports []*export.Export
	events  []*export.Event
	workers map[string]*worker.Worker
}

func (s *Store) snapshot() *snapshot {
	snap := &snapshot{
		tasks:   make([]*task.Task, 0, len(s.tasks)),
		exports: make([]*export.Export, 0, len(s.exports)),
		events:  make([]*export.Event, 0, len(s.events)),
		workers: make(map[string]*worker.Worker, len(s.workers)),
	}
	for _, t := range s.tasks {
		snap.tasks = append(snap.tasks, cloneTask(t))
	}
	for _, e := range s.exports {
		snap.exports = append(snap.exports, cloneExport(e))
	}
	for _, e := range s.events {
		snap.events = append(snap.events, cloneEvent(e))
	}
	for k, w := range s.workers {
		c := *w
		snap.workers[k] = &c
	}
	return snap
}

func (s *Store) restore(snap *snapshot) {
	s.tasks = snap.tasks
	s.exports = snap.exports
	s.events = snap.events
	s.workers = snap.workers
}

func (s *Store) GetITaskRW() task.ITask {
	return &taskRW{s: s}
}

func (s *Store) GetIExportRW() export.IExport {
	return &exportRW{s: s}
}

func (s *Store) GetIEventRW() export.IEvent {
	return &eventRW{s: s}
}

func (s *Store) GetIWorkerRW() worker.IWorker {
	return &workerRW{s: s}
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func cloneTask(t *task.Task) *task.Task {
	c := *t
	if t.StartTime != nil {
		st := *t.StartTime
		c.StartTime = &st
	}
	if t.EndTime != nil {
		et := *t.EndTime
		c.EndTime = &et
	}
	return &c
}

func cloneExport(e *export.Export) *export.Export {
	c := *e
	c.Collections = append([]string(nil), e.Collections...)
	return &c
}

func cloneEvent(e *export.Event) *export.Event {
	c := *e
	c.FailedCollections = append([]string(nil), e.FailedCollections...)
	return &c
}

func paginate[T any](items []T, page, pageSize int) []T {
	skip, limit := common.Page(page, pageSize)
	if skip >= int64(len(items)) {
		return []T{}
	}
	items = items[skip:]
	if limit > 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items
}
