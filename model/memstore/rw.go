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
	"fmt"
	"sort"

	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/model/task"
	"github.com/wentaojin/docwh/model/worker"
	"github.com/wentaojin/docwh/utils/constant"
)

type taskRW struct {
	s *Store
}

func (rw *taskRW) CreateTask(ctx context.Context, tasks []*task.Task) ([]*task.Task, error) {
	defer rw.s.lock(ctx)()
	now := rw.s.now()
	for _, t := range tasks {
		for _, exist := range rw.s.tasks {
			if exist.Key() == t.Key() {
				return nil, fmt.Errorf("create collection [%s] record [%s] failed: %w", constant.CollectionTasks, t.Key().String(), common.ErrDuplicateKey)
			}
		}
	}
	for _, t := range tasks {
		t.Stamp(now)
		rw.s.tasks = append(rw.s.tasks, cloneTask(t))
	}
	return tasks, nil
}

func (rw *taskRW) GetTask(ctx context.Context, key task.Key) (*task.Task, error) {
	defer rw.s.lock(ctx)()
	for _, t := range rw.s.tasks {
		if t.Key() == key {
			return cloneTask(t), nil
		}
	}
	return nil, fmt.Errorf("get collection [%s] record [%s] failed: %w", constant.CollectionTasks, key.String(), common.ErrRecordNotFound)
}

func (rw *taskRW) ListTask(ctx context.Context, filter *task.Filter, page, pageSize int) ([]*task.Task, error) {
	defer rw.s.lock(ctx)()
	var dataS []*task.Task
	for _, t := range rw.s.tasks {
		if filter.Match(t) {
			dataS = append(dataS, cloneTask(t))
		}
	}
	return paginate(dataS, page, pageSize), nil
}

func (rw *taskRW) CountTask(ctx context.Context, filter *task.Filter) (int64, error) {
	defer rw.s.lock(ctx)()
	var n int64
	for _, t := range rw.s.tasks {
		if filter.Match(t) {
			n++
		}
	}
	return n, nil
}

func (rw *taskRW) UpdateTask(ctx context.Context, filter *task.Filter, update *task.Update) (int64, error) {
	defer rw.s.lock(ctx)()
	now := rw.s.now()
	var n int64
	for _, t := range rw.s.tasks {
		if filter.Match(t) {
			update.Apply(t, now)
			n++
		}
	}
	return n, nil
}

func (rw *taskRW) ClaimTask(ctx context.Context, filter *task.Filter, update *task.Update) (*task.Task, error) {
	defer rw.s.lock(ctx)()
	for _, t := range rw.s.tasks {
		if filter.Match(t) {
			update.Apply(t, rw.s.now())
			return cloneTask(t), nil
		}
	}
	return nil, fmt.Errorf("claim collection [%s] record failed: %w", constant.CollectionTasks, common.ErrRecordNotFound)
}

type exportRW struct {
	s *Store
}

func (rw *exportRW) CreateExport(ctx context.Context, e *export.Export) (*export.Export, error) {
	defer rw.s.lock(ctx)()
	for _, exist := range rw.s.exports {
		if exist.Key() == e.Key() {
			return nil, fmt.Errorf("create collection [%s] record [%s] failed: %w", constant.CollectionExports, e.Key().String(), common.ErrDuplicateKey)
		}
	}
	e.Stamp(rw.s.now())
	rw.s.exports = append(rw.s.exports, cloneExport(e))
	return e, nil
}

func (rw *exportRW) GetExport(ctx context.Context, key export.Key) (*export.Export, error) {
	defer rw.s.lock(ctx)()
	for _, e := range rw.s.exports {
		if e.Key() == key {
			return cloneExport(e), nil
		}
	}
	return nil, fmt.Errorf("get collection [%s] record [%s] failed: %w", constant.CollectionExports, key.String(), common.ErrRecordNotFound)
}

func (rw *exportRW) LatestExport(ctx context.Context, name string) (*export.Export, error) {
	defer rw.s.lock(ctx)()
	var latest *export.Export
	for _, e := range rw.s.exports {
		if e.Name != name {
			continue
		}
		if latest == nil || e.Window.End.After(latest.Window.End) {
			latest = e
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("latest collection [%s] record [%s] failed: %w", constant.CollectionExports, name, common.ErrRecordNotFound)
	}
	return cloneExport(latest), nil
}

func (rw *exportRW) ListExport(ctx context.Context, name string, page, pageSize int) ([]*export.Export, error) {
	defer rw.s.lock(ctx)()
	var dataS []*export.Export
	for i := len(rw.s.exports) - 1; i >= 0; i-- {
		e := rw.s.exports[i]
		if name == "" || e.Name == name {
			dataS = append(dataS, cloneExport(e))
		}
	}
	return paginate(dataS, page, pageSize), nil
}

func (rw *exportRW) TouchExport(ctx context.Context, key export.Key) error {
	defer rw.s.lock(ctx)()
	for _, e := range rw.s.exports {
		if e.Key() == key {
			e.Revision++
			e.UpdatedAt = rw.s.now()
			return nil
		}
	}
	return fmt.Errorf("touch collection [%s] record [%s] failed: %w", constant.CollectionExports, key.String(), common.ErrRecordNotFound)
}

type eventRW struct {
	s *Store
}

func (rw *eventRW) CreateEvent(ctx context.Context, e *export.Event) (*export.Event, error) {
	defer rw.s.lock(ctx)()
	for _, exist := range rw.s.events {
		if exist.Key() == e.Key() {
			return nil, fmt.Errorf("create collection [%s] record [%s] failed: %w", constant.CollectionExportEvents, e.Key().String(), common.ErrDuplicateKey)
		}
	}
	e.Stamp(rw.s.now())
	rw.s.events = append(rw.s.events, cloneEvent(e))
	return e, nil
}

func (rw *eventRW) GetEvent(ctx context.Context, key export.Key) (*export.Event, error) {
	defer rw.s.lock(ctx)()
	for _, e := range rw.s.events {
		if e.Key() == key {
			return cloneEvent(e), nil
		}
	}
	return nil, fmt.Errorf("get collection [%s] record [%s] failed: %w", constant.CollectionExportEvents, key.String(), common.ErrRecordNotFound)
}

func (rw *eventRW) ListEvent(ctx context.Context, filter *export.EventFilter, page, pageSize int) ([]*export.Event, error) {
	defer rw.s.lock(ctx)()
	var dataS []*export.Event
	for i := len(rw.s.events) - 1; i >= 0; i-- {
		if filter.Match(rw.s.events[i]) {
			dataS = append(dataS, cloneEvent(rw.s.events[i]))
		}
	}
	return paginate(dataS, page, pageSize), nil
}

type workerRW struct {
	s *Store
}

func (rw *workerRW) UpsertWorker(ctx context.Context, w *worker.Worker) (*worker.Worker, error) {
	defer rw.s.lock(ctx)()
	now := rw.s.now()
	if w.LastSeen.IsZero() {
		w.LastSeen = now
	}
	exist, ok := rw.s.workers[w.Name]
	if !ok {
		c := *w
		c.Stamp(now)
		rw.s.workers[w.Name] = &c
		out := c
		return &out, nil
	}
	exist.Addr = w.Addr
	exist.Capacity = w.Capacity
	exist.LastSeen = w.LastSeen
	exist.UpdatedAt = now
	out := *exist
	return &out, nil
}

func (rw *workerRW) GetWorker(ctx context.Context, name string) (*worker.Worker, error) {
	defer rw.s.lock(ctx)()
	w, ok := rw.s.workers[name]
	if !ok {
		return nil, fmt.Errorf("get collection [%s] record [%s] failed: %w", constant.CollectionWorkers, name, common.ErrRecordNotFound)
	}
	out := *w
	return &out, nil
}

func (rw *workerRW) ListWorker(ctx context.Context, filter *worker.Filter, page, pageSize int) ([]*worker.Worker, error) {
	defer rw.s.lock(ctx)()
	var dataS []*worker.Worker
	for _, w := range rw.s.workers {
		if filter.Match(w) {
			c := *w
			dataS = append(dataS, &c)
		}
	}
	sort.Slice(dataS, func(i, j int) bool { return dataS[i].Name < dataS[j].Name })
	return paginate(dataS, page, pageSize), nil
}

func (rw *workerRW) DeleteWorker(ctx context.Context, name string) error {
	defer rw.s.lock(ctx)()
	delete(rw.s.workers, name)
	return nil
}
