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
	"fmt"
	"time"

	"github.com/scylladb/go-set/strset"
	"github.com/wentaojin/docwh/errconcurrent"
	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/model"
	"github.com/wentaojin/docwh/model/task"
	"github.com/wentaojin/docwh/model/worker"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/utils/constant"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type WorkerFilter struct {
	NamePrefix string `json:"prefix"`
	AliveOnly  bool   `json:"alive"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
}

// ScaleResult describes one scale pass
type ScaleResult struct {
	Alive   int   `json:"alive"`
	Backlog int64 `json:"backlog"`
	Desired int   `json:"desired"`
	Reaped  int   `json:"reaped"`
	Scaled  bool  `json:"scaled"`
}

// ScalingController sizes the worker pool from the task backlog
type ScalingController struct {
	db       model.IDatabase
	tasks    *TaskStateMachine
	scaler   Scaler
	opts     *configutil.MasterOptions
	inFlight *atomic.Bool
	now      func() time.Time
}

func NewScalingController(db model.IDatabase, tasks *TaskStateMachine, scaler Scaler, opts ...configutil.MasterOption) *ScalingController {
	cfg := configutil.DefaultMasterServerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &ScalingController{
		db:       db,
		tasks:    tasks,
		scaler:   scaler,
		opts:     cfg,
		inFlight: atomic.NewBool(false),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the liveness time source
func (c *ScalingController) SetClock(now func() time.Time) {
	c.now = now
}

// List returns the registered workers, it has no side effects
func (c *ScalingController) List(ctx context.Context, filter *WorkerFilter) ([]*worker.Worker, error) {
	f := &worker.Filter{}
	page, pageSize := 0, 0
	if filter != nil {
		f.NamePrefix = filter.NamePrefix
		if filter.AliveOnly {
			seen := c.now().Add(-c.opts.WorkerAliveTTL)
			f.SeenAfter = &seen
		}
		page, pageSize = filter.Page, filter.PageSize
	}
	return c.db.GetIWorkerRW().ListWorker(ctx, f, page, pageSize)
}

// Scale runs one pass: reap the tasks of lost workers, measure the backlog and
// ask the scaler for the desired replica count. At most one pass runs per
// process, an overlapping call returns ErrScaleInFlight.
func (c *ScalingController) Scale(ctx context.Context) (*ScaleResult, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrScaleInFlight
	}
	defer c.inFlight.Store(false)

	startTime := time.Now()
	alive, err := c.List(ctx, &WorkerFilter{AliveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("scale list alive workers failed: %w", err)
	}

	res := &ScaleResult{Alive: len(alive)}
	if res.Reaped, err = c.reap(ctx, alive); err != nil {
		return nil, err
	}

	res.Backlog, err = c.db.GetITaskRW().CountTask(ctx, &task.Filter{Statuses: constant.TaskActiveStatuses})
	if err != nil {
		return nil, fmt.Errorf("scale count backlog failed: %w", err)
	}
	res.Desired = DesiredWorkers(res.Backlog, c.opts.WorkerCapacity, c.opts.MinWorkers, c.opts.MaxWorkers)

	if res.Desired != res.Alive {
		if err = c.scaler.Scale(ctx, res.Desired); err != nil {
			return nil, fmt.Errorf("scale to [%d] replicas failed: %w", res.Desired, err)
		}
		res.Scaled = true
	}
	logger.Info("scale pass finished",
		zap.Int("alive", res.Alive),
		zap.Int64("backlog", res.Backlog),
		zap.Int("desired", res.Desired),
		zap.Int("reaped", res.Reaped),
		zap.Bool("scaled", res.Scaled),
		zap.String("cost", time.Since(startTime).String()))
	return res, nil
}

// InFlight reports whether a scale pass is running
func (c *ScalingController) InFlight() bool {
	return c.inFlight.Load()
}

// reap moves RUNNING tasks whose worker stopped heartbeating to ERROR
func (c *ScalingController) reap(ctx context.Context, alive []*worker.Worker) (int, error) {
	aliveSet := strset.NewWithSize(len(alive))
	for _, w := range alive {
		aliveSet.Add(w.Name)
	}
	running, err := c.tasks.ListRunning(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("scale list running tasks failed: %w", err)
	}

	var orphans []*task.Task
	for _, t := range running {
		if !aliveSet.Has(t.Worker) {
			orphans = append(orphans, t)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	limit := c.opts.ReapConcurrency
	if limit <= 0 {
		limit = constant.DefaultReapConcurrency
	}
	g := errconcurrent.NewGroup[*task.Task]()
	g.SetLimit(limit)
	for _, t := range orphans {
		g.Go(t, func(t *task.Task) error {
			return c.tasks.Error(ctx, t.Key(), &ErrorRequest{
				Worker: t.Worker,
				Error:  constant.TaskErrorWorkerLost,
				Epoch:  t.Epoch,
			})
		})
	}

	reaped := len(orphans)
	for _, r := range g.Wait() {
		reaped--
		if IsInvalidStateChange(r.Err) {
			// the worker settled or the task was paused since the listing
			logger.Warn("orphan task reap skipped",
				zap.String("task", r.Task.Key().String()),
				zap.String("worker", r.Task.Worker),
				zap.Error(r.Err))
			continue
		}
		return 0, fmt.Errorf("orphan task [%s] reap failed: %w", r.Task.Key().String(), r.Err)
	}
	logger.Warn("orphan tasks reaped", zap.Int("tasks", reaped))
	return reaped, nil
}

// DesiredWorkers is ceil(backlog / capacity) clamped to [min, max]
func DesiredWorkers(backlog int64, capacity, min, max int) int {
	if capacity <= 0 {
		capacity = constant.DefaultWorkerCapacity
	}
	desired := int((backlog + int64(capacity) - 1) / int64(capacity))
	if desired < min {
		desired = min
	}
	if max > 0 && desired > max {
		desired = max
	}
	return desired
}
