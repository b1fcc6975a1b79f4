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
	"errors"
	"fmt"
	"time"

	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/model"
	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/model/task"
	"github.com/wentaojin/docwh/utils/constant"
	"github.com/wentaojin/docwh/utils/stringutil"
	"go.uber.org/zap"
)

// ExportStateSink is told, inside the transaction of a task reaching ERROR or
// TERMINATED, that the task's export may have settled. A non-nil event means
// the export-level transition fired in that transaction.
type ExportStateSink interface {
	OnTaskSettled(txnCtx context.Context, key export.Key) (*export.Event, error)
}

// Notifier publishes export events after their transaction committed
type Notifier interface {
	Notify(ctx context.Context, event *export.Event) error
}

// ErrorRequest fails a task. An empty Worker fails a queued CREATED task no
// worker holds, otherwise the task must be bound to Worker.
type ErrorRequest struct {
	Worker string `json:"worker"`
	Error  string `json:"error" validate:"required"`
	// Epoch pins the assignment the caller saw when it claimed the task, 0 skips the check
	Epoch int64 `json:"epoch" validate:"gte=0"`
}

type CompleteRequest struct {
	Worker string `json:"worker" validate:"required"`
	Epoch  int64  `json:"epoch" validate:"gte=0"`
}

// ClaimScope narrows which CREATED tasks a worker may claim
type ClaimScope struct {
	Transaction string
	Export      string
}

// TaskStateMachine is the only writer of task state
type TaskStateMachine struct {
	db       model.IDatabase
	sink     ExportStateSink
	notifier Notifier
	now      func() time.Time
}

type TaskOption func(m *TaskStateMachine)

func WithNotifier(n Notifier) TaskOption {
	return func(m *TaskStateMachine) {
		m.notifier = n
	}
}

func WithTaskClock(now func() time.Time) TaskOption {
	return func(m *TaskStateMachine) {
		m.now = now
	}
}

func NewTaskStateMachine(db model.IDatabase, sink ExportStateSink, opts ...TaskOption) *TaskStateMachine {
	m := &TaskStateMachine{
		db:   db,
		sink: sink,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Claim moves the oldest CREATED task in scope to RUNNING, bound to worker
func (m *TaskStateMachine) Claim(ctx context.Context, worker string, scope *ClaimScope) (*task.Task, error) {
	if worker == "" {
		return nil, &InvalidStateChangeError{Op: "claim", Key: "-", Err: &InvalidInputError{Err: errors.New("worker is required")}}
	}
	filter := &task.Filter{Statuses: []string{constant.TaskStatusCreated}}
	if scope != nil {
		filter.Transaction = scope.Transaction
		filter.Export = scope.Export
	}
	now := m.now()
	update := &task.Update{
		Status:    constant.TaskStatusRunning,
		Worker:    &worker,
		Error:     new(string),
		StartTime: &now,
		IncEpoch:  true,
	}

	var claimed *task.Task
	err := m.db.Transaction(ctx, func(txnCtx context.Context) error {
		t, err := m.db.GetITaskRW().ClaimTask(txnCtx, filter, update)
		if err != nil {
			return err
		}
		claimed = t
		return nil
	})
	if errors.Is(err, common.ErrRecordNotFound) {
		return nil, ErrNoTaskAvailable
	}
	if err != nil {
		return nil, err
	}
	logger.Info("task claimed",
		zap.String("task", claimed.Key().String()),
		zap.String("worker", worker),
		zap.Int64("epoch", claimed.Epoch))
	return claimed, nil
}

// Complete moves a RUNNING task bound to the worker to TERMINATED
func (m *TaskStateMachine) Complete(ctx context.Context, key task.Key, req *CompleteRequest) error {
	if err := validateInput(key, req); err != nil {
		return &InvalidStateChangeError{Op: "complete", Key: key.String(), Err: err}
	}
	now := m.now()
	return m.settle(ctx, "complete", key,
		&task.Filter{
			Transaction: key.Transaction,
			Export:      key.Export,
			Collection:  key.Collection,
			Worker:      req.Worker,
			Epoch:       req.Epoch,
			Statuses:    []string{constant.TaskStatusRunning},
		},
		&task.Update{
			Status:   constant.TaskStatusTerminated,
			EndTime:  &now,
			IncEpoch: true,
		})
}

// Error moves a CREATED or RUNNING task to ERROR. A task bound to a worker
// only fails for that worker, an unbound CREATED task fails without one.
func (m *TaskStateMachine) Error(ctx context.Context, key task.Key, req *ErrorRequest) error {
	if err := validateInput(key, req); err != nil {
		return &InvalidStateChangeError{Op: "error", Key: key.String(), Err: err}
	}
	filter := &task.Filter{
		Transaction: key.Transaction,
		Export:      key.Export,
		Collection:  key.Collection,
		Worker:      req.Worker,
		Epoch:       req.Epoch,
		Statuses:    constant.TaskActiveStatuses,
	}
	if req.Worker == "" {
		filter.Unbound = true
		filter.Statuses = []string{constant.TaskStatusCreated}
	}
	now := m.now()
	return m.settle(ctx, "error", key,
		filter,
		&task.Update{
			Status:   constant.TaskStatusError,
			Error:    &req.Error,
			EndTime:  &now,
			IncEpoch: true,
		})
}

// settle applies a terminal transition and runs the export cascade check in
// the same transaction
func (m *TaskStateMachine) settle(ctx context.Context, op string, key task.Key, filter *task.Filter, update *task.Update) error {
	var event *export.Event
	err := m.db.Transaction(ctx, func(txnCtx context.Context) error {
		event = nil
		matched, err := m.db.GetITaskRW().UpdateTask(txnCtx, filter, update)
		if err != nil {
			return err
		}
		if matched == 0 {
			return &InvalidStateChangeError{Op: op, Key: key.String(), Err: m.explain(txnCtx, key, filter)}
		}
		event, err = m.sink.OnTaskSettled(txnCtx, export.Key{Transaction: key.Transaction, Export: key.Export})
		return err
	})
	if err != nil {
		return err
	}
	logger.Info("task settled",
		zap.String("task", key.String()),
		zap.String("operate", op),
		zap.String("status", update.Status))
	m.notify(ctx, event)
	return nil
}

// explain says why a conditional update matched nothing
func (m *TaskStateMachine) explain(ctx context.Context, key task.Key, filter *task.Filter) error {
	t, err := m.db.GetITaskRW().GetTask(ctx, key)
	if err != nil {
		return err
	}
	switch {
	case !stringutil.IsContainedString(filter.Statuses, t.Status):
		return fmt.Errorf("task status [%s] is not in %v", t.Status, filter.Statuses)
	case filter.Unbound && t.Worker != "":
		return fmt.Errorf("task is bound to worker [%s], a worker is required", t.Worker)
	case !filter.Unbound && filter.Worker != "" && t.Worker != filter.Worker:
		return fmt.Errorf("task is bound to worker [%s], not [%s]", t.Worker, filter.Worker)
	case filter.Epoch != 0 && t.Epoch != filter.Epoch:
		return fmt.Errorf("task epoch [%d] moved on from [%d]", t.Epoch, filter.Epoch)
	default:
		return errors.New("task no longer matches the transition precondition")
	}
}

func (m *TaskStateMachine) notify(ctx context.Context, event *export.Event) {
	if event == nil || m.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constant.DefaultNotifyRequestTimeout)
	defer cancel()
	if err := m.notifier.Notify(nctx, event); err != nil {
		logger.Warn("export event notify failed",
			zap.String("export", event.Key().String()),
			zap.String("kind", event.Kind),
			zap.Error(err))
	}
}

// Pause moves every CREATED or RUNNING task of the export to PAUSED
func (m *TaskStateMachine) Pause(ctx context.Context, key export.Key) error {
	if err := validateInput(key); err != nil {
		return &InvalidStateChangeError{Op: "pause", Key: key.String(), Err: err}
	}
	return m.bulk(ctx, "pause", key, constant.TaskActiveStatuses, &task.Update{
		Status:   constant.TaskStatusPaused,
		IncEpoch: true,
	}, "no active tasks")
}

// Play moves every PAUSED task of the export back to CREATED, unbound
func (m *TaskStateMachine) Play(ctx context.Context, key export.Key) error {
	if err := validateInput(key); err != nil {
		return &InvalidStateChangeError{Op: "play", Key: key.String(), Err: err}
	}
	return m.bulk(ctx, "play", key, []string{constant.TaskStatusPaused}, &task.Update{
		Status:   constant.TaskStatusCreated,
		Worker:   new(string),
		Error:    new(string),
		IncEpoch: true,
	}, "no paused tasks")
}

func (m *TaskStateMachine) bulk(ctx context.Context, op string, key export.Key, from []string, update *task.Update, empty string) error {
	filter := &task.Filter{
		Transaction: key.Transaction,
		Export:      key.Export,
		Statuses:    from,
	}
	var matched int64
	err := m.db.Transaction(ctx, func(txnCtx context.Context) error {
		n, err := m.db.GetITaskRW().CountTask(txnCtx, filter)
		if err != nil {
			return err
		}
		if n == 0 {
			return &InvalidStateChangeError{Op: op, Key: key.String(), Err: errors.New(empty)}
		}
		matched, err = m.db.GetITaskRW().UpdateTask(txnCtx, filter, update)
		return err
	})
	if err != nil {
		return err
	}
	logger.Info("export tasks transitioned",
		zap.String("export", key.String()),
		zap.String("operate", op),
		zap.Int64("tasks", matched))
	return nil
}

// CountPaused returns the number of PAUSED tasks of the export
func (m *TaskStateMachine) CountPaused(ctx context.Context, key export.Key) (int64, error) {
	return m.db.GetITaskRW().CountTask(ctx, &task.Filter{
		Transaction: key.Transaction,
		Export:      key.Export,
		Statuses:    []string{constant.TaskStatusPaused},
	})
}

// ListRunning returns RUNNING tasks, the filter status set is ignored
func (m *TaskStateMachine) ListRunning(ctx context.Context, filter *task.Filter) ([]*task.Task, error) {
	f := &task.Filter{}
	if filter != nil {
		*f = *filter
	}
	f.Statuses = []string{constant.TaskStatusRunning}
	return m.db.GetITaskRW().ListTask(ctx, f, 0, 0)
}

// ListTask is the read side of the task surface
func (m *TaskStateMachine) ListTask(ctx context.Context, filter *task.Filter, page, pageSize int) ([]*task.Task, error) {
	return m.db.GetITaskRW().ListTask(ctx, filter, page, pageSize)
}
