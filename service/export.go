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

	"github.com/google/uuid"
	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/model"
	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/model/task"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/utils/constant"
	"go.uber.org/zap"
)

// ExportStatus is derived from the tasks of an export on every read
type ExportStatus struct {
	Export *export.Export   `json:"export"`
	State  string           `json:"state"`
	Counts map[string]int64 `json:"counts"`
	Event  *export.Event    `json:"event,omitempty"`
}

// ExportService owns export scheduling and the export-level transitions
type ExportService struct {
	db  model.IDatabase
	now func() time.Time
}

var _ ExportStateSink = (*ExportService)(nil)

func NewExportService(db model.IDatabase) *ExportService {
	return &ExportService{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the scheduling time source
func (s *ExportService) SetClock(now func() time.Time) {
	s.now = now
}

// Schedule fires an export definition: one new transaction, the window from
// the previous run's end to now, and one CREATED task per collection. A run
// that settled ERROR pulls the window back to its begin until a later run
// covers it again.
func (s *ExportService) Schedule(ctx context.Context, def *configutil.ExportOptions) (*export.Export, error) {
	if err := validateInput(def); err != nil {
		return nil, err
	}
	now := s.now()

	var created *export.Export
	err := s.db.Transaction(ctx, func(txnCtx context.Context) error {
		begin := now.Add(-def.InitialLookback)
		if def.InitialLookback <= 0 {
			begin = now.Add(-constant.DefaultScheduleLookback)
		}
		latest, err := s.db.GetIExportRW().LatestExport(txnCtx, def.Name)
		switch {
		case err == nil:
			if begin, err = s.resumeBegin(txnCtx, latest); err != nil {
				return err
			}
		case errors.Is(err, common.ErrRecordNotFound):
		default:
			return err
		}
		window, err := export.NewWindow(begin, now)
		if err != nil {
			return &InvalidInputError{Err: err}
		}

		e := &export.Export{
			Name:        def.Name,
			Transaction: uuid.NewString(),
			Source:      def.Source,
			Target:      def.Target,
			Database:    def.Database,
			Window:      window,
			Collections: append([]string(nil), def.Collections...),
		}
		if created, err = s.db.GetIExportRW().CreateExport(txnCtx, e); err != nil {
			return err
		}

		tasks := make([]*task.Task, 0, len(def.Collections))
		for _, c := range def.Collections {
			tasks = append(tasks, &task.Task{
				Transaction: e.Transaction,
				Export:      e.Name,
				Collection:  c,
				Status:      constant.TaskStatusCreated,
			})
		}
		_, err = s.db.GetITaskRW().CreateTask(txnCtx, tasks)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("export [%s] schedule failed: %w", def.Name, err)
	}
	logger.Info("export scheduled",
		zap.String("export", created.Key().String()),
		zap.Time("window_begin", created.Window.Begin),
		zap.Time("window_end", created.Window.End),
		zap.Strings("collections", created.Collections))
	return created, nil
}

// resumeBegin returns the latest window end, or the begin of the earliest
// errored window no later run started at or before
func (s *ExportService) resumeBegin(ctx context.Context, latest *export.Export) (time.Time, error) {
	begin := latest.Window.End
	failed, err := s.db.GetIEventRW().ListEvent(ctx, &export.EventFilter{
		Export: latest.Name,
		Kind:   constant.ExportEventError,
	}, 0, 0)
	if err != nil || len(failed) == 0 {
		return begin, err
	}
	exports, err := s.db.GetIExportRW().ListExport(ctx, latest.Name, 0, 0)
	if err != nil {
		return begin, err
	}
	byTransaction := make(map[string]*export.Export, len(exports))
	for _, e := range exports {
		byTransaction[e.Transaction] = e
	}
	for _, ev := range failed {
		e, ok := byTransaction[ev.Transaction]
		if !ok || !e.Window.Begin.Before(begin) || covered(e, exports) {
			continue
		}
		logger.Warn("export window errored, scheduling it again",
			zap.String("export", e.Key().String()),
			zap.Time("window_begin", e.Window.Begin),
			zap.Time("window_end", e.Window.End))
		begin = e.Window.Begin
	}
	return begin, nil
}

// covered reports whether a run scheduled after e starts at or before e
func covered(e *export.Export, exports []*export.Export) bool {
	for _, o := range exports {
		if o.Window.End.After(e.Window.End) && !o.Window.Begin.After(e.Window.Begin) {
			return true
		}
	}
	return false
}

// IsAllTerminatedOrError reports whether no task of the export is CREATED,
// RUNNING or PAUSED
func (s *ExportService) IsAllTerminatedOrError(ctx context.Context, key export.Key) (bool, error) {
	n, err := s.db.GetITaskRW().CountTask(ctx, &task.Filter{
		Transaction: key.Transaction,
		Export:      key.Export,
		Statuses:    constant.TaskNonTerminalStatuses,
	})
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// OnTaskSettled bumps the export revision so concurrent settling
// transactions of one export conflict, then fires the export-level
// transition when every task is terminal
func (s *ExportService) OnTaskSettled(txnCtx context.Context, key export.Key) (*export.Event, error) {
	if err := s.db.GetIExportRW().TouchExport(txnCtx, key); err != nil {
		return nil, err
	}
	done, err := s.IsAllTerminatedOrError(txnCtx, key)
	if err != nil || !done {
		return nil, err
	}
	errored, err := s.db.GetITaskRW().CountTask(txnCtx, &task.Filter{
		Transaction: key.Transaction,
		Export:      key.Export,
		Statuses:    []string{constant.TaskStatusError},
	})
	if err != nil {
		return nil, err
	}
	if errored > 0 {
		return s.Error(txnCtx, key)
	}
	return s.Terminate(txnCtx, key)
}

// Error records the export-level error transition, nil event when it already fired
func (s *ExportService) Error(ctx context.Context, key export.Key) (*export.Event, error) {
	return s.transition(ctx, key, constant.ExportEventError)
}

// Terminate records the export-level completion, nil event when it already fired
func (s *ExportService) Terminate(ctx context.Context, key export.Key) (*export.Event, error) {
	return s.transition(ctx, key, constant.ExportEventTerminated)
}

func (s *ExportService) transition(ctx context.Context, key export.Key, kind string) (*export.Event, error) {
	var event *export.Event
	err := s.db.Transaction(ctx, func(txnCtx context.Context) error {
		event = nil
		// a failed insert aborts a store transaction, look before writing
		_, err := s.db.GetIEventRW().GetEvent(txnCtx, key)
		switch {
		case err == nil:
			return fmt.Errorf("export [%s] event: %w", key.String(), common.ErrDuplicateKey)
		case !errors.Is(err, common.ErrRecordNotFound):
			return err
		}
		failed, err := s.db.GetITaskRW().ListTask(txnCtx, &task.Filter{
			Transaction: key.Transaction,
			Export:      key.Export,
			Statuses:    []string{constant.TaskStatusError},
		}, 0, 0)
		if err != nil {
			return err
		}
		total, err := s.db.GetITaskRW().CountTask(txnCtx, &task.Filter{Transaction: key.Transaction, Export: key.Export})
		if err != nil {
			return err
		}
		e := &export.Event{
			Transaction:       key.Transaction,
			Export:            key.Export,
			Kind:              kind,
			FailedCollections: []string{},
			TaskCount:         total,
		}
		for _, t := range failed {
			e.FailedCollections = append(e.FailedCollections, t.Collection)
		}
		event, err = s.db.GetIEventRW().CreateEvent(txnCtx, e)
		return err
	})
	if errors.Is(err, common.ErrDuplicateKey) {
		logger.Debug("export transition already fired", zap.String("export", key.String()), zap.String("kind", kind))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	switch kind {
	case constant.ExportEventError:
		logger.Warn("export finished with errors",
			zap.String("export", key.String()),
			zap.Strings("failed_collections", event.FailedCollections),
			zap.Int64("tasks", event.TaskCount))
	default:
		logger.Info("export terminated",
			zap.String("export", key.String()),
			zap.Int64("tasks", event.TaskCount))
	}
	return event, nil
}

func (s *ExportService) GetExport(ctx context.Context, key export.Key) (*export.Export, error) {
	return s.db.GetIExportRW().GetExport(ctx, key)
}

func (s *ExportService) ListExports(ctx context.Context, name string, page, pageSize int) ([]*export.Export, error) {
	return s.db.GetIExportRW().ListExport(ctx, name, page, pageSize)
}

func (s *ExportService) ListEvents(ctx context.Context, filter *export.EventFilter, page, pageSize int) ([]*export.Event, error) {
	return s.db.GetIEventRW().ListEvent(ctx, filter, page, pageSize)
}

// Status derives the export state from its task counts
func (s *ExportService) Status(ctx context.Context, key export.Key) (*ExportStatus, error) {
	if err := validateInput(key); err != nil {
		return nil, err
	}
	e, err := s.db.GetIExportRW().GetExport(ctx, key)
	if err != nil {
		return nil, err
	}
	st := &ExportStatus{Export: e, Counts: make(map[string]int64, len(constant.TaskStatuses))}
	for _, status := range constant.TaskStatuses {
		n, err := s.db.GetITaskRW().CountTask(ctx, &task.Filter{
			Transaction: key.Transaction,
			Export:      key.Export,
			Statuses:    []string{status},
		})
		if err != nil {
			return nil, err
		}
		st.Counts[status] = n
	}
	switch {
	case st.Counts[constant.TaskStatusCreated]+st.Counts[constant.TaskStatusRunning]+st.Counts[constant.TaskStatusPaused] > 0:
		st.State = constant.ExportStatusRunning
	case st.Counts[constant.TaskStatusError] > 0:
		st.State = constant.ExportStatusError
	default:
		st.State = constant.ExportStatusTerminated
	}

	event, err := s.db.GetIEventRW().GetEvent(ctx, key)
	switch {
	case err == nil:
		st.Event = event
	case !errors.Is(err, common.ErrRecordNotFound):
		return nil, err
	}
	return st, nil
}
