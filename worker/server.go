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
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/model"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/model/task"
	"github.com/wentaojin/docwh/model/worker"
	"github.com/wentaojin/docwh/msgsrv"
	"github.com/wentaojin/docwh/service"
	"github.com/wentaojin/docwh/utils/constant"
	"github.com/wentaojin/docwh/warehouse"
	"go.uber.org/zap"
)

type Server struct {
	*Config

	db           model.IDatabase
	tasks        *service.TaskStateMachine
	exports      *service.ExportService
	stager       Stager
	wh           warehouse.Warehouse
	consolidator *warehouse.Consolidator
	notifier     *msgsrv.KafkaNotifier

	cron *cron.Cron
	now  func() time.Time

	closeOnce sync.Once
}

// NewServer creates a new server
func NewServer(cfg *Config) *Server {
	return &Server{
		Config: cfg,
		cron:   cron.New(cron.WithLogger(logger.NewCronLogger(logger.GetRootLogger()))),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start connects the document store, the sources and the warehouse, then
// runs the task and heartbeat loops until ctx is done
func (s *Server) Start(ctx context.Context) error {
	db, err := model.CreateDatabaseConnection(ctx, s.Database, constant.DefaultInstanceRoleWorker)
	if err != nil {
		return err
	}
	s.db = db

	var notifier service.Notifier
	if s.Kafka != nil && s.Kafka.Brokers != "" {
		s.notifier, err = msgsrv.NewKafkaNotifier(ctx, s.Kafka)
		if err != nil {
			return err
		}
		notifier = s.notifier
	}

	stager, err := NewMongoStager(ctx, s.WorkerOptions, s.Sources)
	if err != nil {
		return err
	}
	s.stager = stager

	wh, err := OpenWarehouse(ctx, s.Warehouse, s.LogConfig.LogLevel)
	if err != nil {
		return err
	}

	s.init(db, stager, wh, notifier)

	if err = s.Heartbeat(ctx); err != nil {
		return err
	}
	if err = s.crontab(ctx); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info("docwh-worker started",
		zap.String("worker", s.WorkerOptions.Name),
		zap.String("task interval", s.WorkerOptions.TaskInterval.String()),
		zap.String("heartbeat interval", s.WorkerOptions.HeartbeatInterval.String()))

	<-ctx.Done()
	return nil
}

func (s *Server) init(db model.IDatabase, stager Stager, wh warehouse.Warehouse, notifier service.Notifier) {
	s.db = db
	s.stager = stager
	s.wh = wh
	s.exports = service.NewExportService(db)
	var opts []service.TaskOption
	if notifier != nil {
		opts = append(opts, service.WithNotifier(notifier))
	}
	s.tasks = service.NewTaskStateMachine(db, s.exports, opts...)
	s.consolidator = warehouse.NewConsolidator(wh, RetryConfig(s.Warehouse))
}

func (s *Server) crontab(ctx context.Context) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.WorkerOptions.TaskInterval.String()), func() {
		if _, err := s.RunOnce(ctx); err != nil {
			if errors.Is(err, service.ErrNoTaskAvailable) {
				logger.Debug("worker idle, no task available", zap.String("worker", s.WorkerOptions.Name))
				return
			}
			logger.Error("worker task run failed", zap.String("worker", s.WorkerOptions.Name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("worker task crontab add failed: %v", err)
	}
	_, err = s.cron.AddFunc(fmt.Sprintf("@every %s", s.WorkerOptions.HeartbeatInterval.String()), func() {
		if err := s.Heartbeat(ctx); err != nil {
			logger.Error("worker heartbeat failed", zap.String("worker", s.WorkerOptions.Name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("worker heartbeat crontab add failed: %v", err)
	}
	return nil
}

// Heartbeat registers the worker or refreshes its last seen time
func (s *Server) Heartbeat(ctx context.Context) error {
	_, err := s.db.GetIWorkerRW().UpsertWorker(ctx, &worker.Worker{
		Name:     s.WorkerOptions.Name,
		Addr:     s.WorkerOptions.WorkerAddr,
		Capacity: s.WorkerOptions.Capacity,
		LastSeen: s.now(),
	})
	return err
}

// RunOnce claims one task and runs it to TERMINATED or ERROR
func (s *Server) RunOnce(ctx context.Context) (*task.Task, error) {
	t, err := s.tasks.Claim(ctx, s.WorkerOptions.Name, nil)
	if err != nil {
		return nil, err
	}

	res, err := s.execute(ctx, t)
	if err != nil {
		logger.Error("worker task execute failed",
			zap.String("task", t.Key().String()),
			zap.String("worker", s.WorkerOptions.Name),
			zap.Error(err))
		if setErr := s.tasks.Error(ctx, t.Key(), &service.ErrorRequest{
			Worker: s.WorkerOptions.Name,
			Error:  err.Error(),
			Epoch:  t.Epoch,
		}); setErr != nil {
			return t, fmt.Errorf("task [%s] error transition failed: %w", t.Key().String(), setErr)
		}
		return t, nil
	}

	if err = s.tasks.Complete(ctx, t.Key(), &service.CompleteRequest{
		Worker: s.WorkerOptions.Name,
		Epoch:  t.Epoch,
	}); err != nil {
		return t, fmt.Errorf("task [%s] complete transition failed: %w", t.Key().String(), err)
	}
	logger.Info("worker task finished",
		zap.String("task", t.Key().String()),
		zap.Int64("loaded", res.Loaded),
		zap.Int64("merged", res.Merged))
	return t, nil
}

func (s *Server) execute(ctx context.Context, t *task.Task) (*warehouse.Result, error) {
	e, err := s.exports.GetExport(ctx, export.Key{Transaction: t.Transaction, Export: t.Export})
	if err != nil {
		return nil, err
	}
	staged, err := s.stager.Stage(ctx, e, t.Collection)
	if err != nil {
		return nil, err
	}
	res, err := s.consolidator.Consolidate(ctx, &warehouse.Request{
		Dataset:     e.Target,
		Table:       t.Collection,
		Transaction: t.Transaction,
		File:        staged.Path,
	})
	if err != nil {
		if rmErr := os.Remove(staged.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("staging file remove failed", zap.String("file", staged.Path), zap.Error(rmErr))
		}
		return nil, err
	}
	return res, nil
}

// Close the server, this function can be called multiple times.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		logger.Info("docwh-worker closing server")
		defer func() {
			logger.Info("docwh-worker server closed")
		}()

		<-s.cron.Stop().Done()

		ctx, cancel := context.WithTimeout(context.Background(), constant.DefaultTaskRequestTimeout)
		defer cancel()
		if s.stager != nil {
			if err := s.stager.Close(ctx); err != nil {
				logger.Warn("worker source close failed", zap.Error(err))
			}
		}
		if s.wh != nil {
			if err := s.wh.Close(); err != nil {
				logger.Warn("worker warehouse close failed", zap.Error(err))
			}
		}
		if s.notifier != nil {
			if err := s.notifier.Close(); err != nil {
				logger.Warn("worker kafka notifier close failed", zap.Error(err))
			}
		}
		if s.db != nil {
			if err := s.db.Close(ctx); err != nil {
				logger.Warn("worker database close failed", zap.Error(err))
			}
		}
	})
}
