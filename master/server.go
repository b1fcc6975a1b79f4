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
package master

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/model"
	"github.com/wentaojin/docwh/msgsrv"
	"github.com/wentaojin/docwh/service"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/utils/constant"
	"github.com/wentaojin/docwh/utils/etcdutil"
	"github.com/wentaojin/docwh/utils/stringutil"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type Server struct {
	*Config

	db       model.IDatabase
	tasks    *service.TaskStateMachine
	exports  *service.ExportService
	scaling  *service.ScalingController
	crontab  *service.Crontab
	notifier *msgsrv.KafkaNotifier

	etcdClient *clientv3.Client

	// the etcd election, nil when the master runs alone
	election *etcdutil.Election

	// leader gates the cron loops, always true without election
	leader *atomic.Bool

	cron    *cron.Cron
	httpSrv *http.Server

	closeOnce sync.Once
}

// NewServer creates a new server
func NewServer(cfg *Config) *Server {
	return &Server{
		Config: cfg,
		leader: atomic.NewBool(false),
		cron:   cron.New(cron.WithLogger(logger.NewCronLogger(logger.GetRootLogger()))),
	}
}

// Start starts to serving
func (s *Server) Start(ctx context.Context) error {
	db, err := model.CreateDatabaseConnection(ctx, s.Database, constant.DefaultInstanceRoleMaster)
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

	scaler, err := service.NewScaler(s.MasterOptions)
	if err != nil {
		return err
	}

	if err = s.init(ctx, db, scaler, notifier); err != nil {
		return err
	}

	s.httpSrv = &http.Server{
		Addr:              s.MasterOptions.ClientAddr,
		Handler:           s.initOpenAPIHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening server addr request", zap.String("address", s.MasterOptions.ClientAddr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if err = s.campaign(ctx); err != nil {
		return err
	}
	s.cron.Start()

	select {
	case <-ctx.Done():
		return nil
	case err = <-errCh:
		return fmt.Errorf("master http server [%s] serve failed: %v", s.MasterOptions.ClientAddr, err)
	}
}

func (s *Server) init(ctx context.Context, db model.IDatabase, scaler service.Scaler, notifier service.Notifier) error {
	s.db = db
	s.exports = service.NewExportService(db)
	var opts []service.TaskOption
	if notifier != nil {
		opts = append(opts, service.WithNotifier(notifier))
	}
	s.tasks = service.NewTaskStateMachine(db, s.exports, opts...)
	s.scaling = service.NewScalingController(db, s.tasks, scaler, configutil.WithMasterOptions(s.MasterOptions))

	s.crontab = service.NewServiceCrontab(ctx, s.cron, s.exports, s.leader.Load)
	if err := s.crontab.Load(s.Exports); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.MasterOptions.ScaleInterval.String()), func() {
		s.scale(ctx)
	}); err != nil {
		return fmt.Errorf("master scale crontab add failed: %v", err)
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.MasterOptions.WorkerListInterval.String()), func() {
		s.listWorkers(ctx)
	}); err != nil {
		return fmt.Errorf("master worker list crontab add failed: %v", err)
	}
	return nil
}

func (s *Server) scale(ctx context.Context) {
	if !s.leader.Load() {
		logger.Debug("scale pass skipped, not leader", zap.String("master", s.MasterOptions.Name))
		return
	}
	if _, err := s.scaling.Scale(ctx); err != nil {
		if errors.Is(err, service.ErrScaleInFlight) {
			logger.Warn("scale pass skipped, previous pass in flight", zap.String("master", s.MasterOptions.Name))
			return
		}
		logger.Error("scale pass failed", zap.String("master", s.MasterOptions.Name), zap.Error(err))
	}
}

func (s *Server) listWorkers(ctx context.Context) {
	alive, err := s.scaling.List(ctx, &service.WorkerFilter{AliveOnly: true})
	if err != nil {
		logger.Error("worker list failed", zap.Error(err))
		return
	}
	names := make([]string, 0, len(alive))
	for _, w := range alive {
		names = append(names, w.Name)
	}
	logger.Info("worker list alive", zap.Int("alive", len(alive)), zap.Strings("workers", names))
}

// campaign runs the etcd election when endpoints are configured, otherwise
// the master is the only leader
func (s *Server) campaign(ctx context.Context) error {
	if s.MasterOptions.ElectionEndpoints == "" {
		s.leader.Store(true)
		return nil
	}

	var err error
	s.etcdClient, err = etcdutil.CreateClient(ctx, stringutil.WrapSchemes(s.MasterOptions.ElectionEndpoints, false), nil)
	if err != nil {
		return fmt.Errorf("create etcd client for [%v] failed: [%v]", s.MasterOptions.ElectionEndpoints, err)
	}

	s.election, err = etcdutil.NewElection(&etcdutil.Election{
		EtcdClient: s.etcdClient,
		LeaseTTL:   s.MasterOptions.ElectionTTL,
		Callbacks: etcdutil.Callbacks{
			OnStartedLeading: func(ctx context.Context) {
				s.leader.Store(true)
				logger.Info("server leader elected, cron loops active", zap.String("identity", s.MasterOptions.ClientAddr))
			},
			OnStoppedLeading: func(ctx context.Context) {
				s.leader.Store(false)
				logger.Info("server leader lost", zap.String("lost leader identity", s.MasterOptions.ClientAddr))
			},
			OnNewLeader: func(identity string) {
				if strings.EqualFold(s.MasterOptions.ClientAddr, identity) {
					return
				}
				logger.Info("server new leader elected", zap.String("new node identity", identity))
			},
		},
		Prefix:   etcdutil.DefaultMasterLeaderPrefixKey,
		Identity: s.MasterOptions.ClientAddr,
	})
	if err != nil {
		return err
	}
	go s.election.Run(ctx)
	return nil
}

// Close the server, this function can be called multiple times.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		logger.Info("docwh-master closing server")
		defer func() {
			logger.Info("docwh-master server closed")
		}()

		<-s.cron.Stop().Done()

		ctx, cancel := context.WithTimeout(context.Background(), constant.DefaultTaskRequestTimeout)
		defer cancel()
		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				logger.Warn("master http server shutdown failed", zap.Error(err))
			}
		}
		if s.election != nil {
			s.election.Close()
		}
		if s.etcdClient != nil {
			if err := s.etcdClient.Close(); err != nil {
				logger.Warn("master etcd client close failed", zap.Error(err))
			}
		}
		if s.notifier != nil {
			if err := s.notifier.Close(); err != nil {
				logger.Warn("master kafka notifier close failed", zap.Error(err))
			}
		}
		if s.db != nil {
			if err := s.db.Close(ctx); err != nil {
				logger.Warn("master database close failed", zap.Error(err))
			}
		}
	})
}
