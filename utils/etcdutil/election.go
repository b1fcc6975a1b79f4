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
package etcdutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/utils/stringutil"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

const (
	// DefaultLeaderElectionTTLSecond is the session lease ttl, a leader that
	// stops renewing it loses leadership after this many seconds
	DefaultLeaderElectionTTLSecond = 30
	// DefaultMasterLeaderPrefixKey is the docwh-master leader election key prefix
	DefaultMasterLeaderPrefixKey = "/docwh-master/leader"
	// DefaultCampaignRetryInterval is the wait before campaigning again after
	// a lost session or a failed campaign
	DefaultCampaignRetryInterval = 3 * time.Second
)

var ErrNoLeader = errors.New("election has no leader")

// Election implements the leader election based on etcd
type Election struct {
	EtcdClient *clientv3.Client

	// LeaseTTL is the session ttl in seconds
	LeaseTTL int

	// Callbacks are callbacks that are triggered during certain lifecycle
	// events of the LeaderElector
	Callbacks Callbacks

	// Prefix is the election leader key prefix
	Prefix string

	// Identity is the election instance identity
	Identity string

	session  *concurrency.Session
	election *concurrency.Election
}

type Callbacks struct {
	// OnStartedLeading is called once the campaign is won
	OnStartedLeading func(ctx context.Context)
	// OnStoppedLeading is called when leadership ends, by ctx cancel or a
	// lost session
	OnStoppedLeading func(ctx context.Context)
	// OnNewLeader is called when the client observes a leader other than itself
	OnNewLeader func(identity string)
}

func NewElection(e *Election) (*Election, error) {
	if e.LeaseTTL <= 0 {
		e.LeaseTTL = DefaultLeaderElectionTTLSecond
	}
	if err := e.newSession(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Election) newSession() error {
	session, err := concurrency.NewSession(e.EtcdClient, concurrency.WithTTL(e.LeaseTTL))
	if err != nil {
		return fmt.Errorf("etcd election create session failed: [%v]", err)
	}
	e.session = session
	e.election = concurrency.NewElection(session, e.Prefix)
	return nil
}

// Run campaigns until ctx is done. A lost session stops leading and
// campaigns again on a fresh session.
func (e *Election) Run(ctx context.Context) {
	var observed *concurrency.Session
	for ctx.Err() == nil {
		// one observer per session
		if e.session != observed {
			observed = e.session
			go e.observe(ctx, e.session, e.election)
		}

		// campaign blocks until this instance is leader
		if err := e.election.Campaign(ctx, e.Identity); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("election campaign failed, waiting retry", zap.String("identity", e.Identity), zap.Error(err))
			e.renew(ctx)
			continue
		}

		logger.Info("election leader elected", zap.String("identity", e.Identity))
		if e.Callbacks.OnStartedLeading != nil {
			e.Callbacks.OnStartedLeading(ctx)
		}

		select {
		case <-ctx.Done():
			e.stop(ctx)
			resignCtx, cancel := context.WithTimeout(context.Background(), time.Duration(e.LeaseTTL)*time.Second)
			if err := e.election.Resign(resignCtx); err != nil {
				logger.Warn("election resign failed", zap.String("identity", e.Identity), zap.Error(err))
			}
			cancel()
			return
		case <-e.session.Done():
			logger.Warn("election session done, leader lost", zap.String("identity", e.Identity))
			e.stop(ctx)
			e.renew(ctx)
		}
	}
}

func (e *Election) stop(ctx context.Context) {
	if e.Callbacks.OnStoppedLeading != nil {
		e.Callbacks.OnStoppedLeading(ctx)
	}
}

func (e *Election) renew(ctx context.Context) {
	timer := time.NewTimer(DefaultCampaignRetryInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	select {
	case <-e.session.Done():
		if err := e.newSession(); err != nil {
			logger.Error("election session renew failed", zap.String("identity", e.Identity), zap.Error(err))
		}
	default:
	}
}

// observe leader change
func (e *Election) observe(ctx context.Context, session *concurrency.Session, election *concurrency.Election) {
	if e.Callbacks.OnNewLeader == nil {
		return
	}

	ch := election.Observe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			return
		case resp, ok := <-ch:
			if !ok {
				return
			}
			if len(resp.Kvs) == 0 {
				continue
			}
			leader := stringutil.BytesToString(resp.Kvs[0].Value)
			if leader != e.Identity {
				go e.Callbacks.OnNewLeader(leader)
			}
		}
	}
}

func (e *Election) Leader(ctx context.Context) (string, error) {
	resp, err := e.election.Leader(ctx)
	if errors.Is(err, concurrency.ErrElectionNoLeader) {
		return "", ErrNoLeader
	}
	if err != nil {
		return "", err
	}
	if len(resp.Kvs) == 0 {
		return "", ErrNoLeader
	}
	return string(resp.Kvs[0].Value), nil
}

func (e *Election) Close() {
	if e.session != nil {
		e.session.Close()
	}
}
