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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentaojin/docwh/model/worker"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/utils/constant"
)

type recordingScaler struct {
	mu       sync.Mutex
	replicas []int
	entered  chan struct{}
	release  chan struct{}
	err      error
}

func (s *recordingScaler) Scale(ctx context.Context, replicas int) error {
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replicas = append(s.replicas, replicas)
	return s.err
}

func (s *recordingScaler) Calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.replicas...)
}

func newController(f *fixture, scaler Scaler, opts ...configutil.MasterOption) *ScalingController {
	c := NewScalingController(f.store, f.tasks, scaler, opts...)
	c.SetClock(func() time.Time { return f.now })
	return c
}

func heartbeat(t *testing.T, f *fixture, name string, at time.Time) {
	t.Helper()
	_, err := f.store.GetIWorkerRW().UpsertWorker(context.Background(), &worker.Worker{Name: name, Capacity: 1, LastSeen: at})
	require.NoError(t, err)
}

func TestDesiredWorkers(t *testing.T) {
	cases := []struct {
		backlog            int64
		capacity, min, max int
		want               int
	}{
		{0, 1, 0, 16, 0},
		{0, 1, 2, 16, 2},
		{5, 1, 0, 16, 5},
		{5, 2, 0, 16, 3},
		{4, 2, 0, 16, 2},
		{100, 1, 0, 16, 16},
		{3, 0, 0, 0, 3},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DesiredWorkers(c.backlog, c.capacity, c.min, c.max), "%+v", c)
	}
}

func TestScaleSingleFlight(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "users")
	scaler := &recordingScaler{entered: make(chan struct{}), release: make(chan struct{})}
	c := newController(f, scaler)

	done := make(chan *ScaleResult)
	go func() {
		res, err := c.Scale(context.Background())
		assert.NoError(t, err)
		done <- res
	}()
	<-scaler.entered
	assert.True(t, c.InFlight())

	_, err := c.Scale(context.Background())
	require.ErrorIs(t, err, ErrScaleInFlight)

	close(scaler.release)
	res := <-done
	require.NotNil(t, res)
	assert.True(t, res.Scaled)
	assert.Equal(t, 1, res.Desired)
	assert.Equal(t, []int{1}, scaler.Calls())
	assert.False(t, c.InFlight())

	scaler.entered = nil
	_, err = c.Scale(context.Background())
	require.NoError(t, err)
}

func TestScaleReleasesGuardOnFailure(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "users")
	scaler := &recordingScaler{err: errors.New("kubectl unavailable")}
	c := newController(f, scaler)

	_, err := c.Scale(context.Background())
	require.Error(t, err)
	assert.False(t, c.InFlight())

	_, err = c.Scale(context.Background())
	require.Error(t, err)
	assert.Len(t, scaler.Calls(), 2)
}

func TestScaleNoopWhenPoolFits(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "users", "carts")
	heartbeat(t, f, "w1", f.now)
	heartbeat(t, f, "w2", f.now)
	scaler := &recordingScaler{}
	c := newController(f, scaler)

	res, err := c.Scale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Alive)
	assert.Equal(t, int64(2), res.Backlog)
	assert.False(t, res.Scaled)
	assert.Empty(t, scaler.Calls())
}

func TestScaleReapsOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.schedule(t, "users", "carts")
	heartbeat(t, f, "w1", f.now)
	heartbeat(t, f, "w2", f.now.Add(-time.Hour))

	_, err := f.tasks.Claim(ctx, "w1", nil)
	require.NoError(t, err)
	_, err = f.tasks.Claim(ctx, "w2", nil)
	require.NoError(t, err)

	scaler := &recordingScaler{}
	c := newController(f, scaler, configutil.WithWorkerBounds(1, 4))
	res, err := c.Scale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Alive)
	assert.Equal(t, 1, res.Reaped)
	assert.Equal(t, int64(1), res.Backlog)
	assert.Equal(t, 1, res.Desired)
	assert.False(t, res.Scaled)

	got, err := f.store.GetITaskRW().GetTask(ctx, taskKey(e, "carts"))
	require.NoError(t, err)
	assert.Equal(t, constant.TaskStatusError, got.Status)
	assert.Equal(t, constant.TaskErrorWorkerLost, got.Error)

	got, err = f.store.GetITaskRW().GetTask(ctx, taskKey(e, "users"))
	require.NoError(t, err)
	assert.Equal(t, constant.TaskStatusRunning, got.Status)

	require.NoError(t, f.tasks.Complete(ctx, taskKey(e, "users"), &CompleteRequest{Worker: "w1"}))
	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, constant.ExportEventError, events[0].Kind)
	assert.Equal(t, []string{"carts"}, events[0].FailedCollections)
}

func TestListWorkers(t *testing.T) {
	f := newFixture(t)
	heartbeat(t, f, "worker-a", f.now)
	heartbeat(t, f, "worker-b", f.now.Add(-time.Hour))
	heartbeat(t, f, "other", f.now)
	c := newController(f, &recordingScaler{})
	ctx := context.Background()

	all, err := c.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alive, err := c.List(ctx, &WorkerFilter{NamePrefix: "worker-", AliveOnly: true})
	require.NoError(t, err)
	require.Len(t, alive, 1)
	assert.Equal(t, "worker-a", alive[0].Name)

	page, err := c.List(ctx, &WorkerFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "worker-b", page[0].Name)
}

func TestCommandScaler(t *testing.T) {
	s, err := NewCommandScaler("echo scaled {{.Replicas}}")
	require.NoError(t, err)
	line, err := s.Render(3)
	require.NoError(t, err)
	assert.Equal(t, "echo scaled 3", line)
	require.NoError(t, s.Scale(context.Background(), 3))

	s, err = NewCommandScaler("exit 3")
	require.NoError(t, err)
	require.Error(t, s.Scale(context.Background(), 1))

	_, err = NewCommandScaler(" ")
	require.Error(t, err)

	_, err = NewScaler(&configutil.MasterOptions{Scaler: "helm"})
	require.Error(t, err)
	sc, err := NewScaler(&configutil.MasterOptions{})
	require.NoError(t, err)
	assert.IsType(t, &LogScaler{}, sc)
}
