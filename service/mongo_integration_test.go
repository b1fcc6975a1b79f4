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
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentaojin/docwh/model"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/utils/constant"
)

// startMongoReplicaSet runs a single node replica set, transactions need one
func startMongoReplicaSet(t *testing.T) model.IDatabase {
	t.Helper()
	if os.Getenv("DOCWH_DOCKER_TESTS") != "1" {
		t.Skip("set DOCWH_DOCKER_TESTS=1 to run the mongo integration tests")
	}

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)
	pool.MaxWait = 2 * time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mongo",
		Tag:        "7.0",
		Cmd:        []string{"--replSet", "rs0", "--bind_ip_all"},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	require.NoError(t, pool.Retry(func() error {
		code, err := resource.Exec([]string{"mongosh", "--quiet", "--eval",
			`try { rs.status() } catch (e) { rs.initiate({_id: "rs0", members: [{_id: 0, host: "localhost:27017"}]}) }`,
		}, dockertest.ExecOptions{})
		if err != nil {
			return err
		}
		if code != 0 {
			return fmt.Errorf("replica set initiate exit code %d", code)
		}
		return nil
	}))

	cfg := &configutil.DatabaseOptions{
		URI:      fmt.Sprintf("mongodb://localhost:%s/?directConnection=true", resource.GetPort("27017/tcp")),
		Database: "docwh_it",
	}
	var db model.IDatabase
	require.NoError(t, pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err = model.CreateDatabaseConnection(ctx, cfg, constant.DefaultInstanceRoleMaster)
		return err
	}))
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db
}

func TestMongoCascadeFiresOnce(t *testing.T) {
	db := startMongoReplicaSet(t)
	ctx := context.Background()

	notifier := &recordingNotifier{}
	exports := NewExportService(db)
	tasks := NewTaskStateMachine(db, exports, WithNotifier(notifier))

	collections := []string{"a", "b", "c", "d"}
	e, err := exports.Schedule(ctx, &configutil.ExportOptions{
		Name:        "orders",
		Source:      "shop",
		Target:      "shop_wh",
		Database:    "shop",
		Collections: collections,
	})
	require.NoError(t, err)

	scope := &ClaimScope{Transaction: e.Transaction, Export: e.Name}
	var wg sync.WaitGroup
	errs := make(chan error, len(collections))
	for i := range collections {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			worker := fmt.Sprintf("w-%d", i)
			tk, err := tasks.Claim(ctx, worker, scope)
			if err != nil {
				errs <- err
				return
			}
			if i%2 == 0 {
				errs <- tasks.Complete(ctx, tk.Key(), &CompleteRequest{Worker: worker, Epoch: tk.Epoch})
				return
			}
			errs <- tasks.Error(ctx, tk.Key(), &ErrorRequest{Worker: worker, Error: "boom", Epoch: tk.Epoch})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	events, err := exports.ListEvents(ctx, &export.EventFilter{Transaction: e.Transaction, Export: e.Name}, 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, constant.ExportEventError, events[0].Kind)
	assert.Len(t, events[0].FailedCollections, 2)
	require.Len(t, notifier.Events(), 1)

	st, err := exports.Status(ctx, e.Key())
	require.NoError(t, err)
	assert.Equal(t, constant.ExportStatusError, st.State)

	_, err = tasks.Claim(ctx, "w-late", scope)
	assert.ErrorIs(t, err, ErrNoTaskAvailable)
}
