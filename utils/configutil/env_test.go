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
package configutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentaojin/docwh/utils/constant"
)

func TestLoadEnvFileAndExpand(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DOCWH_TEST_MONGO=mongodb://db:27017/?replicaSet=rs0\nDOCWH_TEST_PW=s3cret\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("DOCWH_TEST_MONGO")
		os.Unsetenv("DOCWH_TEST_PW")
	})
	require.NoError(t, LoadEnvFile(path))
	require.NoError(t, LoadEnvFile(""))
	require.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing")))

	db := &DatabaseOptions{URI: "${DOCWH_TEST_MONGO}"}
	wh := &WarehouseOptions{Password: "$DOCWH_TEST_PW"}
	sources := []*SourceOptions{{Name: "shop", URI: "${DOCWH_TEST_MONGO}"}}
	ExpandSecrets(db, wh, sources)
	assert.Equal(t, "mongodb://db:27017/?replicaSet=rs0", db.URI)
	assert.Equal(t, "s3cret", wh.Password)
	assert.Equal(t, db.URI, sources[0].URI)
}

func TestDefaults(t *testing.T) {
	db := (&DatabaseOptions{}).WithDefaults()
	assert.Equal(t, DefaultDatabaseName, db.Database)
	assert.Equal(t, DefaultDatabaseConnectTimeout, db.ConnectTimeout)

	wh := (&WarehouseOptions{}).WithDefaults()
	assert.Equal(t, constant.WarehouseTypeSQLite, wh.Type)
	assert.Equal(t, DefaultWarehousePath, wh.Path)
	assert.Equal(t, constant.DefaultCatalogRetryAttempts, wh.RetryAttempts)

	m := DefaultMasterServerConfig()
	WithMasterOptions(&MasterOptions{MaxWorkers: 4, Scaler: DefaultMasterScalerCmd, ScaleCommand: "true"})(m)
	assert.Equal(t, 4, m.MaxWorkers)
	assert.Equal(t, DefaultMasterClientAddr, m.ClientAddr)
	assert.Equal(t, DefaultMasterScalerCmd, m.Scaler)
	assert.Equal(t, m.ScaleInterval, m.WorkerListInterval)
	assert.Equal(t, 10*time.Second, m.WorkerListInterval)

	w := DefaultWorkerServerConfig()
	assert.Equal(t, DefaultWorkerStagingDir, w.StagingDir)
	assert.Equal(t, constant.DefaultWorkerCapacity, w.Capacity)
	assert.Equal(t, int32(constant.DefaultStageBatchSize), w.StageBatchSize)
}
