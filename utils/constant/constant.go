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
package constant

import "time"

const (
	DefaultInstanceRoleMaster = "master"
	DefaultInstanceRoleWorker = "worker"
)

// Warehouse Type
const (
	WarehouseTypeBigQuery = "BIGQUERY"
	WarehouseTypeMySQL    = "MYSQL"
	WarehouseTypeSQLite   = "SQLITE"
)

const StringSeparatorComma = ","

// Document store collections
const (
	CollectionTasks        = "tasks"
	CollectionExports      = "exports"
	CollectionExportEvents = "export_events"
	CollectionWorkers      = "workers"
)

// Periodic loops
const (
	DefaultScaleInterval      = 10 * time.Second
	DefaultTaskInterval       = 60 * time.Second
	DefaultWorkerListInterval = DefaultScaleInterval
	DefaultHeartbeatInterval  = 15 * time.Second
	DefaultWorkerAliveTTL     = 90 * time.Second
)

// Catalog retry, every catalog loop sleeps a fixed backoff between attempts
const (
	DefaultCatalogRetryBackoff  = time.Second
	DefaultCatalogRetryAttempts = 60
)

const (
	DefaultStageBatchSize       = 1000
	DefaultLoadBatchSize        = 500
	DefaultReapConcurrency      = 8
	DefaultWorkerCapacity       = 1
	DefaultScheduleLookback     = 24 * time.Hour
	DefaultListPageSize         = 100
	DefaultTaskRequestTimeout   = 30 * time.Second
	DefaultNotifyRequestTimeout = 10 * time.Second
)
