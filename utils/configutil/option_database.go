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
	"time"

	"github.com/wentaojin/docwh/utils/constant"
)

const (
	DefaultDatabaseName            = "docwh"
	DefaultDatabaseConnectTimeout  = 10 * time.Second
	DefaultDatabaseMaxPoolSize     = 100
	DefaultDatabaseMinPoolSize     = 10
	DefaultDatabaseMaxConnIdleTime = 30 * time.Second
	DefaultWarehousePath           = "warehouse"
)

// DatabaseOptions is the orchestration document store (MongoDB replica set,
// transactions need one)
type DatabaseOptions struct {
	URI             string        `toml:"uri" json:"-"`
	Database        string        `toml:"database" json:"database"`
	ConnectTimeout  time.Duration `toml:"connect-timeout" json:"connect-timeout"`
	MaxPoolSize     uint64        `toml:"max-pool-size" json:"max-pool-size"`
	MinPoolSize     uint64        `toml:"min-pool-size" json:"min-pool-size"`
	MaxConnIdleTime time.Duration `toml:"max-conn-idle-time" json:"max-conn-idle-time"`
}

func (o *DatabaseOptions) WithDefaults() *DatabaseOptions {
	if o.Database == "" {
		o.Database = DefaultDatabaseName
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultDatabaseConnectTimeout
	}
	if o.MaxPoolSize == 0 {
		o.MaxPoolSize = DefaultDatabaseMaxPoolSize
	}
	if o.MinPoolSize == 0 {
		o.MinPoolSize = DefaultDatabaseMinPoolSize
	}
	if o.MaxConnIdleTime <= 0 {
		o.MaxConnIdleTime = DefaultDatabaseMaxConnIdleTime
	}
	return o
}

// SourceOptions names a document store the exports read from
type SourceOptions struct {
	Name string `toml:"name" json:"name" validate:"required"`
	URI  string `toml:"uri" json:"-" validate:"required"`
}

// WarehouseOptions selects and configures the warehouse adapter
type WarehouseOptions struct {
	Type string `toml:"type" json:"type"`

	// bigquery
	Project         string `toml:"project" json:"project"`
	CredentialsFile string `toml:"credentials-file" json:"credentials-file"`
	Location        string `toml:"location" json:"location"`

	// mysql
	Host          string `toml:"host" json:"host"`
	Port          uint64 `toml:"port" json:"port"`
	Username      string `toml:"username" json:"username"`
	Password      string `toml:"password" json:"-"`
	SlowThreshold uint64 `toml:"slow-threshold" json:"slow-threshold"`
	LoadBatchSize int    `toml:"load-batch-size" json:"load-batch-size"`

	// sqlite, datasets are files under the directory
	Path string `toml:"path" json:"path"`

	RetryAttempts int           `toml:"retry-attempts" json:"retry-attempts"`
	RetryBackoff  time.Duration `toml:"retry-backoff" json:"retry-backoff"`
}

func (o *WarehouseOptions) WithDefaults() *WarehouseOptions {
	if o.Type == "" {
		o.Type = constant.WarehouseTypeSQLite
	}
	if o.Type == constant.WarehouseTypeSQLite && o.Path == "" {
		o.Path = DefaultWarehousePath
	}
	if o.LoadBatchSize <= 0 {
		o.LoadBatchSize = constant.DefaultLoadBatchSize
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = constant.DefaultCatalogRetryAttempts
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = constant.DefaultCatalogRetryBackoff
	}
	return o
}

// KafkaOptions export event notification, empty brokers disables it
type KafkaOptions struct {
	Brokers string `toml:"brokers" json:"brokers"`
	Topic   string `toml:"topic" json:"topic"`
}

// ExportOptions is an export definition, fired on its cron schedule
type ExportOptions struct {
	Name            string        `toml:"name" json:"name" validate:"required"`
	Schedule        string        `toml:"schedule" json:"schedule"`
	Source          string        `toml:"source" json:"source" validate:"required"`
	Target          string        `toml:"target" json:"target" validate:"required"`
	Database        string        `toml:"database" json:"database" validate:"required"`
	Collections     []string      `toml:"collections" json:"collections" validate:"required,min=1,unique,dive,required"`
	InitialLookback time.Duration `toml:"initial-lookback" json:"initial-lookback"`
}
