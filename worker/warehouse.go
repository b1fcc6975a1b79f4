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
	"fmt"
	"strings"

	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/utils/constant"
	"github.com/wentaojin/docwh/warehouse"
	"github.com/wentaojin/docwh/warehouse/bigquery"
	"github.com/wentaojin/docwh/warehouse/mysql"
	"github.com/wentaojin/docwh/warehouse/sqlite"
)

// OpenWarehouse opens the configured warehouse adapter
func OpenWarehouse(ctx context.Context, opts *configutil.WarehouseOptions, logLevel string) (warehouse.Warehouse, error) {
	switch strings.ToUpper(opts.Type) {
	case constant.WarehouseTypeBigQuery:
		return bigquery.Open(ctx, opts)
	case constant.WarehouseTypeMySQL:
		return mysql.Open(ctx, opts, logLevel)
	case constant.WarehouseTypeSQLite:
		return sqlite.Open(ctx, opts.Path)
	default:
		return nil, fmt.Errorf("warehouse type [%s] is not supported, supported [%s, %s, %s]",
			opts.Type, constant.WarehouseTypeBigQuery, constant.WarehouseTypeMySQL, constant.WarehouseTypeSQLite)
	}
}

// RetryConfig derives the catalog retry bounds from the warehouse options
func RetryConfig(opts *configutil.WarehouseOptions) *warehouse.RetryConfig {
	return &warehouse.RetryConfig{MaxRetries: opts.RetryAttempts, Delay: opts.RetryBackoff}
}
