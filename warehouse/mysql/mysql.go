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
package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/warehouse"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	MYSQLDatabaseMaxIdleConn     = 16
	MYSQLDatabaseMaxConn         = 64
	MYSQLDatabaseConnMaxLifeTime = 300 * time.Second
	MYSQLDatabaseConnMaxIdleTime = 200 * time.Second
)

// mysql server error numbers the catalog calls translate
const (
	errDatabaseExists   = 1007
	errTableExists      = 1050
	errBadTable         = 1051
	errLockWaitTimeout  = 1205
	errDeadlock         = 1213
	errTooManyConnects  = 1040
	errServerShutdown   = 1053
	errQueryInterrupted = 1317
)

// Warehouse maps datasets to MySQL schemas
type Warehouse struct {
	db        *gorm.DB
	batchSize int
}

var _ warehouse.Warehouse = (*Warehouse)(nil)

func buildMysqlDSN(user, password, host string, port uint64) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?charset=utf8mb4&parseTime=true&loc=UTC", user, password, host, port)
}

func Open(ctx context.Context, opts *configutil.WarehouseOptions, logLevel string) (*Warehouse, error) {
	db, err := gorm.Open(mysql.Open(buildMysqlDSN(opts.Username, opts.Password, opts.Host, opts.Port)), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.GetGormLogger(logLevel, opts.SlowThreshold),
	})
	if err != nil || db.Error != nil {
		return nil, fmt.Errorf("mysql warehouse open failed, database error: [%v]", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(MYSQLDatabaseMaxIdleConn)
	sqlDB.SetMaxOpenConns(MYSQLDatabaseMaxConn)
	sqlDB.SetConnMaxLifetime(MYSQLDatabaseConnMaxLifeTime)
	sqlDB.SetConnMaxIdleTime(MYSQLDatabaseConnMaxIdleTime)
	if err = sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("mysql warehouse ping failed, database error: [%v]", err)
	}
	logger.Info("mysql warehouse open", zap.String("host", opts.Host), zap.Uint64("port", opts.Port))
	return &Warehouse{db: db, batchSize: opts.LoadBatchSize}, nil
}

func (w *Warehouse) DatasetExists(ctx context.Context, dataset string) (bool, error) {
	var n int64
	err := w.db.WithContext(ctx).
		Raw("SELECT COUNT(1) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?", dataset).
		Scan(&n).Error
	if err != nil {
		return false, classify(err, "mysql schema [%s] exists", dataset)
	}
	return n > 0, nil
}

func (w *Warehouse) CreateDataset(ctx context.Context, dataset string) error {
	err := w.db.WithContext(ctx).Exec(fmt.Sprintf("CREATE DATABASE %s DEFAULT CHARACTER SET utf8mb4", quote(dataset))).Error
	if err != nil {
		return classify(err, "mysql schema [%s] create", dataset)
	}
	return nil
}

func (w *Warehouse) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	var n int64
	err := w.db.WithContext(ctx).
		Raw("SELECT COUNT(1) FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?", dataset, table).
		Scan(&n).Error
	if err != nil {
		return false, classify(err, "mysql table [%s.%s] exists", dataset, table)
	}
	return n > 0, nil
}

func (w *Warehouse) CreateTable(ctx context.Context, dataset, table string, schema warehouse.Schema) error {
	err := w.db.WithContext(ctx).Exec(CreateTableStatement(dataset, table, schema)).Error
	if err != nil {
		return classify(err, "mysql table [%s.%s] create", dataset, table)
	}
	return nil
}

func (w *Warehouse) DeleteTable(ctx context.Context, dataset, table string) error {
	err := w.db.WithContext(ctx).Exec(fmt.Sprintf("DROP TABLE %s", warehouse.QuoteIdent(dataset, table))).Error
	if err != nil {
		return classify(err, "mysql table [%s.%s] drop", dataset, table)
	}
	return nil
}

func (w *Warehouse) LoadFile(ctx context.Context, dataset, table, path string) (int64, error) {
	var total int64
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		total, err = warehouse.ReadRows(path, w.batchSize, func(rows []*warehouse.Row) error {
			return tx.Table(dataset + "." + table).CreateInBatches(rows, len(rows)).Error
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mysql table [%s.%s] load failed: %w", dataset, table, err)
	}
	return total, nil
}

func (w *Warehouse) Exec(ctx context.Context, statement string) (int64, error) {
	res := w.db.WithContext(ctx).Exec(statement)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (w *Warehouse) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateTableStatement keeps row_id, inserted_at indexed for the merge window
func CreateTableStatement(dataset, table string, schema warehouse.Schema) string {
	cols := make([]string, 0, len(schema)+1)
	for _, c := range schema {
		cols = append(cols, fmt.Sprintf("%s %s NOT NULL", quote(c.Name), columnType(c)))
	}
	cols = append(cols, "KEY `idx_row_id_inserted_at` (`row_id`, `inserted_at`)")
	return fmt.Sprintf("CREATE TABLE %s (%s) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
		warehouse.QuoteIdent(dataset, table), strings.Join(cols, ", "))
}

func columnType(c warehouse.Column) string {
	switch {
	case c.Type == warehouse.TypeTimestamp:
		return "DATETIME(6)"
	case c.Name == "payload":
		return "LONGTEXT"
	case c.Name == "hash":
		return "CHAR(64)"
	default:
		return "VARCHAR(255)"
	}
}

// classify maps server error numbers onto the warehouse error types
func classify(err error, format string, args ...interface{}) error {
	if errors.Is(err, driver.ErrBadConn) {
		return warehouse.Transient.Wrap(err, format, args...)
	}
	var me *mysqldriver.MySQLError
	if !errors.As(err, &me) {
		return fmt.Errorf(format+" failed: %w", append(args, err)...)
	}
	switch me.Number {
	case errDatabaseExists, errTableExists:
		return warehouse.AlreadyExists.Wrap(err, format, args...)
	case errBadTable:
		return warehouse.NotFound.Wrap(err, format, args...)
	case errLockWaitTimeout, errDeadlock, errTooManyConnects, errServerShutdown, errQueryInterrupted:
		return warehouse.Transient.Wrap(err, format, args...)
	default:
		return fmt.Errorf(format+" failed: %w", append(args, err)...)
	}
}

func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
