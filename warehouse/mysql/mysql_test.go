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
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/wentaojin/docwh/warehouse"
)

func TestClassify(t *testing.T) {
	exists := classify(&mysqldriver.MySQLError{Number: errDatabaseExists, Message: "database exists"}, "schema [%s]", "shop")
	assert.True(t, warehouse.IsAlreadyExists(exists))

	tableExists := classify(&mysqldriver.MySQLError{Number: errTableExists}, "table [%s]", "orders")
	assert.True(t, warehouse.IsAlreadyExists(tableExists))

	missing := classify(fmt.Errorf("exec: %w", &mysqldriver.MySQLError{Number: errBadTable}), "table [%s]", "orders")
	assert.True(t, warehouse.IsNotFound(missing))

	assert.True(t, warehouse.IsTransient(classify(&mysqldriver.MySQLError{Number: errDeadlock}, "x")))
	assert.True(t, warehouse.IsTransient(classify(driver.ErrBadConn, "x")))

	denied := &mysqldriver.MySQLError{Number: 1045, Message: "access denied"}
	err := classify(denied, "schema [%s] create", "shop")
	assert.False(t, warehouse.IsTransient(err))
	assert.True(t, errors.Is(err, denied))
	assert.Contains(t, err.Error(), "schema [shop] create failed")
}

func TestCreateTableStatement(t *testing.T) {
	stmt := CreateTableStatement("shop", "orders", warehouse.StagingSchema)
	assert.Equal(t, "CREATE TABLE `shop`.`orders` ("+
		"`row_id` VARCHAR(255) NOT NULL, "+
		"`inserted_at` DATETIME(6) NOT NULL, "+
		"`payload` LONGTEXT NOT NULL, "+
		"`hash` CHAR(64) NOT NULL, "+
		"KEY `idx_row_id_inserted_at` (`row_id`, `inserted_at`)"+
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4", stmt)
	assert.Contains(t, buildMysqlDSN("root", "pw", "127.0.0.1", 3306), "loc=UTC")
}
