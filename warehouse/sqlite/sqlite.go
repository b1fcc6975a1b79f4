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
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/utils/stringutil"
	"github.com/wentaojin/docwh/warehouse"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// timestampLayout sorts lexically in time order
const timestampLayout = "2006-01-02 15:04:05.000000"

// Warehouse keeps every dataset in its own database file under dir, attached
// to one pinned connection
type Warehouse struct {
	mu   sync.Mutex
	dir  string
	db   *sql.DB
	conn *sql.Conn
}

var _ warehouse.Warehouse = (*Warehouse)(nil)

func Open(ctx context.Context, dir string) (*Warehouse, error) {
	if err := stringutil.PathNotExistOrCreate(dir); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "_catalog.db"))
	if err != nil {
		return nil, fmt.Errorf("error on open sqlite warehouse [%s]: %v", dir, err)
	}
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error on ping sqlite warehouse [%s]: %v", dir, err)
	}
	logger.Info("sqlite warehouse open", zap.String("dir", dir))
	return &Warehouse{dir: dir, db: db, conn: conn}, nil
}

func (w *Warehouse) datasetFile(dataset string) string {
	return filepath.Join(w.dir, dataset+".db")
}

func (w *Warehouse) attached(ctx context.Context, dataset string) (bool, error) {
	rows, err := w.conn.QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			seq        int
			name, file sql.NullString
		)
		if err = rows.Scan(&seq, &name, &file); err != nil {
			return false, err
		}
		if name.String == dataset {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (w *Warehouse) attach(ctx context.Context, dataset string) error {
	_, err := w.conn.ExecContext(ctx, "ATTACH DATABASE ? AS "+quote(dataset), w.datasetFile(dataset))
	return err
}

// DatasetExists attaches a dataset file left by an earlier process
func (w *Warehouse) DatasetExists(ctx context.Context, dataset string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ok, err := w.attached(ctx, dataset)
	if err != nil || ok {
		return ok, err
	}
	if _, err = os.Stat(w.datasetFile(dataset)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err = w.attach(ctx, dataset); err != nil {
		return false, err
	}
	return true, nil
}

func (w *Warehouse) CreateDataset(ctx context.Context, dataset string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	ok, err := w.attached(ctx, dataset)
	if err != nil {
		return err
	}
	if ok {
		return warehouse.AlreadyExists.New("sqlite dataset [%s] already exists", dataset)
	}
	if err = w.attach(ctx, dataset); err != nil {
		return fmt.Errorf("sqlite dataset [%s] attach failed: %w", dataset, err)
	}
	// touch the schema so the file is materialized
	_, err = w.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA %s.user_version = 1", quote(dataset)))
	return err
}

func (w *Warehouse) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ok, err := w.attached(ctx, dataset)
	if err != nil || !ok {
		return false, err
	}
	var n int
	err = w.conn.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s.sqlite_master WHERE type = 'table' AND name = ?", quote(dataset)), table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (w *Warehouse) CreateTable(ctx context.Context, dataset, table string, schema warehouse.Schema) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var cols []string
	for _, c := range schema {
		cols = append(cols, fmt.Sprintf("%s TEXT NOT NULL", c.Name))
	}
	_, err := w.conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)",
		warehouse.QuoteIdent(dataset, table), strings.Join(cols, ", ")))
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return warehouse.AlreadyExists.Wrap(err, "sqlite table [%s.%s]", dataset, table)
	}
	return err
}

func (w *Warehouse) DeleteTable(ctx context.Context, dataset, table string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", warehouse.QuoteIdent(dataset, table)))
	if err != nil && strings.Contains(err.Error(), "no such table") {
		return warehouse.NotFound.Wrap(err, "sqlite table [%s.%s]", dataset, table)
	}
	return err
}

func (w *Warehouse) LoadFile(ctx context.Context, dataset, table, path string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tx, err := w.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (row_id, inserted_at, payload, hash) VALUES (?, ?, ?, ?)", warehouse.QuoteIdent(dataset, table)))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	total, err := warehouse.ReadRows(path, 0, func(rows []*warehouse.Row) error {
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.RowID, r.InsertedAt.UTC().Format(timestampLayout), r.Payload, r.Hash); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func (w *Warehouse) Exec(ctx context.Context, statement string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	res, err := w.conn.ExecContext(ctx, statement)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Query returns the rows of a table ordered by row_id then inserted_at
func (w *Warehouse) Query(ctx context.Context, dataset, table string) ([]*warehouse.Row, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows, err := w.conn.QueryContext(ctx, fmt.Sprintf(
		"SELECT row_id, payload, hash FROM %s ORDER BY row_id, inserted_at", warehouse.QuoteIdent(dataset, table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dataS []*warehouse.Row
	for rows.Next() {
		r := &warehouse.Row{}
		if err = rows.Scan(&r.RowID, &r.Payload, &r.Hash); err != nil {
			return nil, err
		}
		dataS = append(dataS, r)
	}
	return dataS, rows.Err()
}

func (w *Warehouse) Close() error {
	if err := w.conn.Close(); err != nil {
		return err
	}
	return w.db.Close()
}

func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
