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
package warehouse

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wentaojin/docwh/utils/constant"
)

// Warehouse is the catalog and DML surface a consolidation needs. Catalog
// calls may be eventually consistent: a created object is not necessarily
// visible to the next existence check.
type Warehouse interface {
	DatasetExists(ctx context.Context, dataset string) (bool, error)
	// CreateDataset returns an AlreadyExists error when the dataset exists
	CreateDataset(ctx context.Context, dataset string) error
	TableExists(ctx context.Context, dataset, table string) (bool, error)
	// CreateTable returns an AlreadyExists error when the table exists
	CreateTable(ctx context.Context, dataset, table string, schema Schema) error
	// DeleteTable returns a NotFound error when the table does not exist
	DeleteTable(ctx context.Context, dataset, table string) error
	// LoadFile bulk-loads a newline delimited JSON file of rows into the table
	LoadFile(ctx context.Context, dataset, table, path string) (int64, error)
	// Exec runs a DML statement and returns the affected row count
	Exec(ctx context.Context, statement string) (int64, error)
	Close() error
}

const (
	TypeString    = "STRING"
	TypeTimestamp = "TIMESTAMP"
)

type Column struct {
	Name string
	Type string
}

type Schema []Column

// StagingSchema is the layout of every consolidated table
var StagingSchema = Schema{
	{Name: "row_id", Type: TypeString},
	{Name: "inserted_at", Type: TypeTimestamp},
	{Name: "payload", Type: TypeString},
	{Name: "hash", Type: TypeString},
}

// Row is one staged document
type Row struct {
	RowID      string    `json:"row_id" gorm:"column:row_id"`
	InsertedAt time.Time `json:"inserted_at" gorm:"column:inserted_at"`
	Payload    string    `json:"payload" gorm:"column:payload"`
	Hash       string    `json:"hash" gorm:"column:hash"`
}

// NewRow hashes the payload, insertedAt is kept in UTC at microsecond precision
func NewRow(rowID string, payload []byte, insertedAt time.Time) *Row {
	sum := sha256.Sum256(payload)
	return &Row{
		RowID:      rowID,
		InsertedAt: insertedAt.UTC().Truncate(time.Microsecond),
		Payload:    string(payload),
		Hash:       hex.EncodeToString(sum[:]),
	}
}

// RowWriter appends rows to a staging file as newline delimited JSON
type RowWriter struct {
	w     *bufio.Writer
	enc   *json.Encoder
	count int64
}

func NewRowWriter(w io.Writer) *RowWriter {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &RowWriter{w: bw, enc: enc}
}

func (w *RowWriter) Write(r *Row) error {
	if err := w.enc.Encode(r); err != nil {
		return err
	}
	w.count++
	return nil
}

func (w *RowWriter) Flush() error {
	return w.w.Flush()
}

func (w *RowWriter) Count() int64 {
	return w.count
}

// ReadRows streams a staging file in batches of at most batchSize rows
func ReadRows(path string, batchSize int, fn func(rows []*Row) error) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("the staging file [%s] open failed: %w", path, err)
	}
	defer f.Close()

	if batchSize <= 0 {
		batchSize = constant.DefaultLoadBatchSize
	}
	var (
		total int64
		batch = make([]*Row, 0, batchSize)
	)
	dec := json.NewDecoder(f)
	for {
		var r Row
		err = dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, fmt.Errorf("the staging file [%s] decode row [%d] failed: %w", path, total+int64(len(batch)), err)
		}
		batch = append(batch, &r)
		if len(batch) == batchSize {
			if err = fn(batch); err != nil {
				return total, err
			}
			total += int64(len(batch))
			batch = make([]*Row, 0, batchSize)
		}
	}
	if len(batch) > 0 {
		if err = fn(batch); err != nil {
			return total, err
		}
		total += int64(len(batch))
	}
	return total, nil
}
