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
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/warehouse"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Warehouse is a BigQuery project. Its catalog is eventually consistent, a
// created dataset or table may stay invisible for a while.
type Warehouse struct {
	client   *bigquery.Client
	location string
}

var _ warehouse.Warehouse = (*Warehouse)(nil)

func Open(ctx context.Context, opts *configutil.WarehouseOptions) (*Warehouse, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, opts.Project, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery warehouse project [%s] client create failed: %w", opts.Project, err)
	}
	if opts.Location != "" {
		client.Location = opts.Location
	}
	logger.Info("bigquery warehouse open", zap.String("project", opts.Project), zap.String("location", opts.Location))
	return &Warehouse{client: client, location: opts.Location}, nil
}

func (w *Warehouse) DatasetExists(ctx context.Context, dataset string) (bool, error) {
	_, err := w.client.Dataset(dataset).Metadata(ctx)
	if err == nil {
		return true, nil
	}
	if err = classify(err, "bigquery dataset [%s] metadata", dataset); warehouse.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (w *Warehouse) CreateDataset(ctx context.Context, dataset string) error {
	if err := w.client.Dataset(dataset).Create(ctx, &bigquery.DatasetMetadata{Location: w.location}); err != nil {
		return classify(err, "bigquery dataset [%s] create", dataset)
	}
	return nil
}

func (w *Warehouse) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	_, err := w.client.Dataset(dataset).Table(table).Metadata(ctx)
	if err == nil {
		return true, nil
	}
	if err = classify(err, "bigquery table [%s.%s] metadata", dataset, table); warehouse.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (w *Warehouse) CreateTable(ctx context.Context, dataset, table string, schema warehouse.Schema) error {
	err := w.client.Dataset(dataset).Table(table).Create(ctx, &bigquery.TableMetadata{Schema: TableSchema(schema)})
	if err != nil {
		return classify(err, "bigquery table [%s.%s] create", dataset, table)
	}
	return nil
}

func (w *Warehouse) DeleteTable(ctx context.Context, dataset, table string) error {
	if err := w.client.Dataset(dataset).Table(table).Delete(ctx); err != nil {
		return classify(err, "bigquery table [%s.%s] delete", dataset, table)
	}
	return nil
}

// LoadFile runs a load job from the local newline delimited JSON file
func (w *Warehouse) LoadFile(ctx context.Context, dataset, table, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	src := bigquery.NewReaderSource(f)
	src.SourceFormat = bigquery.JSON
	src.Schema = TableSchema(warehouse.StagingSchema)
	loader := w.client.Dataset(dataset).Table(table).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteAppend

	job, err := loader.Run(ctx)
	if err != nil {
		return 0, classify(err, "bigquery table [%s.%s] load", dataset, table)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, classify(err, "bigquery table [%s.%s] load job [%s] wait", dataset, table, job.ID())
	}
	if err = status.Err(); err != nil {
		return 0, fmt.Errorf("bigquery table [%s.%s] load job [%s] failed: %w", dataset, table, job.ID(), err)
	}
	if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
		return stats.OutputRows, nil
	}
	return 0, nil
}

func (w *Warehouse) Exec(ctx context.Context, statement string) (int64, error) {
	q := w.client.Query(statement)
	job, err := q.Run(ctx)
	if err != nil {
		return 0, classify(err, "bigquery query run")
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, classify(err, "bigquery query job [%s] wait", job.ID())
	}
	if err = status.Err(); err != nil {
		return 0, fmt.Errorf("bigquery query job [%s] failed: %w", job.ID(), err)
	}
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

func (w *Warehouse) Close() error {
	return w.client.Close()
}

func TableSchema(schema warehouse.Schema) bigquery.Schema {
	out := make(bigquery.Schema, 0, len(schema))
	for _, c := range schema {
		ft := bigquery.StringFieldType
		if c.Type == warehouse.TypeTimestamp {
			ft = bigquery.TimestampFieldType
		}
		out = append(out, &bigquery.FieldSchema{Name: c.Name, Type: ft, Required: true})
	}
	return out
}

// classify maps googleapi status codes onto the warehouse error types
func classify(err error, format string, args ...interface{}) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf(format+" failed: %w", append(args, err)...)
	}
	switch gerr.Code {
	case http.StatusNotFound:
		return warehouse.NotFound.Wrap(err, format, args...)
	case http.StatusConflict:
		return warehouse.AlreadyExists.Wrap(err, format, args...)
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return warehouse.Transient.Wrap(err, format, args...)
	}
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "backendError", "internalError":
			return warehouse.Transient.Wrap(err, format, args...)
		}
	}
	return fmt.Errorf(format+" failed: %w", append(args, err)...)
}
