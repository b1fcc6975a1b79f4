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
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/utils/constant"
	"github.com/wentaojin/docwh/utils/stringutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Request consolidates one staged collection
type Request struct {
	Dataset     string
	Table       string
	Transaction string
	// File is the staging file, removed once the warehouse acknowledged the load
	File string
}

type Result struct {
	Dataset  string `json:"dataset"`
	Table    string `json:"table"`
	TmpTable string `json:"tmpTable"`
	Loaded   int64  `json:"loaded"`
	Merged   int64  `json:"merged"`
}

// Consolidator moves a staging file into a warehouse table through a
// temporary table and an idempotent merge
type Consolidator struct {
	wh    Warehouse
	retry *RetryConfig
}

func NewConsolidator(wh Warehouse, retry *RetryConfig) *Consolidator {
	if retry == nil {
		retry = &RetryConfig{
			MaxRetries: constant.DefaultCatalogRetryAttempts,
			Delay:      constant.DefaultCatalogRetryBackoff,
		}
	}
	return &Consolidator{wh: wh, retry: retry}
}

// TableNames returns the sanitized dataset, main and temporary table names
func TableNames(dataset, table, transaction string) (string, string, string) {
	return stringutil.Sanitize(dataset),
		stringutil.Sanitize(table),
		stringutil.Sanitize(stringutil.StringBuilder(table, "_tmp_", transaction))
}

func (c *Consolidator) Consolidate(ctx context.Context, req *Request) (*Result, error) {
	startTime := time.Now()
	res := &Result{}
	res.Dataset, res.Table, res.TmpTable = TableNames(req.Dataset, req.Table, req.Transaction)

	if err := c.EnsureDataset(ctx, res.Dataset); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, table := range []string{res.TmpTable, res.Table} {
		table := table
		g.Go(func() error {
			return c.EnsureTable(gctx, res.Dataset, table)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// the merged rows are published, a leftover temporary table is only logged
	err := c.loadAndMerge(ctx, req, res)
	if dropErr := c.DropTable(ctx, res.Dataset, res.TmpTable); dropErr != nil {
		logger.Warn("warehouse temporary table cleanup failed",
			zap.String("dataset", res.Dataset),
			zap.String("table", res.TmpTable),
			zap.Error(dropErr))
	}
	if err != nil {
		return nil, err
	}

	logger.Info("warehouse consolidation finished",
		zap.String("dataset", res.Dataset),
		zap.String("table", res.Table),
		zap.Int64("loaded", res.Loaded),
		zap.Int64("merged", res.Merged),
		zap.String("cost", time.Since(startTime).String()))
	return res, nil
}

func (c *Consolidator) loadAndMerge(ctx context.Context, req *Request, res *Result) error {
	loaded, err := c.wh.LoadFile(ctx, res.Dataset, res.TmpTable, req.File)
	if err != nil {
		return fmt.Errorf("the warehouse table [%s.%s] load file [%s] failed: %w", res.Dataset, res.TmpTable, req.File, err)
	}
	res.Loaded = loaded
	if err = os.Remove(req.File); err != nil {
		logger.Warn("the staging file remove failed", zap.String("file", req.File), zap.Error(err))
	}

	merged, err := c.wh.Exec(ctx, MergeStatement(res.Dataset, res.Table, res.TmpTable))
	if err != nil {
		return fmt.Errorf("the warehouse table [%s.%s] merge failed: %w", res.Dataset, res.Table, err)
	}
	res.Merged = merged
	return nil
}

// EnsureDataset creates the dataset when missing and waits until it is visible
func (c *Consolidator) EnsureDataset(ctx context.Context, dataset string) error {
	return c.retry.Until(ctx, "ensure dataset "+dataset, func(ctx context.Context) (bool, error) {
		exists, err := c.wh.DatasetExists(ctx, dataset)
		if err != nil || exists {
			return exists, err
		}
		if err = c.wh.CreateDataset(ctx, dataset); err != nil && !IsAlreadyExists(err) {
			return false, err
		}
		return c.wh.DatasetExists(ctx, dataset)
	})
}

// EnsureTable creates the table when missing and waits until it is visible
func (c *Consolidator) EnsureTable(ctx context.Context, dataset, table string) error {
	return c.retry.Until(ctx, "ensure table "+dataset+"."+table, func(ctx context.Context) (bool, error) {
		exists, err := c.wh.TableExists(ctx, dataset, table)
		if err != nil || exists {
			return exists, err
		}
		if err = c.wh.CreateTable(ctx, dataset, table, StagingSchema); err != nil && !IsAlreadyExists(err) {
			return false, err
		}
		return c.wh.TableExists(ctx, dataset, table)
	})
}

// DropTable deletes the table and waits until it is gone
func (c *Consolidator) DropTable(ctx context.Context, dataset, table string) error {
	return c.retry.Until(ctx, "drop table "+dataset+"."+table, func(ctx context.Context) (bool, error) {
		exists, err := c.wh.TableExists(ctx, dataset, table)
		if err != nil || !exists {
			return !exists, err
		}
		if err = c.wh.DeleteTable(ctx, dataset, table); err != nil && !IsNotFound(err) {
			return false, err
		}
		exists, err = c.wh.TableExists(ctx, dataset, table)
		return !exists, err
	})
}
