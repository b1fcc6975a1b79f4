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
package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/utils/configutil"
	"go.uber.org/zap"
)

// Crontab registers export definitions on a cron scheduler
type Crontab struct {
	ctx     context.Context
	cron    *cron.Cron
	exports *ExportService
	// leader gates every fire, nil always fires
	leader func() bool
	defs   map[string]*configutil.ExportOptions
}

func NewServiceCrontab(ctx context.Context, c *cron.Cron, exports *ExportService, leader func() bool) *Crontab {
	return &Crontab{
		ctx:     ctx,
		cron:    c,
		exports: exports,
		leader:  leader,
		defs:    make(map[string]*configutil.ExportOptions),
	}
}

// Load adds one cron job per export definition, definitions without a
// schedule are only fired on demand
func (c *Crontab) Load(defs []*configutil.ExportOptions) error {
	for _, def := range defs {
		if err := validateInput(def); err != nil {
			return fmt.Errorf("the export definition [%s] is invalid: %w", def.Name, err)
		}
		if _, ok := c.defs[def.Name]; ok {
			return fmt.Errorf("the export definition [%s] is duplicated", def.Name)
		}
		c.defs[def.Name] = def
		if def.Schedule == "" {
			logger.Warn("the export definition has no schedule, fire it on demand", zap.String("export", def.Name))
			continue
		}
		if _, err := c.cron.AddJob(def.Schedule, NewCronjob(c.ctx, c.exports, def, c.leader)); err != nil {
			return fmt.Errorf("the export definition [%s] schedule [%s] add failed: %w", def.Name, def.Schedule, err)
		}
		logger.Info("the crontab export load running", zap.String("export", def.Name), zap.String("schedule", def.Schedule))
	}
	return nil
}

// Definition returns the loaded definition by name
func (c *Crontab) Definition(name string) (*configutil.ExportOptions, bool) {
	def, ok := c.defs[name]
	return def, ok
}

// Fire schedules the named definition now
func (c *Crontab) Fire(ctx context.Context, name string) (*ScheduleResult, error) {
	def, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("the export definition [%s] is not exist: %w", name, common.ErrRecordNotFound)
	}
	e, err := c.exports.Schedule(ctx, def)
	if err != nil {
		return nil, err
	}
	return &ScheduleResult{Transaction: e.Transaction, Export: e.Name, Tasks: len(e.Collections)}, nil
}

type ScheduleResult struct {
	Transaction string `json:"transaction"`
	Export      string `json:"export"`
	Tasks       int    `json:"tasks"`
}

// Cronjob fires one export definition
type Cronjob struct {
	ctx     context.Context
	exports *ExportService
	def     *configutil.ExportOptions
	leader  func() bool
}

func NewCronjob(ctx context.Context, exports *ExportService, def *configutil.ExportOptions, leader func() bool) *Cronjob {
	return &Cronjob{
		ctx:     ctx,
		exports: exports,
		def:     def,
		leader:  leader,
	}
}

func (c *Cronjob) Run() {
	if c.leader != nil && !c.leader() {
		logger.Debug("the crontab export skipped, not leader", zap.String("export", c.def.Name))
		return
	}
	if _, err := c.exports.Schedule(c.ctx, c.def); err != nil {
		logger.Error("the crontab export schedule failed, waiting for the next fire",
			zap.String("export", c.def.Name),
			zap.Error(err))
	}
}
