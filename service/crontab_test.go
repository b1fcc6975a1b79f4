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
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/utils/configutil"
)

func exportDef(name, schedule string) *configutil.ExportOptions {
	return &configutil.ExportOptions{
		Name:        name,
		Schedule:    schedule,
		Source:      "shop",
		Target:      "warehouse",
		Database:    "shop",
		Collections: []string{"users", "carts"},
	}
}

func TestCrontabLoad(t *testing.T) {
	f := newFixture(t)
	c := cron.New()
	tab := NewServiceCrontab(context.Background(), c, f.exports, nil)

	require.NoError(t, tab.Load([]*configutil.ExportOptions{
		exportDef("hourly", "@every 1h"),
		exportDef("manual", ""),
	}))
	assert.Len(t, c.Entries(), 1)

	_, ok := tab.Definition("manual")
	assert.True(t, ok)

	require.Error(t, tab.Load([]*configutil.ExportOptions{exportDef("hourly", "@every 1h")}))
	require.Error(t, tab.Load([]*configutil.ExportOptions{exportDef("broken", "not a schedule")}))
	require.Error(t, tab.Load([]*configutil.ExportOptions{{Name: "empty"}}))

	dup := exportDef("twice", "")
	dup.Collections = []string{"users", "users"}
	err := tab.Load([]*configutil.ExportOptions{dup})
	assert.True(t, IsInvalidInput(err))
	_, ok = tab.Definition("twice")
	assert.False(t, ok)
}

func TestCrontabFire(t *testing.T) {
	f := newFixture(t)
	tab := NewServiceCrontab(context.Background(), cron.New(), f.exports, nil)
	require.NoError(t, tab.Load([]*configutil.ExportOptions{exportDef("manual", "")}))

	res, err := tab.Fire(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, "manual", res.Export)
	assert.Equal(t, 2, res.Tasks)
	assert.NotEmpty(t, res.Transaction)

	_, err = tab.Fire(context.Background(), "unknown")
	assert.ErrorIs(t, err, common.ErrRecordNotFound)
	assert.False(t, IsInvalidInput(err))
}

func TestCronjobOnlyFiresOnLeader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := false
	job := NewCronjob(ctx, f.exports, exportDef("hourly", "@every 1h"), func() bool { return leader })

	job.Run()
	exports, err := f.exports.ListExports(ctx, "hourly", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, exports)

	leader = true
	job.Run()
	exports, err = f.exports.ListExports(ctx, "hourly", 0, 0)
	require.NoError(t, err)
	assert.Len(t, exports, 1)
}
