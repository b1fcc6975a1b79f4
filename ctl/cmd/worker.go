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
package cmd

import (
	"net/url"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/wentaojin/docwh/model/worker"
	"github.com/wentaojin/docwh/openapi"
	"github.com/wentaojin/docwh/service"
	"github.com/wentaojin/docwh/utils/constant"
)

type AppWorker struct {
	*App
}

func (a *App) AppWorker() Cmder {
	return &AppWorker{App: a}
}

func (a *AppWorker) Cmd() *cobra.Command {
	return &cobra.Command{
		Use:              "worker",
		Short:            "Operator cluster worker",
		Long:             `Operator cluster worker`,
		RunE:             a.RunE,
		TraverseChildren: true,
		SilenceUsage:     true,
	}
}

func (a *AppWorker) RunE(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

type AppWorkerList struct {
	*AppWorker
	prefix   string
	alive    bool
	page     int
	pageSize int
}

func (a *AppWorker) AppWorkerList() Cmder {
	return &AppWorkerList{AppWorker: a}
}

func (a *AppWorkerList) Cmd() *cobra.Command {
	c := &cobra.Command{
		Use:          "list",
		Short:        "List cluster workers",
		Long:         `List cluster workers by name prefix, newest heartbeat first`,
		RunE:         a.RunE,
		SilenceUsage: true,
	}
	c.Flags().StringVar(&a.prefix, "prefix", "", "list workers whose name starts with the prefix")
	c.Flags().BoolVar(&a.alive, "alive", false, "list only the workers with a recent heartbeat")
	c.Flags().IntVar(&a.page, "page", 1, "list page number")
	c.Flags().IntVar(&a.pageSize, "page-size", constant.DefaultListPageSize, "list page size")
	return c
}

func (a *AppWorkerList) RunE(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd.OutOrStdout(), "worker", "list")

	query := url.Values{}
	query.Set("page", strconv.Itoa(a.page))
	query.Set("pageSize", strconv.Itoa(a.pageSize))
	if a.prefix != "" {
		query.Set("prefix", a.prefix)
	}
	if a.alive {
		query.Set("alive", "true")
	}

	var workers []*worker.Worker
	if err := a.request(cmd.Context(), openapi.RequestGETMethod, openapi.URL(a.Server, query, openapi.APIWorkerPath), nil, &workers); err != nil {
		return p.failed(err)
	}
	rows := make([]table.Row, 0, len(workers))
	for _, w := range workers {
		rows = append(rows, table.Row{w.Name, w.Addr, w.Capacity, w.LastSeen.Format(time.RFC3339)})
	}
	return p.table(table.Row{"NAME", "ADDR", "CAPACITY", "LAST_SEEN"}, rows)
}

type AppScale struct {
	*App
}

func (a *App) AppScale() Cmder {
	return &AppScale{App: a}
}

func (a *AppScale) Cmd() *cobra.Command {
	return &cobra.Command{
		Use:          "scale",
		Short:        "Run one worker pool scaling pass on the master leader",
		Long:         `Run one worker pool scaling pass on the master leader`,
		RunE:         a.RunE,
		SilenceUsage: true,
	}
}

func (a *AppScale) RunE(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd.OutOrStdout(), "scale", "submit")

	var res service.ScaleResult
	if err := a.request(cmd.Context(), openapi.RequestPOSTMethod, openapi.URL(a.Server, nil, openapi.APIScalePath), nil, &res); err != nil {
		return p.failed(err)
	}
	return p.json(res)
}
