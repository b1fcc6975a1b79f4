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
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/openapi"
	"github.com/wentaojin/docwh/service"
	"github.com/wentaojin/docwh/utils/constant"
)

type AppExport struct {
	*App
}

func (a *App) AppExport() Cmder {
	return &AppExport{App: a}
}

func (a *AppExport) Cmd() *cobra.Command {
	return &cobra.Command{
		Use:              "export",
		Short:            "Operator cluster export",
		Long:             `Operator cluster export`,
		RunE:             a.RunE,
		TraverseChildren: true,
		SilenceUsage:     true,
	}
}

func (a *AppExport) RunE(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

// exportArgs expects <transaction> <export>
func exportArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("command [%s] requires the arguments <transaction> <export>, got %d", cmd.Name(), len(args))
	}
	return nil
}

type AppExportList struct {
	*AppExport
	name     string
	page     int
	pageSize int
}

func (a *AppExport) AppExportList() Cmder {
	return &AppExportList{AppExport: a}
}

func (a *AppExportList) Cmd() *cobra.Command {
	c := &cobra.Command{
		Use:          "list",
		Short:        "List scheduled exports",
		Long:         `List scheduled exports, newest first`,
		RunE:         a.RunE,
		SilenceUsage: true,
	}
	c.Flags().StringVar(&a.name, "name", "", "list exports of the export definition name")
	c.Flags().IntVar(&a.page, "page", 1, "list page number")
	c.Flags().IntVar(&a.pageSize, "page-size", constant.DefaultListPageSize, "list page size")
	return c
}

func (a *AppExportList) RunE(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd.OutOrStdout(), "export", "list")

	query := url.Values{}
	query.Set("page", strconv.Itoa(a.page))
	query.Set("pageSize", strconv.Itoa(a.pageSize))
	if a.name != "" {
		query.Set("name", a.name)
	}
	var exports []*export.Export
	if err := a.request(cmd.Context(), openapi.RequestGETMethod, openapi.URL(a.Server, query, openapi.APIExportPath), nil, &exports); err != nil {
		return p.failed(err)
	}
	rows := make([]table.Row, 0, len(exports))
	for _, e := range exports {
		rows = append(rows, table.Row{
			e.Transaction, e.Name, e.Source, e.Target,
			e.Window.Begin.Format(time.RFC3339), e.Window.End.Format(time.RFC3339),
			strings.Join(e.Collections, ","),
		})
	}
	return p.table(table.Row{"TRANSACTION", "EXPORT", "SOURCE", "TARGET", "WINDOW_BEGIN", "WINDOW_END", "COLLECTIONS"}, rows)
}

type AppExportStatus struct {
	*AppExport
}

func (a *AppExport) AppExportStatus() Cmder {
	return &AppExportStatus{AppExport: a}
}

func (a *AppExportStatus) Cmd() *cobra.Command {
	return &cobra.Command{
		Use:          "status <transaction> <export>",
		Short:        "Get the derived status of an export",
		Long:         `Get the derived status of an export with its task counts`,
		Args:         exportArgs,
		RunE:         a.RunE,
		SilenceUsage: true,
	}
}

func (a *AppExportStatus) RunE(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd.OutOrStdout(), "export", "status")

	var st service.ExportStatus
	if err := a.request(cmd.Context(), openapi.RequestGETMethod, openapi.URL(a.Server, nil, openapi.APIExportPath, args[0], args[1]), nil, &st); err != nil {
		return p.failed(err)
	}
	return p.json(st)
}

// AppExportOperate pauses or plays every task of an export
type AppExportOperate struct {
	*AppExport
	operate string
}

func (a *AppExport) AppExportPlay() Cmder {
	return &AppExportOperate{AppExport: a, operate: openapi.APIOperatePlay}
}

func (a *AppExport) AppExportPause() Cmder {
	return &AppExportOperate{AppExport: a, operate: openapi.APIOperatePause}
}

func (a *AppExportOperate) Cmd() *cobra.Command {
	short := "Resume the paused tasks of an export"
	if a.operate == openapi.APIOperatePause {
		short = "Pause the created and running tasks of an export"
	}
	return &cobra.Command{
		Use:          a.operate + " <transaction> <export>",
		Short:        short,
		Long:         short,
		Args:         exportArgs,
		RunE:         a.RunE,
		SilenceUsage: true,
	}
}

func (a *AppExportOperate) RunE(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd.OutOrStdout(), "export", a.operate)

	var st service.ExportStatus
	if err := a.request(cmd.Context(), openapi.RequestPOSTMethod, openapi.URL(a.Server, nil, openapi.APIExportPath, args[0], args[1], a.operate), nil, &st); err != nil {
		return p.failed(err)
	}
	return p.json(st)
}

type AppExportSchedule struct {
	*AppExport
}

func (a *AppExport) AppExportSchedule() Cmder {
	return &AppExportSchedule{AppExport: a}
}

func (a *AppExportSchedule) Cmd() *cobra.Command {
	return &cobra.Command{
		Use:          "schedule <name>",
		Short:        "Schedule one run of an export definition now",
		Long:         `Schedule one run of an export definition now, the window ends at the current time`,
		Args:         cobra.ExactArgs(1),
		RunE:         a.RunE,
		SilenceUsage: true,
	}
}

func (a *AppExportSchedule) RunE(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd.OutOrStdout(), "export", "schedule")

	var res service.ScheduleResult
	if err := a.request(cmd.Context(), openapi.RequestPOSTMethod, openapi.URL(a.Server, nil, openapi.APISchedulePath, args[0]), nil, &res); err != nil {
		return p.failed(err)
	}
	return p.json(res)
}

type AppExportEvents struct {
	*AppExport
	transaction string
	export      string
	kind        string
	page        int
	pageSize    int
}

func (a *AppExport) AppExportEvents() Cmder {
	return &AppExportEvents{AppExport: a}
}

func (a *AppExportEvents) Cmd() *cobra.Command {
	c := &cobra.Command{
		Use:          "events",
		Short:        "List export completion events",
		Long:         `List export completion events`,
		RunE:         a.RunE,
		SilenceUsage: true,
	}
	c.Flags().StringVar(&a.transaction, "transaction", "", "filter by transaction")
	c.Flags().StringVar(&a.export, "export", "", "filter by export name")
	c.Flags().StringVar(&a.kind, "kind", "", "filter by event kind, options: TERMINATED, ERROR")
	c.Flags().IntVar(&a.page, "page", 1, "list page number")
	c.Flags().IntVar(&a.pageSize, "page-size", constant.DefaultListPageSize, "list page size")
	return c
}

func (a *AppExportEvents) RunE(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd.OutOrStdout(), "export", "events")

	query := url.Values{}
	query.Set("page", strconv.Itoa(a.page))
	query.Set("pageSize", strconv.Itoa(a.pageSize))
	for k, v := range map[string]string{"transaction": a.transaction, "export": a.export, "kind": a.kind} {
		if v != "" {
			query.Set(k, v)
		}
	}
	var events []*export.Event
	if err := a.request(cmd.Context(), openapi.RequestGETMethod, openapi.URL(a.Server, query, openapi.APIEventPath), nil, &events); err != nil {
		return p.failed(err)
	}
	rows := make([]table.Row, 0, len(events))
	for _, e := range events {
		rows = append(rows, table.Row{
			e.Transaction, e.Export, e.Kind, e.TaskCount,
			strings.Join(e.FailedCollections, ","), e.CreatedAt.Format(time.RFC3339),
		})
	}
	return p.table(table.Row{"TRANSACTION", "EXPORT", "KIND", "TASKS", "FAILED_COLLECTIONS", "CREATED_AT"}, rows)
}
