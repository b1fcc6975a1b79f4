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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/wentaojin/docwh/model/task"
	"github.com/wentaojin/docwh/openapi"
	"github.com/wentaojin/docwh/utils/constant"
)

type AppTask struct {
	*App
}

func (a *App) AppTask() Cmder {
	return &AppTask{App: a}
}

func (a *AppTask) Cmd() *cobra.Command {
	return &cobra.Command{
		Use:              "task",
		Short:            "Operator cluster task",
		Long:             `Operator cluster task`,
		RunE:             a.RunE,
		TraverseChildren: true,
		SilenceUsage:     true,
	}
}

func (a *AppTask) RunE(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

type AppTaskList struct {
	*AppTask
	transaction string
	export      string
	worker      string
	status      string
	page        int
	pageSize    int
}

func (a *AppTask) AppTaskList() Cmder {
	return &AppTaskList{AppTask: a}
}

func (a *AppTaskList) Cmd() *cobra.Command {
	c := &cobra.Command{
		Use:          "list",
		Short:        "List tasks",
		Long:         `List tasks by export, worker or status`,
		RunE:         a.RunE,
		SilenceUsage: true,
	}
	c.Flags().StringVar(&a.transaction, "transaction", "", "filter by transaction")
	c.Flags().StringVar(&a.export, "export", "", "filter by export name")
	c.Flags().StringVar(&a.worker, "worker", "", "filter by claiming worker")
	c.Flags().StringVar(&a.status, "status", "", "filter by status, options: CREATED, RUNNING, PAUSED, ERROR, TERMINATED")
	c.Flags().IntVar(&a.page, "page", 1, "list page number")
	c.Flags().IntVar(&a.pageSize, "page-size", constant.DefaultListPageSize, "list page size")
	return c
}

func (a *AppTaskList) RunE(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd.OutOrStdout(), "task", "list")

	query := url.Values{}
	query.Set("page", strconv.Itoa(a.page))
	query.Set("pageSize", strconv.Itoa(a.pageSize))
	for k, v := range map[string]string{"transaction": a.transaction, "export": a.export, "worker": a.worker, "status": a.status} {
		if v != "" {
			query.Set(k, v)
		}
	}
	var tasks []*task.Task
	if err := a.request(cmd.Context(), openapi.RequestGETMethod, openapi.URL(a.Server, query, openapi.APITaskPath), nil, &tasks); err != nil {
		return p.failed(err)
	}
	return p.table(taskHeader, taskRows(tasks))
}

var taskHeader = table.Row{"TRANSACTION", "EXPORT", "COLLECTION", "STATUS", "WORKER", "EPOCH", "ERROR"}

func taskRows(tasks []*task.Task) []table.Row {
	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, table.Row{t.Transaction, t.Export, t.Collection, t.Status, t.Worker, t.Epoch, t.Error})
	}
	return rows
}

type AppTaskError struct {
	*AppTask
	worker  string
	message string
	epoch   int64
}

func (a *AppTask) AppTaskError() Cmder {
	return &AppTaskError{AppTask: a}
}

func (a *AppTaskError) Cmd() *cobra.Command {
	c := &cobra.Command{
		Use:          "error <transaction> <export> <collection>",
		Short:        "Move a task into the error status",
		Long:         `Move a created or running task into the error status, the export settles when it was the last one`,
		Args:         a.args,
		RunE:         a.RunE,
		SilenceUsage: true,
	}
	c.Flags().StringVar(&a.worker, "worker", "", "the worker holding the task, empty fails an unclaimed task")
	c.Flags().StringVar(&a.message, "message", "", "the error message")
	c.Flags().Int64Var(&a.epoch, "epoch", 0, "the claim epoch the error belongs to, 0 skips the check")
	return c
}

func (a *AppTaskError) args(cmd *cobra.Command, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("command [%s] requires the arguments <transaction> <export> <collection>, got %d", cmd.Name(), len(args))
	}
	return nil
}

func (a *AppTaskError) RunE(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd.OutOrStdout(), "task", "error")

	req := &openapi.TaskErrorRequest{Worker: a.worker, Error: a.message, Epoch: a.epoch}
	var tasks []*task.Task
	if err := a.request(cmd.Context(), openapi.RequestPOSTMethod,
		openapi.URL(a.Server, nil, openapi.APITaskPath, args[0], args[1], args[2], openapi.APIOperateError), req, &tasks); err != nil {
		return p.failed(err)
	}
	return p.table(taskHeader, taskRows(tasks))
}
