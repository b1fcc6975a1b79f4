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
	"strings"

	"github.com/spf13/cobra"
	"github.com/wentaojin/docwh/version"
)

// Cmder is one node of the command tree
type Cmder interface {
	Cmd() *cobra.Command
	RunE(cmd *cobra.Command, args []string) error
}

type App struct {
	Server string
	Args   []string
}

func (a *App) Cmd() *cobra.Command {
	c := &cobra.Command{
		Use:               "docwhctl",
		Short:             "CLI docwhctl app for docwh cluster",
		Version:           version.GetRawVersionInfo(),
		PersistentPreRunE: a.PersistentPreRunE,
		SilenceUsage:      true,
	}
	c.PersistentFlags().StringVarP(&a.Server, "server", "s", "", "server addr for docwh-master http api")
	return c
}

func (a *App) RunE(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

func (a *App) PersistentPreRunE(cmd *cobra.Command, args []string) error {
	if strings.EqualFold(a.Server, "") {
		err := cmd.Help()
		if err != nil {
			return err
		}
		return fmt.Errorf("flag parameter [server] are requirement, can not null")
	}
	return nil
}

// Command assembles the full command tree
func (a *App) Command() *cobra.Command {
	root := a.Cmd()

	w := a.AppWorker()
	workerCmd := w.Cmd()
	workerCmd.AddCommand(w.(*AppWorker).AppWorkerList().Cmd())

	e := a.AppExport().(*AppExport)
	exportCmd := e.Cmd()
	exportCmd.AddCommand(
		e.AppExportList().Cmd(),
		e.AppExportStatus().Cmd(),
		e.AppExportPlay().Cmd(),
		e.AppExportPause().Cmd(),
		e.AppExportSchedule().Cmd(),
		e.AppExportEvents().Cmd(),
	)

	t := a.AppTask().(*AppTask)
	taskCmd := t.Cmd()
	taskCmd.AddCommand(t.AppTaskList().Cmd(), t.AppTaskError().Cmd())

	root.AddCommand(workerCmd, a.AppScale().Cmd(), exportCmd, taskCmd)
	return root
}
