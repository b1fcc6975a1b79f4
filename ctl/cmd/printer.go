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
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/wentaojin/docwh/openapi"
	"github.com/wentaojin/docwh/utils/stringutil"
)

// printer writes the request banner and the response the same way for every command
type printer struct {
	out  io.Writer
	cyan *color.Color
}

func newPrinter(out io.Writer, command, action string) *printer {
	p := &printer{out: out, cyan: color.New(color.FgCyan, color.Bold)}
	fmt.Fprintf(out, "Component:    %s\n", p.cyan.Sprint("docwhctl"))
	fmt.Fprintf(out, "Command:      %s\n", p.cyan.Sprint(command))
	fmt.Fprintf(out, "Action:       %s\n", p.cyan.Sprint(action))
	return p
}

func (p *printer) failed(err error) error {
	fmt.Fprintf(p.out, "Status:       %s\n", p.cyan.Sprint("failed"))
	fmt.Fprintf(p.out, "Response:     %s\n", color.RedString("the request failed: %v", err))
	return err
}

func (p *printer) json(v interface{}) error {
	s, err := stringutil.MarshalIndentJSON(v)
	if err != nil {
		return p.failed(err)
	}
	fmt.Fprintf(p.out, "Status:       %s\n", p.cyan.Sprint("success"))
	fmt.Fprintf(p.out, "Response:     %s\n", s)
	return nil
}

func (p *printer) table(header table.Row, rows []table.Row) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	fmt.Fprintf(p.out, "Status:       %s\n", p.cyan.Sprint("success"))
	fmt.Fprintf(p.out, "%s\n", tw.Render())
	return nil
}

func (a *App) request(ctx context.Context, method, url string, body interface{}, data interface{}) error {
	var payload []byte
	if body != nil {
		s, err := stringutil.MarshalJSON(body)
		if err != nil {
			return err
		}
		payload = []byte(s)
	}
	return openapi.Request(ctx, method, url, payload, data)
}
