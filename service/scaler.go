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
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"text/template"

	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/utils/configutil"
	"go.uber.org/zap"
)

// Scaler applies a replica count to the worker deployment
type Scaler interface {
	Scale(ctx context.Context, replicas int) error
}

// NewScaler returns the scaler named by the master config
func NewScaler(opts *configutil.MasterOptions) (Scaler, error) {
	switch strings.ToLower(opts.Scaler) {
	case "", configutil.DefaultMasterScalerLog:
		return &LogScaler{}, nil
	case configutil.DefaultMasterScalerCmd:
		return NewCommandScaler(opts.ScaleCommand)
	default:
		return nil, fmt.Errorf("the scaler [%s] is not supported, please choose [%s] or [%s]",
			opts.Scaler, configutil.DefaultMasterScalerLog, configutil.DefaultMasterScalerCmd)
	}
}

// LogScaler only records the decision
type LogScaler struct{}

func (s *LogScaler) Scale(ctx context.Context, replicas int) error {
	logger.Info("worker pool scale decision", zap.Int("replicas", replicas))
	return nil
}

// CommandScaler runs a shell command rendered with {{.Replicas}}, for example
// kubectl scale deploy/docwh-worker --replicas={{.Replicas}}
type CommandScaler struct {
	tmpl *template.Template
}

func NewCommandScaler(command string) (*CommandScaler, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("the command scaler requires a scale-command")
	}
	tmpl, err := template.New("scale").Option("missingkey=error").Parse(command)
	if err != nil {
		return nil, fmt.Errorf("the scale-command [%s] parse failed: %w", command, err)
	}
	return &CommandScaler{tmpl: tmpl}, nil
}

// Render returns the command line for the replica count
func (s *CommandScaler) Render(replicas int) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, struct{ Replicas int }{Replicas: replicas}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *CommandScaler) Scale(ctx context.Context, replicas int) error {
	command, err := s.Render(replicas)
	if err != nil {
		return err
	}
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	if err != nil {
		return fmt.Errorf("the scale command [%s] failed: [%v], output: [%s]", command, err, strings.TrimSpace(string(out)))
	}
	logger.Info("worker pool scaled",
		zap.Int("replicas", replicas),
		zap.String("command", command),
		zap.String("output", strings.TrimSpace(string(out))))
	return nil
}
