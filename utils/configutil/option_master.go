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
package configutil

import (
	"time"

	"github.com/wentaojin/docwh/utils/constant"
)

const (
	DefaultMasterNamePrefix = "master"
	DefaultMasterClientAddr = "127.0.0.1:8261"
	// DefaultMasterElectionTTL represented leader election lease ttl (seconds)
	DefaultMasterElectionTTL = 30
	DefaultMasterMinWorkers  = 0
	DefaultMasterMaxWorkers  = 16
	DefaultMasterScalerLog   = "log"
	DefaultMasterScalerCmd   = "command"
)

// MasterOptions control plane relative config items
type MasterOptions struct {
	Name       string `toml:"name" json:"name"`
	ClientAddr string `toml:"client-addr" json:"client-addr"`

	// ElectionEndpoints etcd endpoints, empty disables leader election and the
	// replica runs the periodic loops unconditionally
	ElectionEndpoints string `toml:"election-endpoints" json:"election-endpoints"`
	ElectionTTL       int    `toml:"election-ttl" json:"election-ttl"`

	ScaleInterval      time.Duration `toml:"scale-interval" json:"scale-interval"`
	WorkerListInterval time.Duration `toml:"worker-list-interval" json:"worker-list-interval"`
	WorkerAliveTTL     time.Duration `toml:"worker-alive-ttl" json:"worker-alive-ttl"`
	MinWorkers         int           `toml:"min-workers" json:"min-workers"`
	MaxWorkers         int           `toml:"max-workers" json:"max-workers"`
	WorkerCapacity     int           `toml:"worker-capacity" json:"worker-capacity"`
	ReapConcurrency    int           `toml:"reap-concurrency" json:"reap-concurrency"`

	// Scaler is one of log or command, ScaleCommand is a text/template
	// rendered with {{.Replicas}}
	Scaler       string `toml:"scaler" json:"scaler"`
	ScaleCommand string `toml:"scale-command" json:"scale-command"`
}

type MasterOption func(opts *MasterOptions)

func DefaultMasterServerConfig() *MasterOptions {
	return &MasterOptions{
		Name:               DefaultMasterNamePrefix,
		ClientAddr:         DefaultMasterClientAddr,
		ElectionTTL:        DefaultMasterElectionTTL,
		ScaleInterval:      constant.DefaultScaleInterval,
		WorkerListInterval: constant.DefaultWorkerListInterval,
		WorkerAliveTTL:     constant.DefaultWorkerAliveTTL,
		MinWorkers:         DefaultMasterMinWorkers,
		MaxWorkers:         DefaultMasterMaxWorkers,
		WorkerCapacity:     constant.DefaultWorkerCapacity,
		ReapConcurrency:    constant.DefaultReapConcurrency,
		Scaler:             DefaultMasterScalerLog,
	}
}

// WithMasterOptions overlays the non-zero fields of a parsed config on the defaults
func WithMasterOptions(src *MasterOptions) MasterOption {
	return func(opts *MasterOptions) {
		if src == nil {
			return
		}
		if src.Name != "" {
			opts.Name = src.Name
		}
		if src.ClientAddr != "" {
			opts.ClientAddr = src.ClientAddr
		}
		opts.ElectionEndpoints = src.ElectionEndpoints
		if src.ElectionTTL > 0 {
			opts.ElectionTTL = src.ElectionTTL
		}
		if src.ScaleInterval > 0 {
			opts.ScaleInterval = src.ScaleInterval
		}
		if src.WorkerListInterval > 0 {
			opts.WorkerListInterval = src.WorkerListInterval
		}
		if src.WorkerAliveTTL > 0 {
			opts.WorkerAliveTTL = src.WorkerAliveTTL
		}
		if src.MinWorkers > 0 {
			opts.MinWorkers = src.MinWorkers
		}
		if src.MaxWorkers > 0 {
			opts.MaxWorkers = src.MaxWorkers
		}
		if src.WorkerCapacity > 0 {
			opts.WorkerCapacity = src.WorkerCapacity
		}
		if src.ReapConcurrency > 0 {
			opts.ReapConcurrency = src.ReapConcurrency
		}
		if src.Scaler != "" {
			opts.Scaler = src.Scaler
		}
		opts.ScaleCommand = src.ScaleCommand
	}
}

func WithWorkerBounds(min, max int) MasterOption {
	return func(opts *MasterOptions) {
		opts.MinWorkers = min
		opts.MaxWorkers = max
	}
}
