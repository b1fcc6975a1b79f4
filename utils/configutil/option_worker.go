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
	DefaultWorkerNamePrefix = "worker"
	DefaultWorkerStagingDir = "staging"
)

// WorkerOptions worker relative config items
type WorkerOptions struct {
	Name              string        `toml:"name" json:"name"`
	WorkerAddr        string        `toml:"worker-addr" json:"worker-addr"`
	Capacity          int           `toml:"capacity" json:"capacity"`
	TaskInterval      time.Duration `toml:"task-interval" json:"task-interval"`
	HeartbeatInterval time.Duration `toml:"heartbeat-interval" json:"heartbeat-interval"`
	StagingDir        string        `toml:"staging-dir" json:"staging-dir"`
	StageBatchSize    int32         `toml:"stage-batch-size" json:"stage-batch-size"`
	// WindowField is the source document timestamp field the export window
	// filters on, empty stages the whole collection
	WindowField       string        `toml:"window-field" json:"window-field"`
}

func DefaultWorkerServerConfig() *WorkerOptions {
	return &WorkerOptions{
		Name:              DefaultWorkerNamePrefix,
		Capacity:          constant.DefaultWorkerCapacity,
		TaskInterval:      constant.DefaultTaskInterval,
		HeartbeatInterval: constant.DefaultHeartbeatInterval,
		StagingDir:        DefaultWorkerStagingDir,
		StageBatchSize:    constant.DefaultStageBatchSize,
	}
}
