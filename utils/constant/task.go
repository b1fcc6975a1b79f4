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
package constant

// Task status
const (
	TaskStatusCreated    = "CREATED"
	TaskStatusRunning    = "RUNNING"
	TaskStatusPaused     = "PAUSED"
	TaskStatusError      = "ERROR"
	TaskStatusTerminated = "TERMINATED"
)

// Export state is derived from its tasks and never stored
const (
	ExportStatusRunning    = "RUNNING"
	ExportStatusError      = "ERROR"
	ExportStatusTerminated = "TERMINATED"
)

// Export event kind, one event at most per export
const (
	ExportEventError      = "ERROR"
	ExportEventTerminated = "TERMINATED"
)

// TaskErrorWorkerLost is recorded on running tasks whose worker stopped heartbeating
const TaskErrorWorkerLost = "worker lost"

var (
	TaskActiveStatuses      = []string{TaskStatusCreated, TaskStatusRunning}
	TaskNonTerminalStatuses = []string{TaskStatusCreated, TaskStatusRunning, TaskStatusPaused}
	TaskStatuses            = []string{TaskStatusCreated, TaskStatusRunning, TaskStatusPaused, TaskStatusError, TaskStatusTerminated}
)
