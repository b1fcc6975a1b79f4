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
package task

import "context"

type ITask interface {
	CreateTask(ctx context.Context, tasks []*Task) ([]*Task, error)
	GetTask(ctx context.Context, key Key) (*Task, error)
	ListTask(ctx context.Context, filter *Filter, page, pageSize int) ([]*Task, error)
	CountTask(ctx context.Context, filter *Filter) (int64, error)
	// UpdateTask applies the update to every task matching the filter. The
	// filter carries the expected prior state, a zero count means the
	// precondition no longer held.
	UpdateTask(ctx context.Context, filter *Filter, update *Update) (int64, error)
	// ClaimTask applies the update to the oldest matching task in one atomic
	// step and returns the updated task
	ClaimTask(ctx context.Context, filter *Filter, update *Update) (*Task, error)
}
