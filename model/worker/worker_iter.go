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
package worker

import "context"

type IWorker interface {
	// UpsertWorker registers the worker or refreshes its heartbeat
	UpsertWorker(ctx context.Context, w *Worker) (*Worker, error)
	GetWorker(ctx context.Context, name string) (*Worker, error)
	ListWorker(ctx context.Context, filter *Filter, page, pageSize int) ([]*Worker, error)
	DeleteWorker(ctx context.Context, name string) error
}
