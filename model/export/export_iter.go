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
package export

import "context"

type IExport interface {
	CreateExport(ctx context.Context, e *Export) (*Export, error)
	GetExport(ctx context.Context, key Key) (*Export, error)
	// LatestExport returns the export of the name with the greatest window end
	LatestExport(ctx context.Context, name string) (*Export, error)
	ListExport(ctx context.Context, name string, page, pageSize int) ([]*Export, error)
	// TouchExport bumps the revision
	TouchExport(ctx context.Context, key Key) error
}

type IEvent interface {
	// CreateEvent fails with common.ErrDuplicateKey when the export already has one
	CreateEvent(ctx context.Context, e *Event) (*Event, error)
	GetEvent(ctx context.Context, key Key) (*Event, error)
	ListEvent(ctx context.Context, filter *EventFilter, page, pageSize int) ([]*Event, error)
}
