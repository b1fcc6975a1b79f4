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

import (
	"fmt"
	"time"

	"github.com/wentaojin/docwh/model/common"
)

// Window is the half-open time range [Begin, End) an export covers
type Window struct {
	Begin time.Time `bson:"begin" json:"begin"`
	End   time.Time `bson:"end" json:"end"`
}

func NewWindow(begin, end time.Time) (Window, error) {
	if begin.After(end) {
		return Window{}, fmt.Errorf("window begin [%s] is after end [%s]", begin.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Window{Begin: begin.UTC(), End: end.UTC()}, nil
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Begin) && t.Before(w.End)
}

// Export is one scheduled run of an export definition. It has no status of
// its own, the status is derived from its tasks.
type Export struct {
	common.Entity `bson:",inline"`
	Name          string   `bson:"name" json:"name"`
	Transaction   string   `bson:"transaction" json:"transaction"`
	Source        string   `bson:"source" json:"source"`
	Target        string   `bson:"target" json:"target"`
	Database      string   `bson:"database" json:"database"`
	Window        Window   `bson:"window" json:"window"`
	Collections   []string `bson:"collections" json:"collections"`
	// Revision is bumped by every settling task transition, concurrent
	// transitions of the same export conflict on it
	Revision int64 `bson:"revision" json:"revision"`
}

func (e *Export) Key() Key {
	return Key{Transaction: e.Transaction, Export: e.Name}
}

type Key struct {
	Transaction string `json:"transaction" validate:"required"`
	Export      string `json:"export" validate:"required"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Transaction, k.Export)
}

// Event records the export-level transition, at most one per export
type Event struct {
	common.Entity     `bson:",inline"`
	Transaction       string   `bson:"transaction" json:"transaction"`
	Export            string   `bson:"_export" json:"export"`
	Kind              string   `bson:"kind" json:"kind"`
	FailedCollections []string `bson:"failedCollections" json:"failedCollections"`
	TaskCount         int64    `bson:"taskCount" json:"taskCount"`
}

func (e *Event) Key() Key {
	return Key{Transaction: e.Transaction, Export: e.Export}
}

type EventFilter struct {
	Transaction string
	Export      string
	Kind        string
}

func (f *EventFilter) Match(e *Event) bool {
	if f == nil {
		return true
	}
	if f.Transaction != "" && f.Transaction != e.Transaction {
		return false
	}
	if f.Export != "" && f.Export != e.Export {
		return false
	}
	if f.Kind != "" && f.Kind != e.Kind {
		return false
	}
	return true
}
