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

import (
	"fmt"
	"time"

	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/utils/stringutil"
)

// Task is the unit of work, one collection of one export
type Task struct {
	common.Entity `bson:",inline"`
	Transaction   string     `bson:"transaction" json:"transaction"`
	Export        string     `bson:"_export" json:"export"`
	Collection    string     `bson:"_collection" json:"collection"`
	Worker        string     `bson:"worker" json:"worker"`
	Status        string     `bson:"status" json:"status"`
	Error         string     `bson:"error" json:"error"`
	Epoch         int64      `bson:"epoch" json:"epoch"`
	StartTime     *time.Time `bson:"startTime,omitempty" json:"startTime,omitempty"`
	EndTime       *time.Time `bson:"endTime,omitempty" json:"endTime,omitempty"`
}

func (t *Task) Key() Key {
	return Key{Transaction: t.Transaction, Export: t.Export, Collection: t.Collection}
}

// Key identifies a task, unique in the store
type Key struct {
	Transaction string `json:"transaction" validate:"required"`
	Export      string `json:"export" validate:"required"`
	Collection  string `json:"collection" validate:"required"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Transaction, k.Export, k.Collection)
}

// Filter selects tasks, zero fields do not constrain
type Filter struct {
	Transaction string
	Export      string
	Collection  string
	Worker      string
	// Unbound matches only tasks no worker holds, Worker is ignored then
	Unbound bool
	// Epoch pins the assignment, 0 matches any
	Epoch    int64
	Statuses []string
}

func (f *Filter) Match(t *Task) bool {
	if f == nil {
		return true
	}
	if f.Transaction != "" && f.Transaction != t.Transaction {
		return false
	}
	if f.Export != "" && f.Export != t.Export {
		return false
	}
	if f.Collection != "" && f.Collection != t.Collection {
		return false
	}
	if f.Unbound && t.Worker != "" {
		return false
	}
	if !f.Unbound && f.Worker != "" && f.Worker != t.Worker {
		return false
	}
	if f.Epoch != 0 && f.Epoch != t.Epoch {
		return false
	}
	if len(f.Statuses) > 0 && !stringutil.IsContainedString(f.Statuses, t.Status) {
		return false
	}
	return true
}

// Update is a partial task mutation, nil fields are left untouched
type Update struct {
	Status    string
	Worker    *string
	Error     *string
	StartTime *time.Time
	EndTime   *time.Time
	IncEpoch  bool
}

func (u *Update) Apply(t *Task, now time.Time) {
	if u.Status != "" {
		t.Status = u.Status
	}
	if u.Worker != nil {
		t.Worker = *u.Worker
	}
	if u.Error != nil {
		t.Error = *u.Error
	}
	if u.StartTime != nil {
		st := *u.StartTime
		t.StartTime = &st
	}
	if u.EndTime != nil {
		et := *u.EndTime
		t.EndTime = &et
	}
	if u.IncEpoch {
		t.Epoch++
	}
	t.UpdatedAt = now
}
