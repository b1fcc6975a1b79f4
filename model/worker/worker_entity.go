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

import (
	"strings"
	"time"

	"github.com/wentaojin/docwh/model/common"
)

// Worker is the heartbeat record of a worker process
type Worker struct {
	common.Entity `bson:",inline"`
	Name          string    `bson:"name" json:"name"`
	Addr          string    `bson:"addr" json:"addr"`
	Capacity      int       `bson:"capacity" json:"capacity"`
	LastSeen      time.Time `bson:"lastSeen" json:"lastSeen"`
}

// Alive reports whether the worker heartbeated within ttl of now
func (w *Worker) Alive(now time.Time, ttl time.Duration) bool {
	return now.Sub(w.LastSeen) <= ttl
}

type Filter struct {
	NamePrefix string
	// SeenAfter keeps workers whose last heartbeat is not older than it
	SeenAfter *time.Time
}

func (f *Filter) Match(w *Worker) bool {
	if f == nil {
		return true
	}
	if f.NamePrefix != "" && !strings.HasPrefix(w.Name, f.NamePrefix) {
		return false
	}
	if f.SeenAfter != nil && w.LastSeen.Before(*f.SeenAfter) {
		return false
	}
	return true
}
