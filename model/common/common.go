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
package common

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("record duplicate key")
)

// Entity is the envelope every persisted record embeds inline
type Entity struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Stamp fills the envelope for a record about to be inserted
func (e *Entity) Stamp(now time.Time) {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectIDFromTimestamp(now)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
}

type ctxTxnKeyStruct struct{}

var ctxTxnKey = ctxTxnKeyStruct{}

// CtxWithTransaction marks ctx as running inside a store transaction
func CtxWithTransaction(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxTxnKey, true)
}

// InTransaction reports whether ctx was handed out by a store transaction
func InTransaction(ctx context.Context) bool {
	v, ok := ctx.Value(ctxTxnKey).(bool)
	return ok && v
}

// Page converts a 1-based page into skip/limit, pageSize <= 0 means unbounded
func Page(page, pageSize int) (skip, limit int64) {
	if pageSize <= 0 {
		return 0, 0
	}
	if page < 1 {
		page = 1
	}
	return int64((page - 1) * pageSize), int64(pageSize)
}
