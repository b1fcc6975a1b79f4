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
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

type MongoDB struct {
	MetaDB *mongo.Database
}

func WarpDB(db *mongo.Database) MongoDB {
	return MongoDB{MetaDB: db}
}

// C returns the named collection, the session bound to a transaction context
// travels with ctx so every read-writer call joins it transparently
func (m *MongoDB) C(name string) *mongo.Collection {
	return m.MetaDB.Collection(name)
}

// WrapMongoError keeps the store-agnostic sentinels visible through %w
func WrapMongoError(op, collection string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s collection [%s] record failed: %w", op, collection, ErrRecordNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s collection [%s] record failed: %w: %v", op, collection, ErrDuplicateKey, err)
	default:
		return fmt.Errorf("%s collection [%s] record failed: %w", op, collection, err)
	}
}
