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
package warehouse

import (
	"errors"

	"github.com/joomcode/errorx"
)

var (
	Errors = errorx.NewNamespace("warehouse")

	AlreadyExists = Errors.NewType("already_exists", errorx.Duplicate())
	NotFound      = Errors.NewType("not_found", errorx.NotFound())
	// Transient marks an unavailability the catalog loops retry
	Transient      = Errors.NewType("transient", errorx.Temporary())
	CatalogTimeout = Errors.NewType("catalog_timeout", errorx.Timeout())
)

func hasTrait(err error, trait errorx.Trait) bool {
	var e *errorx.Error
	return errors.As(err, &e) && e.HasTrait(trait)
}

func IsAlreadyExists(err error) bool {
	return hasTrait(err, errorx.Duplicate())
}

func IsNotFound(err error) bool {
	return hasTrait(err, errorx.NotFound())
}

func IsTransient(err error) bool {
	return hasTrait(err, errorx.Temporary())
}

func IsCatalogTimeout(err error) bool {
	return hasTrait(err, errorx.Timeout())
}
