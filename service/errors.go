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
package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNoTaskAvailable is an idle worker tick, not a failure
	ErrNoTaskAvailable = errors.New("no task available")
	// ErrScaleInFlight is returned to a scale call overlapping a running pass
	ErrScaleInFlight = errors.New("scale pass already in flight")
)

// InvalidInputError is a request that fails schema validation
type InvalidInputError struct {
	Err error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %v", e.Err)
}

func (e *InvalidInputError) Unwrap() error {
	return e.Err
}

// InvalidStateChangeError is a transition whose precondition does not hold.
// Validation failures surface as this error too, wrapping an InvalidInputError.
type InvalidStateChangeError struct {
	Op  string
	Key string
	Err error
}

func (e *InvalidStateChangeError) Error() string {
	return fmt.Sprintf("invalid state change [%s] on [%s]: %v", e.Op, e.Key, e.Err)
}

func (e *InvalidStateChangeError) Unwrap() error {
	return e.Err
}

// IsInvalidInput reports whether err carries a validation failure
func IsInvalidInput(err error) bool {
	var e *InvalidInputError
	return errors.As(err, &e)
}

// IsInvalidStateChange reports whether err is a rejected transition that is
// not a validation failure
func IsInvalidStateChange(err error) bool {
	var e *InvalidStateChangeError
	return errors.As(err, &e) && !IsInvalidInput(err)
}

var validate = validator.New()

func validateInput(values ...interface{}) error {
	for _, v := range values {
		if err := validate.Struct(v); err != nil {
			return &InvalidInputError{Err: err}
		}
	}
	return nil
}
