// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aggregate

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error kinds. Errors returned by this package are marked with one of
// them, test with errors.Is.
var (
	ErrUnsupportedArguments  = errors.New("unsupported arguments")
	ErrParametersNotAllowed  = errors.New("function does not allow parameters")
	ErrInvalidParameters     = errors.New("invalid parameters")
	ErrNotImplemented        = errors.New("not implemented")
	ErrPreconditionViolation = errors.New("precondition violation")
	ErrUnknownFunction       = errors.New("unknown aggregate function")
	ErrSignatureMismatch     = errors.New("signature mismatch")
)

func UnsupportedArguments(name string, format string, args ...interface{}) error {
	return errors.Mark(
		errors.Newf("%s: unsupported arguments: %s", name, fmt.Sprintf(format, args...)),
		ErrUnsupportedArguments)
}

func ParametersNotAllowed(name string) error {
	return errors.Mark(
		errors.Newf("%s: function does not allow parameters", name),
		ErrParametersNotAllowed)
}

func InvalidParameters(name string, format string, args ...interface{}) error {
	return errors.Mark(
		errors.Newf("%s: invalid parameters: %s", name, fmt.Sprintf(format, args...)),
		ErrInvalidParameters)
}

func NotImplemented(name string, op string) error {
	return errors.Mark(
		errors.Newf("%s: %s is not implemented", name, op),
		ErrNotImplemented)
}

func PreconditionViolation(name string, format string, args ...interface{}) error {
	return errors.Mark(
		errors.Newf("%s: precondition violation: %s", name, fmt.Sprintf(format, args...)),
		ErrPreconditionViolation)
}

func UnknownFunction(name string) error {
	return errors.Mark(
		errors.Newf("unknown aggregate function %s", name),
		ErrUnknownFunction)
}

// SignatureMismatch reports states written by a function with another
// signature.
func SignatureMismatch(want, got string) error {
	return errors.Mark(
		errors.Newf("signature mismatch: expected %s, got %s", want, got),
		ErrSignatureMismatch)
}

// assertPrecondition panics when a state operation without an error
// path is called out of order. The panic value is an assertion error
// marked as a precondition violation.
func assertPrecondition(name string, format string, args ...interface{}) {
	err := errors.AssertionFailedf("%s: precondition violation: %s",
		name, fmt.Sprintf(format, args...))
	panic(errors.Mark(err, ErrPreconditionViolation))
}
