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
	"io"
	"sync/atomic"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
)

// BaseFunction keeps the identity and binding state of a descriptor and
// supplies the default bodies of the optional operations.
type BaseFunction struct {
	_name        string
	_args        []common.LType
	_params      []*chunk.Value
	_retType     common.LType
	_argsBound   bool
	_paramsBound bool
	//set by the first state operation
	_sealed atomic.Bool
}

func (base *BaseFunction) InitBase(name string) {
	base._name = name
}

func (base *BaseFunction) Name() string {
	return base._name
}

func (base *BaseFunction) Arguments() []common.LType {
	return common.CopyLTypes(base._args...)
}

func (base *BaseFunction) Parameters() []*chunk.Value {
	return base._params
}

func (base *BaseFunction) ReturnType() common.LType {
	base.mustBound("ReturnType")
	return base._retType
}

func (base *BaseFunction) SetParameters(params []*chunk.Value) error {
	return ParametersNotAllowed(base._name)
}

func (base *BaseFunction) SerializeText(place AggregateDataPtr, w io.Writer) error {
	return NotImplemented(base._name, "SerializeText")
}

func (base *BaseFunction) DeserializeMergeText(place AggregateDataPtr, r io.Reader) error {
	return NotImplemented(base._name, "DeserializeMergeText")
}

func (base *BaseFunction) CanBeFinal() bool {
	return true
}

// BindArguments records the validated argument types and the result
// type. Concrete SetArguments call it after validation.
func (base *BaseFunction) BindArguments(typs []common.LType, retType common.LType) error {
	if base._argsBound {
		return PreconditionViolation(base._name, "arguments already set")
	}
	if base._sealed.Load() {
		return PreconditionViolation(base._name, "arguments set after a state operation")
	}
	base._args = common.CopyLTypes(typs...)
	base._retType = retType
	base._argsBound = true
	return nil
}

// BindParameters records the validated parameters.
func (base *BaseFunction) BindParameters(params []*chunk.Value) error {
	err := base.checkParams()
	if err != nil {
		return err
	}
	base._params = params
	base._paramsBound = true
	return nil
}

// checkParams fails when parameters can not be set now. Concrete
// SetParameters call it before validating the values.
func (base *BaseFunction) checkParams() error {
	if !base._argsBound {
		return PreconditionViolation(base._name, "parameters set before arguments")
	}
	if base._paramsBound {
		return PreconditionViolation(base._name, "parameters already set")
	}
	if base._sealed.Load() {
		return PreconditionViolation(base._name, "parameters set after a state operation")
	}
	return nil
}

func (base *BaseFunction) Bound() bool {
	return base._argsBound
}

func (base *BaseFunction) seal() {
	if !base._sealed.Load() {
		base._sealed.Store(true)
	}
}

// mustBound panics when a state operation precedes SetArguments.
func (base *BaseFunction) mustBound(op string) {
	if !base._argsBound {
		assertPrecondition(base._name, "%s before SetArguments", op)
	}
}

// checkBound is mustBound for operations with an error path.
func (base *BaseFunction) checkBound(op string) error {
	if !base._argsBound {
		return PreconditionViolation(base._name, "%s before SetArguments", op)
	}
	return nil
}
