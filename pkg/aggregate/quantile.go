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
	"sort"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

const defaultQuantileLevel = 0.5

// quantileFunction keeps every value and returns the one at the level
// of the sorted sequence.
type quantileFunction struct {
	FunctionHelper[floatBuffer]
	_level float64
}

func newQuantile(name string, args []common.LType) (Function, error) {
	f := &quantileFunction{_level: defaultQuantileLevel}
	f.InitHelper(name)
	return f, nil
}

func (f *quantileFunction) SetArguments(typs []common.LType) error {
	if len(typs) != 1 {
		return UnsupportedArguments(f.Name(), "takes one argument, got %d", len(typs))
	}
	switch typs[0].Id {
	case common.LTID_INTEGER, common.LTID_BIGINT, common.LTID_DOUBLE:
	default:
		return UnsupportedArguments(f.Name(), "%s", typs[0])
	}
	return f.BindArguments(typs, common.DoubleType())
}

// SetParameters takes the level in [0,1].
func (f *quantileFunction) SetParameters(params []*chunk.Value) error {
	err := f.checkParams()
	if err != nil {
		return err
	}
	if len(params) != 1 {
		return InvalidParameters(f.Name(), "takes one parameter, got %d", len(params))
	}
	level, err := floatParam(f.Name(), params[0])
	if err != nil {
		return err
	}
	if level < 0 || level > 1 {
		return InvalidParameters(f.Name(), "level must be in [0,1], got %v", level)
	}
	err = f.BindParameters(params)
	if err != nil {
		return err
	}
	f._level = level
	return nil
}

func (f *quantileFunction) Add(place AggregateDataPtr, columns []*chunk.Vector, row int) {
	st := f.Mutable(place)
	if !columns[0].RowIsValid(row) {
		return
	}
	st.push(loadFloat64(columns[0], row))
}

func (f *quantileFunction) Merge(place, rhs AggregateDataPtr) {
	dst := f.Mutable(place)
	dst.append(f.Const(rhs).values())
}

func (f *quantileFunction) Serialize(place AggregateDataPtr, serial util.Serialize) error {
	err := f.CheckSerialize(place)
	if err != nil {
		return err
	}
	return f.Const(place).write(serial)
}

func (f *quantileFunction) DeserializeMerge(place AggregateDataPtr, deserial util.Deserialize) error {
	err := f.CheckRead(place, "DeserializeMerge")
	if err != nil {
		return err
	}
	vals, err := readFloats(deserial)
	if err != nil {
		return err
	}
	f.Mutable(place).append(vals)
	return nil
}

func (f *quantileFunction) InsertResultInto(place AggregateDataPtr, to *chunk.Vector) error {
	err := f.CheckRead(place, "InsertResultInto")
	if err != nil {
		return err
	}
	vals := f.Const(place).values()
	if len(vals) == 0 {
		to.Append(chunk.NullValue(common.DoubleType()))
		return nil
	}
	sorted := util.CopyTo(vals)
	sort.Float64s(sorted)
	idx := int(f._level * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	to.Append(chunk.NewDoubleValue(sorted[idx]))
	return nil
}
