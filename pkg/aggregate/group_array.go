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
	"strconv"
	"strings"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

// groupArrayFunction collects values in arrival order, at most _limit
// of them when the limit is set. The result is rendered as "[v1,v2]".
type groupArrayFunction struct {
	FunctionHelper[floatBuffer]
	_limit    uint32
	_integral bool
}

func newGroupArray(name string, args []common.LType) (Function, error) {
	f := &groupArrayFunction{}
	f.InitHelper(name)
	return f, nil
}

func (f *groupArrayFunction) SetArguments(typs []common.LType) error {
	if len(typs) != 1 {
		return UnsupportedArguments(f.Name(), "takes one argument, got %d", len(typs))
	}
	switch typs[0].Id {
	case common.LTID_INTEGER, common.LTID_BIGINT:
		f._integral = true
	case common.LTID_DOUBLE:
	default:
		return UnsupportedArguments(f.Name(), "%s", typs[0])
	}
	return f.BindArguments(typs, common.VarcharType())
}

// SetParameters takes the maximum number of values kept.
func (f *groupArrayFunction) SetParameters(params []*chunk.Value) error {
	err := f.checkParams()
	if err != nil {
		return err
	}
	if len(params) != 1 {
		return InvalidParameters(f.Name(), "takes one parameter, got %d", len(params))
	}
	limit, err := intParam(f.Name(), params[0])
	if err != nil {
		return err
	}
	if limit <= 0 || limit > int64(^uint32(0)) {
		return InvalidParameters(f.Name(), "size must be positive, got %d", limit)
	}
	err = f.BindParameters(params)
	if err != nil {
		return err
	}
	f._limit = uint32(limit)
	return nil
}

func (f *groupArrayFunction) room(st *floatBuffer, n int) int {
	if f._limit == 0 {
		return n
	}
	if st.len >= f._limit {
		return 0
	}
	return min(n, int(f._limit-st.len))
}

func (f *groupArrayFunction) Add(place AggregateDataPtr, columns []*chunk.Vector, row int) {
	st := f.Mutable(place)
	if !columns[0].RowIsValid(row) || f.room(st, 1) == 0 {
		return
	}
	st.push(loadFloat64(columns[0], row))
}

func (f *groupArrayFunction) Merge(place, rhs AggregateDataPtr) {
	dst := f.Mutable(place)
	vals := f.Const(rhs).values()
	dst.append(vals[:f.room(dst, len(vals))])
}

func (f *groupArrayFunction) Serialize(place AggregateDataPtr, serial util.Serialize) error {
	err := f.CheckSerialize(place)
	if err != nil {
		return err
	}
	return f.Const(place).write(serial)
}

func (f *groupArrayFunction) DeserializeMerge(place AggregateDataPtr, deserial util.Deserialize) error {
	err := f.CheckRead(place, "DeserializeMerge")
	if err != nil {
		return err
	}
	vals, err := readFloats(deserial)
	if err != nil {
		return err
	}
	st := f.Mutable(place)
	st.append(vals[:f.room(st, len(vals))])
	return nil
}

func (f *groupArrayFunction) format(v float64) string {
	if f._integral {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (f *groupArrayFunction) InsertResultInto(place AggregateDataPtr, to *chunk.Vector) error {
	err := f.CheckRead(place, "InsertResultInto")
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range f.Const(place).values() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.format(v))
	}
	sb.WriteByte(']')
	to.Append(chunk.NewVarcharValue(sb.String()))
	return nil
}
