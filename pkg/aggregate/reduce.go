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
	"strings"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

type reduceKind int

const (
	reduceSum reduceKind = iota
	reduceMin
	reduceMax
	reduceAny
)

const textNull = "NULL"

// valueState holds one value and whether a row has set it.
type valueState[T any] struct {
	isset bool
	value T
}

// reduceFunction folds non-NULL values of one argument into a single
// value: sum, min, max or any.
type reduceFunction[T any] struct {
	FunctionHelper[valueState[T]]
	_kind    reduceKind
	_ops     valueOps[T]
	_accepts []common.LTypeId
}

func newReduce[T any](name string, kind reduceKind, ops valueOps[T], accepts ...common.LTypeId) *reduceFunction[T] {
	f := &reduceFunction[T]{
		_kind:    kind,
		_ops:     ops,
		_accepts: accepts,
	}
	f.InitHelper(name)
	return f
}

func newSum(name string, args []common.LType) (Function, error) {
	if len(args) != 1 {
		return nil, UnsupportedArguments(name, "takes one argument, got %d", len(args))
	}
	switch args[0].Id {
	case common.LTID_INTEGER, common.LTID_BIGINT:
		return newReduce[common.Hugeint](name, reduceSum, hugeintOps{},
			common.LTID_INTEGER, common.LTID_BIGINT), nil
	case common.LTID_DOUBLE:
		return newReduce[float64](name, reduceSum, doubleOps{}, common.LTID_DOUBLE), nil
	case common.LTID_DECIMAL:
		return newReduce[common.Decimal](name, reduceSum, decimalOps{}, common.LTID_DECIMAL), nil
	default:
		return nil, UnsupportedArguments(name, "%s", args[0])
	}
}

func reduceCreator(kind reduceKind) Creator {
	return func(name string, args []common.LType) (Function, error) {
		if len(args) != 1 {
			return nil, UnsupportedArguments(name, "takes one argument, got %d", len(args))
		}
		switch args[0].Id {
		case common.LTID_INTEGER, common.LTID_BIGINT:
			return newReduce[int64](name, kind, int64Ops{},
				common.LTID_INTEGER, common.LTID_BIGINT), nil
		case common.LTID_DOUBLE:
			return newReduce[float64](name, kind, doubleOps{}, common.LTID_DOUBLE), nil
		case common.LTID_DECIMAL:
			return newReduce[common.Decimal](name, kind, decimalOps{}, common.LTID_DECIMAL), nil
		default:
			return nil, UnsupportedArguments(name, "%s", args[0])
		}
	}
}

func (f *reduceFunction[T]) SetArguments(typs []common.LType) error {
	if len(typs) != 1 {
		return UnsupportedArguments(f.Name(), "takes one argument, got %d", len(typs))
	}
	arg := typs[0]
	if util.FindIf(f._accepts, func(id common.LTypeId) bool { return id == arg.Id }) < 0 {
		return UnsupportedArguments(f.Name(), "%s", arg)
	}
	return f.BindArguments(typs, f.resultType(arg))
}

func (f *reduceFunction[T]) resultType(arg common.LType) common.LType {
	if f._kind != reduceSum {
		return arg
	}
	switch arg.Id {
	case common.LTID_INTEGER, common.LTID_BIGINT:
		return common.HugeintType()
	case common.LTID_DECIMAL:
		return common.DecimalType(common.DecimalMaxWidth, arg.Scale)
	default:
		return arg
	}
}

func (f *reduceFunction[T]) fold(st *valueState[T], v T) {
	if !st.isset {
		st.isset = true
		st.value = v
		return
	}
	switch f._kind {
	case reduceSum:
		st.value = f._ops.add(st.value, v)
	case reduceMin:
		if f._ops.less(v, st.value) {
			st.value = v
		}
	case reduceMax:
		if f._ops.less(st.value, v) {
			st.value = v
		}
	case reduceAny:
	}
}

func (f *reduceFunction[T]) Add(place AggregateDataPtr, columns []*chunk.Vector, row int) {
	st := f.Mutable(place)
	col := columns[0]
	if !col.RowIsValid(row) {
		return
	}
	f.fold(st, f._ops.load(col, row))
}

func (f *reduceFunction[T]) Merge(place, rhs AggregateDataPtr) {
	dst := f.Mutable(place)
	src := f.Const(rhs)
	if src.isset {
		f.fold(dst, src.value)
	}
}

func (f *reduceFunction[T]) Serialize(place AggregateDataPtr, serial util.Serialize) error {
	err := f.CheckSerialize(place)
	if err != nil {
		return err
	}
	st := f.Const(place)
	err = util.Write[bool](st.isset, serial)
	if err != nil {
		return err
	}
	return f._ops.write(st.value, serial)
}

func (f *reduceFunction[T]) DeserializeMerge(place AggregateDataPtr, deserial util.Deserialize) error {
	err := f.CheckRead(place, "DeserializeMerge")
	if err != nil {
		return err
	}
	isset := false
	err = util.Read[bool](&isset, deserial)
	if err != nil {
		return err
	}
	v, err := f._ops.read(deserial)
	if err != nil {
		return err
	}
	st := f.Mutable(place)
	if isset {
		f.fold(st, v)
	}
	return nil
}

func (f *reduceFunction[T]) SerializeText(place AggregateDataPtr, w io.Writer) error {
	if f._kind == reduceAny {
		return f.BaseFunction.SerializeText(place, w)
	}
	err := f.CheckSerialize(place)
	if err != nil {
		return err
	}
	st := f.Const(place)
	text := textNull
	if st.isset {
		text = f._ops.format(st.value)
	}
	_, err = io.WriteString(w, text)
	return err
}

func (f *reduceFunction[T]) DeserializeMergeText(place AggregateDataPtr, r io.Reader) error {
	if f._kind == reduceAny {
		return f.BaseFunction.DeserializeMergeText(place, r)
	}
	err := f.CheckRead(place, "DeserializeMergeText")
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(string(data))
	st := f.Mutable(place)
	if text == textNull {
		return nil
	}
	v, err := f._ops.parse(text)
	if err != nil {
		return err
	}
	f.fold(st, v)
	return nil
}

func (f *reduceFunction[T]) InsertResultInto(place AggregateDataPtr, to *chunk.Vector) error {
	err := f.CheckRead(place, "InsertResultInto")
	if err != nil {
		return err
	}
	st := f.Const(place)
	if !st.isset {
		to.Append(chunk.NullValue(f.ReturnType()))
		return nil
	}
	to.Append(f._ops.toValue(st.value, f.ReturnType()))
	return nil
}
