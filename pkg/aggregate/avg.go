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
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

type avgState[T any] struct {
	sum   T
	count uint64
}

type avgFunction[T any] struct {
	FunctionHelper[avgState[T]]
	_ops     valueOps[T]
	_decimal bool
}

func newAvg(name string, args []common.LType) (Function, error) {
	if len(args) != 1 {
		return nil, UnsupportedArguments(name, "takes one argument, got %d", len(args))
	}
	switch args[0].Id {
	case common.LTID_INTEGER, common.LTID_BIGINT:
		return newAvgOf[common.Hugeint](name, hugeintOps{}, false), nil
	case common.LTID_DOUBLE:
		return newAvgOf[float64](name, doubleOps{}, false), nil
	case common.LTID_DECIMAL:
		return newAvgOf[common.Decimal](name, decimalOps{}, true), nil
	default:
		return nil, UnsupportedArguments(name, "%s", args[0])
	}
}

func newAvgOf[T any](name string, ops valueOps[T], dec bool) *avgFunction[T] {
	f := &avgFunction[T]{
		_ops:     ops,
		_decimal: dec,
	}
	f.InitHelper(name)
	return f
}

func (f *avgFunction[T]) SetArguments(typs []common.LType) error {
	if len(typs) != 1 {
		return UnsupportedArguments(f.Name(), "takes one argument, got %d", len(typs))
	}
	arg := typs[0]
	switch arg.Id {
	case common.LTID_DECIMAL:
		if !f._decimal {
			return UnsupportedArguments(f.Name(), "%s", arg)
		}
		return f.BindArguments(typs, common.DecimalType(common.DecimalMaxWidth, arg.Scale))
	case common.LTID_INTEGER, common.LTID_BIGINT, common.LTID_DOUBLE:
		if f._decimal {
			return UnsupportedArguments(f.Name(), "%s", arg)
		}
		return f.BindArguments(typs, common.DoubleType())
	default:
		return UnsupportedArguments(f.Name(), "%s", arg)
	}
}

func (f *avgFunction[T]) Add(place AggregateDataPtr, columns []*chunk.Vector, row int) {
	st := f.Mutable(place)
	col := columns[0]
	if !col.RowIsValid(row) {
		return
	}
	st.sum = f._ops.add(st.sum, f._ops.load(col, row))
	st.count++
}

func (f *avgFunction[T]) Merge(place, rhs AggregateDataPtr) {
	dst := f.Mutable(place)
	src := f.Const(rhs)
	dst.sum = f._ops.add(dst.sum, src.sum)
	dst.count += src.count
}

func (f *avgFunction[T]) Serialize(place AggregateDataPtr, serial util.Serialize) error {
	err := f.CheckSerialize(place)
	if err != nil {
		return err
	}
	st := f.Const(place)
	err = f._ops.write(st.sum, serial)
	if err != nil {
		return err
	}
	return util.Write[uint64](st.count, serial)
}

func (f *avgFunction[T]) DeserializeMerge(place AggregateDataPtr, deserial util.Deserialize) error {
	err := f.CheckRead(place, "DeserializeMerge")
	if err != nil {
		return err
	}
	sum, err := f._ops.read(deserial)
	if err != nil {
		return err
	}
	var cnt uint64
	err = util.Read[uint64](&cnt, deserial)
	if err != nil {
		return err
	}
	st := f.Mutable(place)
	st.sum = f._ops.add(st.sum, sum)
	st.count += cnt
	return nil
}

// SerializeText writes "sum,count".
func (f *avgFunction[T]) SerializeText(place AggregateDataPtr, w io.Writer) error {
	err := f.CheckSerialize(place)
	if err != nil {
		return err
	}
	st := f.Const(place)
	_, err = fmt.Fprintf(w, "%s,%d", f._ops.format(st.sum), st.count)
	return err
}

func (f *avgFunction[T]) DeserializeMergeText(place AggregateDataPtr, r io.Reader) error {
	err := f.CheckRead(place, "DeserializeMergeText")
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(string(data))
	pos := strings.LastIndexByte(text, ',')
	if pos < 0 {
		return errors.Newf("%s: invalid text state %q", f.Name(), text)
	}
	sum, err := f._ops.parse(text[:pos])
	if err != nil {
		return err
	}
	cnt, err := strconv.ParseUint(text[pos+1:], 10, 64)
	if err != nil {
		return err
	}
	st := f.Mutable(place)
	st.sum = f._ops.add(st.sum, sum)
	st.count += cnt
	return nil
}

func (f *avgFunction[T]) InsertResultInto(place AggregateDataPtr, to *chunk.Vector) error {
	err := f.CheckRead(place, "InsertResultInto")
	if err != nil {
		return err
	}
	st := f.Const(place)
	retTyp := f.ReturnType()
	if st.count == 0 {
		to.Append(chunk.NullValue(retTyp))
		return nil
	}
	if f._decimal {
		sum := any(st.sum).(common.Decimal)
		avg, err := sum.Quo(st.count)
		if err != nil {
			return err
		}
		to.Append(chunk.NewDecimalValue(retTyp, avg))
		return nil
	}
	to.Append(chunk.NewDoubleValue(f._ops.toFloat(st.sum) / float64(st.count)))
	return nil
}
