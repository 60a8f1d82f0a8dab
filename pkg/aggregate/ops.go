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

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

// valueOps is the arithmetic over the value type T of a state.
type valueOps[T any] interface {
	load(vec *chunk.Vector, row int) T
	add(a, b T) T
	less(a, b T) bool
	write(v T, serial util.Serialize) error
	read(deserial util.Deserialize) (T, error)
	toValue(v T, typ common.LType) *chunk.Value
	toFloat(v T) float64
	format(v T) string
	parse(s string) (T, error)
}

func rowOf(vec *chunk.Vector, row int) int {
	if vec.PhyFormat().IsConst() {
		return 0
	}
	return row
}

func loadInt64(vec *chunk.Vector, row int) int64 {
	idx := rowOf(vec, row)
	switch vec.Typ().GetInternalType() {
	case common.INT32:
		return int64(chunk.GetSliceInPhyFormatFlat[int32](vec)[idx])
	case common.INT64:
		return chunk.GetSliceInPhyFormatFlat[int64](vec)[idx]
	case common.UINT64:
		return int64(chunk.GetSliceInPhyFormatFlat[uint64](vec)[idx])
	default:
		panic("usp")
	}
}

func loadFloat64(vec *chunk.Vector, row int) float64 {
	idx := rowOf(vec, row)
	switch vec.Typ().GetInternalType() {
	case common.DOUBLE:
		return chunk.GetSliceInPhyFormatFlat[float64](vec)[idx]
	case common.INT32, common.INT64:
		return float64(loadInt64(vec, row))
	case common.UINT64:
		return float64(chunk.GetSliceInPhyFormatFlat[uint64](vec)[idx])
	case common.INT128:
		return chunk.GetSliceInPhyFormatFlat[common.Hugeint](vec)[idx].Float64()
	case common.DECIMAL:
		return decimalFloat(chunk.GetSliceInPhyFormatFlat[common.Decimal](vec)[idx])
	default:
		panic("usp")
	}
}

func loadHugeint(vec *chunk.Vector, row int) common.Hugeint {
	switch vec.Typ().GetInternalType() {
	case common.INT128:
		return chunk.GetSliceInPhyFormatFlat[common.Hugeint](vec)[rowOf(vec, row)]
	default:
		return common.HugeintFromInt64(loadInt64(vec, row))
	}
}

func loadDecimal(vec *chunk.Vector, row int) common.Decimal {
	util.AssertFunc(vec.Typ().GetInternalType() == common.DECIMAL)
	return chunk.GetSliceInPhyFormatFlat[common.Decimal](vec)[rowOf(vec, row)]
}

func decimalFloat(d common.Decimal) float64 {
	f, ok := d.Decimal.Float64()
	util.AssertFunc(ok)
	return f
}

type int64Ops struct{}

func (int64Ops) load(vec *chunk.Vector, row int) int64 {
	return loadInt64(vec, row)
}

func (int64Ops) add(a, b int64) int64 {
	return a + b
}

func (int64Ops) less(a, b int64) bool {
	return a < b
}

func (int64Ops) write(v int64, serial util.Serialize) error {
	return util.Write[int64](v, serial)
}

func (int64Ops) read(deserial util.Deserialize) (int64, error) {
	var v int64
	err := util.Read[int64](&v, deserial)
	return v, err
}

func (int64Ops) toValue(v int64, typ common.LType) *chunk.Value {
	return &chunk.Value{Typ: typ, I64: v}
}

func (int64Ops) toFloat(v int64) float64 {
	return float64(v)
}

func (int64Ops) format(v int64) string {
	return strconv.FormatInt(v, 10)
}

func (int64Ops) parse(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

type hugeintOps struct{}

func (hugeintOps) load(vec *chunk.Vector, row int) common.Hugeint {
	return loadHugeint(vec, row)
}

func (hugeintOps) add(a, b common.Hugeint) common.Hugeint {
	a.Add(&a, &b)
	return a
}

func (hugeintOps) less(a, b common.Hugeint) bool {
	return a.Less(&b)
}

func (hugeintOps) write(v common.Hugeint, serial util.Serialize) error {
	err := util.Write[int64](v.Upper, serial)
	if err != nil {
		return err
	}
	return util.Write[uint64](v.Lower, serial)
}

func (hugeintOps) read(deserial util.Deserialize) (common.Hugeint, error) {
	var v common.Hugeint
	err := util.Read[int64](&v.Upper, deserial)
	if err != nil {
		return v, err
	}
	err = util.Read[uint64](&v.Lower, deserial)
	return v, err
}

func (hugeintOps) toValue(v common.Hugeint, typ common.LType) *chunk.Value {
	return chunk.NewHugeintValue(v)
}

func (hugeintOps) toFloat(v common.Hugeint) float64 {
	return v.Float64()
}

func (hugeintOps) format(v common.Hugeint) string {
	return v.String()
}

func (hugeintOps) parse(s string) (common.Hugeint, error) {
	return common.ParseHugeint(s)
}

type doubleOps struct{}

func (doubleOps) load(vec *chunk.Vector, row int) float64 {
	return loadFloat64(vec, row)
}

func (doubleOps) add(a, b float64) float64 {
	return a + b
}

func (doubleOps) less(a, b float64) bool {
	return a < b
}

func (doubleOps) write(v float64, serial util.Serialize) error {
	return util.Write[float64](v, serial)
}

func (doubleOps) read(deserial util.Deserialize) (float64, error) {
	var v float64
	err := util.Read[float64](&v, deserial)
	return v, err
}

func (doubleOps) toValue(v float64, typ common.LType) *chunk.Value {
	return chunk.NewDoubleValue(v)
}

func (doubleOps) toFloat(v float64) float64 {
	return v
}

func (doubleOps) format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (doubleOps) parse(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

type decimalOps struct{}

func (decimalOps) load(vec *chunk.Vector, row int) common.Decimal {
	return loadDecimal(vec, row)
}

func (decimalOps) add(a, b common.Decimal) common.Decimal {
	a.Add(&a, &b)
	return a
}

func (decimalOps) less(a, b common.Decimal) bool {
	return a.Less(&a, &b)
}

// decimals travel as their canonical text
func (decimalOps) write(v common.Decimal, serial util.Serialize) error {
	return util.WriteString(v.String(), serial)
}

func (decimalOps) read(deserial util.Deserialize) (common.Decimal, error) {
	s, err := util.ReadString(deserial)
	if err != nil {
		return common.Decimal{}, err
	}
	return common.ParseDecimal(s)
}

func (decimalOps) toValue(v common.Decimal, typ common.LType) *chunk.Value {
	return chunk.NewDecimalValue(typ, v)
}

func (decimalOps) toFloat(v common.Decimal) float64 {
	return decimalFloat(v)
}

func (decimalOps) format(v common.Decimal) string {
	return v.String()
}

func (decimalOps) parse(s string) (common.Decimal, error) {
	return common.ParseDecimal(s)
}
