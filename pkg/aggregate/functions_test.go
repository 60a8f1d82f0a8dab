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
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

func decimals(t *testing.T, typ common.LType, vals ...string) *chunk.Vector {
	values := make([]*chunk.Value, len(vals))
	for i, s := range vals {
		v, err := chunk.ParseValue(typ, s)
		require.NoError(t, err)
		values[i] = v
	}
	return chunk.NewFlatVectorFromValues(typ, values)
}

func bigintsWithNull(vals ...int64) *chunk.Vector {
	vec := chunk.NewEmptyVector(common.BigintType())
	for _, v := range vals {
		if v < 0 {
			vec.Append(chunk.NullValue(common.BigintType()))
		} else {
			vec.Append(chunk.NewBigintValue(v))
		}
	}
	return vec
}

func sequence(n int, off int64) *chunk.Vector {
	vals := make([]int64, n)
	for i := range vals {
		vals[i] = int64(i) + off
	}
	return bigints(vals...)
}

func Test_countDistributed(t *testing.T) {
	fn := mustGet(t, "count", nil)
	var partials [][]byte
	for _, n := range []int{100, 50, 25} {
		place := newPlace(t, fn)
		for row := 0; row < n; row++ {
			fn.Add(place, nil, row)
		}
		partials = append(partials, serializeState(t, fn, place))
	}
	final := newPlace(t, fn)
	for _, data := range partials {
		mergeState(t, fn, final, data)
	}
	assert.Equal(t, uint64(175), result(t, fn, final).U64)
}

func Test_countNulls(t *testing.T) {
	fn := mustGet(t, "count", []common.LType{common.BigintType()})
	place := newPlace(t, fn)
	addRows(fn, place, bigintsWithNull(1, -1, 3, -1))
	assert.Equal(t, uint64(2), result(t, fn, place).U64)

	star := mustGet(t, "count", nil)
	p2 := newPlace(t, star)
	assert.Equal(t, uint64(0), result(t, star, p2).U64)
}

func Test_sum(t *testing.T) {
	fn := mustGet(t, "sum", []common.LType{common.BigintType()})
	assert.True(t, fn.ReturnType().Equal(common.HugeintType()))
	place := newPlace(t, fn)
	assert.True(t, result(t, fn, place).IsNull)

	addRows(fn, place, bigintsWithNull(1, -1, 2, 3))
	assert.Equal(t, "6", result(t, fn, place).String())

	dfn := mustGet(t, "sum", []common.LType{common.DecimalType(10, 2)})
	assert.True(t, dfn.ReturnType().Equal(common.DecimalType(common.DecimalMaxWidth, 2)))
	dp := newPlace(t, dfn)
	addRows(dfn, dp, decimals(t, common.DecimalType(10, 2), "1.25", "2.50", "0.25"))
	assert.Equal(t, "4.00", result(t, dfn, dp).String())

	ffn := mustGet(t, "sum", []common.LType{common.DoubleType()})
	fp := newPlace(t, ffn)
	addRows(ffn, fp, chunk.NewDoubleFlatVector([]float64{0.5, 1.5}))
	assert.Equal(t, 2.0, result(t, ffn, fp).F64)
}

func Test_minMaxAny(t *testing.T) {
	col := bigintsWithNull(5, -1, 3, 9, 4)
	expect := map[string]int64{"min": 3, "max": 9, "any": 5}
	for name, want := range expect {
		fn := mustGet(t, name, []common.LType{common.BigintType()})
		assert.True(t, fn.ReturnType().Equal(common.BigintType()))
		place := newPlace(t, fn)
		addRows(fn, place, col)
		assert.Equal(t, want, result(t, fn, place).I64, name)
	}

	fn := mustGet(t, "max", []common.LType{common.DecimalType(10, 2)})
	place := newPlace(t, fn)
	addRows(fn, place, decimals(t, common.DecimalType(10, 2), "1.25", "12.50", "-3.00"))
	assert.Equal(t, "12.50", result(t, fn, place).String())
}

func Test_avg(t *testing.T) {
	fn := mustGet(t, "avg", []common.LType{common.BigintType()})
	assert.True(t, fn.ReturnType().Equal(common.DoubleType()))
	place := newPlace(t, fn)
	assert.True(t, result(t, fn, place).IsNull)
	addRows(fn, place, bigintsWithNull(1, 2, -1, 6))
	assert.Equal(t, 3.0, result(t, fn, place).F64)

	dtyp := common.DecimalType(10, 2)
	dfn := mustGet(t, "avg", []common.LType{dtyp})
	dp := newPlace(t, dfn)
	addRows(dfn, dp, decimals(t, dtyp, "1.00", "2.00", "2.00"))
	assert.Equal(t, "1.67", result(t, dfn, dp).String())
}

func Test_uniq(t *testing.T) {
	fn := mustGet(t, "uniq", []common.LType{common.BigintType()})
	place := newPlace(t, fn)
	assert.Equal(t, uint64(0), result(t, fn, place).U64)
	addRows(fn, place, sequence(1000, 0))
	addRows(fn, place, sequence(1000, 0))
	assert.InEpsilon(t, 1000, float64(result(t, fn, place).U64), 0.03)

	strs := mustGet(t, "uniq", []common.LType{common.VarcharType(), common.BigintType()}, chunk.NewIntegerValue(16))
	sp := newPlace(t, strs)
	addRows(strs, sp,
		chunk.NewVarcharFlatVector([]string{"a", "b", "a", "c"}),
		bigints(1, 1, 1, 1))
	assert.Equal(t, uint64(3), result(t, strs, sp).U64)
}

func Test_uniqExact(t *testing.T) {
	fn := mustGet(t, "uniqExact", []common.LType{common.BigintType()})
	place := newPlace(t, fn)
	addRows(fn, place, bigintsWithNull(1, 2, 2, -1, 3, 1))
	assert.Equal(t, uint64(3), result(t, fn, place).U64)

	dtyp := common.DecimalType(10, 2)
	dfn := mustGet(t, "uniqExact", []common.LType{dtyp})
	dp := newPlace(t, dfn)
	addRows(dfn, dp, decimals(t, dtyp, "1.50", "1.5", "2"))
	assert.Equal(t, uint64(2), result(t, dfn, dp).U64)
}

func Test_groupBitmap(t *testing.T) {
	fn := mustGet(t, "groupBitmap", []common.LType{common.UbigintType()})
	place := newPlace(t, fn)
	addRows(fn, place, chunk.NewUbigintFlatVector([]uint64{1, 5, 5, 1 << 20}))
	assert.Equal(t, uint64(3), result(t, fn, place).U64)

	_, err := Get("groupBitmap", []common.LType{common.DoubleType()}, nil)
	assert.True(t, errors.Is(err, ErrUnsupportedArguments))
}

func Test_quantileExact(t *testing.T) {
	fn := mustGet(t, "quantileExact", []common.LType{common.BigintType()})
	place := newPlace(t, fn)
	assert.True(t, result(t, fn, place).IsNull)
	addRows(fn, place, bigints(5, 1, 4, 2, 3))
	assert.Equal(t, 3.0, result(t, fn, place).F64)

	p90 := mustGet(t, "quantileExact", []common.LType{common.DoubleType()}, chunk.NewDoubleValue(1))
	pp := newPlace(t, p90)
	addRows(p90, pp, chunk.NewDoubleFlatVector([]float64{0.5, 9.5, 3}))
	assert.Equal(t, 9.5, result(t, p90, pp).F64)
}

func Test_groupArray(t *testing.T) {
	fn := mustGet(t, "groupArray", []common.LType{common.BigintType()})
	place := newPlace(t, fn)
	assert.Equal(t, "[]", result(t, fn, place).Str)
	addRows(fn, place, bigintsWithNull(3, -1, 1, 2))
	assert.Equal(t, "[3,1,2]", result(t, fn, place).Str)

	limited := mustGet(t, "groupArray", []common.LType{common.DoubleType()}, chunk.NewBigintValue(2))
	lp := newPlace(t, limited)
	addRows(limited, lp, chunk.NewDoubleFlatVector([]float64{0.5, 1, 2.25}))
	assert.Equal(t, "[0.5,1]", result(t, limited, lp).Str)

	other := newPlace(t, limited)
	addRows(limited, other, chunk.NewDoubleFlatVector([]float64{7}))
	limited.Merge(lp, other)
	assert.Equal(t, "[0.5,1]", result(t, limited, lp).Str)
}

func Test_parameterErrors(t *testing.T) {
	cases := []struct {
		name   string
		args   []common.LType
		params []*chunk.Value
		kind   error
	}{
		{"sum", []common.LType{common.BigintType()}, []*chunk.Value{chunk.NewBigintValue(1)}, ErrParametersNotAllowed},
		{"count", nil, []*chunk.Value{chunk.NewBigintValue(1)}, ErrParametersNotAllowed},
		{"uniq", []common.LType{common.BigintType()}, []*chunk.Value{chunk.NewBigintValue(12)}, ErrInvalidParameters},
		{"uniq", []common.LType{common.BigintType()}, []*chunk.Value{chunk.NewVarcharValue("14")}, ErrInvalidParameters},
		{"quantileExact", []common.LType{common.DoubleType()}, []*chunk.Value{chunk.NewDoubleValue(1.5)}, ErrInvalidParameters},
		{"quantileExact", []common.LType{common.DoubleType()},
			[]*chunk.Value{chunk.NewDoubleValue(0.1), chunk.NewDoubleValue(0.2)}, ErrInvalidParameters},
		{"groupArray", []common.LType{common.BigintType()}, []*chunk.Value{chunk.NewBigintValue(0)}, ErrInvalidParameters},
	}
	for _, c := range cases {
		_, err := Get(c.name, c.args, c.params)
		require.Error(t, err, c.name)
		assert.True(t, errors.Is(err, c.kind), "%s: %v", c.name, err)
		assert.True(t, strings.Contains(err.Error(), c.name), err.Error())
	}
}

func Test_unsupportedArguments(t *testing.T) {
	cases := []struct {
		name string
		args []common.LType
	}{
		{"sum", []common.LType{common.VarcharType()}},
		{"sum", nil},
		{"count", []common.LType{common.BigintType(), common.BigintType()}},
		{"avg", []common.LType{common.BooleanType()}},
		{"quantileExact", []common.LType{common.DecimalType(10, 2)}},
		{"uniq", nil},
	}
	for _, c := range cases {
		_, err := Get(c.name, c.args, nil)
		assert.True(t, errors.Is(err, ErrUnsupportedArguments), "%s: %v", c.name, err)
	}
}

// splitMerge folds col into one state directly and into two states that
// are exchanged through Serialize, and compares the results.
func splitMerge(t *testing.T, fn Function, col *chunk.Vector) {
	whole := newPlace(t, fn)
	addRows(fn, whole, col)

	left := newPlace(t, fn)
	right := newPlace(t, fn)
	for row := 0; row < col.Count(); row++ {
		if row%3 == 0 {
			fn.Add(left, []*chunk.Vector{col}, row)
		} else {
			fn.Add(right, []*chunk.Vector{col}, row)
		}
	}
	final := newPlace(t, fn)
	mergeState(t, fn, final, serializeState(t, fn, left))
	mergeState(t, fn, final, serializeState(t, fn, right))

	want := result(t, fn, whole)
	got := result(t, fn, final)
	assert.True(t, want.Equal(got), "%s: %s != %s", Signature(fn), want, got)
}

func Test_serializeMergeEquivalence(t *testing.T) {
	ints := bigintsWithNull(4, 8, -1, 15, 16, 23, 42, 8, 4, -1, 100)
	for _, name := range []string{"count", "sum", "avg", "min", "max", "uniq", "uniqExact", "groupBitmap", "quantileExact"} {
		fn := mustGet(t, name, []common.LType{common.BigintType()})
		splitMerge(t, fn, ints)
	}
	dtyp := common.DecimalType(12, 3)
	decs := decimals(t, dtyp, "1.001", "", "-2.5", "3.25", "7")
	for _, name := range []string{"sum", "avg", "min", "max", "uniqExact"} {
		fn := mustGet(t, name, []common.LType{dtyp})
		splitMerge(t, fn, decs)
	}
}

func Test_mergeAssociative(t *testing.T) {
	fn := mustGet(t, "sum", []common.LType{common.BigintType()})
	parts := []*chunk.Vector{sequence(10, 0), sequence(5, 100), sequence(7, -50)}
	places := make([]AggregateDataPtr, len(parts))
	for i, col := range parts {
		places[i] = newPlace(t, fn)
		addRows(fn, places[i], col)
	}
	//(a+b)+c
	ab := newPlace(t, fn)
	fn.Merge(ab, places[0])
	fn.Merge(ab, places[1])
	fn.Merge(ab, places[2])
	//a+(c+b)
	cb := newPlace(t, fn)
	fn.Merge(cb, places[2])
	fn.Merge(cb, places[1])
	a := newPlace(t, fn)
	fn.Merge(a, places[0])
	fn.Merge(a, cb)
	assert.True(t, result(t, fn, ab).Equal(result(t, fn, a)))
	assert.Equal(t, "226", result(t, fn, ab).String())
}

func Test_textRoundTrip(t *testing.T) {
	ints := bigints(3, 1, 2)
	for _, name := range []string{"count", "sum", "avg", "min", "max", "groupBitmap"} {
		fn := mustGet(t, name, []common.LType{common.BigintType()})
		src := newPlace(t, fn)
		addRows(fn, src, ints)
		var buf bytes.Buffer
		require.NoError(t, fn.SerializeText(src, &buf), name)
		dst := newPlace(t, fn)
		require.NoError(t, fn.DeserializeMergeText(dst, &buf), name)
		assert.True(t, result(t, fn, src).Equal(result(t, fn, dst)), name)
	}

	fn := mustGet(t, "sum", []common.LType{common.BigintType()})
	empty := newPlace(t, fn)
	fn.Merge(empty, empty)
	var buf bytes.Buffer
	require.NoError(t, fn.SerializeText(empty, &buf))
	assert.Equal(t, textNull, buf.String())

	for _, name := range []string{"any", "uniqExact", "quantileExact"} {
		fn := mustGet(t, name, []common.LType{common.BigintType()})
		place := newPlace(t, fn)
		addRows(fn, place, ints)
		err := fn.SerializeText(place, &bytes.Buffer{})
		assert.True(t, errors.Is(err, ErrNotImplemented), name)
		err = fn.DeserializeMergeText(place, strings.NewReader("1"))
		assert.True(t, errors.Is(err, ErrNotImplemented), name)
	}
}

func Test_deserializeTruncated(t *testing.T) {
	fn := mustGet(t, "avg", []common.LType{common.BigintType()})
	src := newPlace(t, fn)
	addRows(fn, src, bigints(1, 2))
	data := serializeState(t, fn, src)
	dst := newPlace(t, fn)
	err := fn.DeserializeMerge(dst, util.NewBufferDeserialize(data[:len(data)-1]))
	assert.Error(t, err)
}

func Test_deserializeHugeLength(t *testing.T) {
	bigint := []common.LType{common.BigintType()}
	double := []common.LType{common.DoubleType()}
	cases := []struct {
		name string
		args []common.LType
	}{
		{"quantileExact", double},
		{"groupArray", bigint},
		{"uniq", bigint},
		{"groupBitmap", []common.LType{common.UbigintType()}},
	}
	data := []byte{0xff, 0xff, 0xff, 0xff, 1, 2, 3, 4}
	for _, c := range cases {
		fn := mustGet(t, c.name, c.args)
		place := newPlace(t, fn)
		err := fn.DeserializeMerge(place, util.NewBufferDeserialize(data))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF, c.name)
		//the length can not be checked up front
		err = fn.DeserializeMerge(place, util.NewReaderDeserialize(bytes.NewReader(data)))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF, c.name)
	}
}
