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
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

func mustGet(t *testing.T, name string, args []common.LType, params ...*chunk.Value) Function {
	fn, err := Get(name, args, params)
	require.NoError(t, err)
	return fn
}

// newPlace creates a state of fn in an arena released with the test.
func newPlace(t *testing.T, fn Function) AggregateDataPtr {
	arena := util.NewArena(0, false)
	place := arena.AllocAligned(fn.SizeOfData(), fn.AlignOfData())
	fn.Create(place)
	t.Cleanup(func() {
		fn.Destroy(place)
		arena.Close()
	})
	return place
}

func addRows(fn Function, place AggregateDataPtr, columns ...*chunk.Vector) {
	cnt := 1
	for _, col := range columns {
		if !col.PhyFormat().IsConst() {
			cnt = col.Count()
		}
	}
	for row := 0; row < cnt; row++ {
		fn.Add(place, columns, row)
	}
}

func result(t *testing.T, fn Function, place AggregateDataPtr) *chunk.Value {
	vec := chunk.NewEmptyVector(fn.ReturnType())
	require.NoError(t, fn.InsertResultInto(place, vec))
	require.Equal(t, 1, vec.Count())
	return vec.GetValue(0)
}

func serializeState(t *testing.T, fn Function, place AggregateDataPtr) []byte {
	serial := util.NewBufferSerialize()
	require.NoError(t, fn.Serialize(place, serial))
	return serial.Bytes()
}

func mergeState(t *testing.T, fn Function, place AggregateDataPtr, data []byte) {
	deserial := util.NewBufferDeserialize(data)
	require.NoError(t, fn.DeserializeMerge(place, deserial))
	require.Equal(t, 0, deserial.Remaining())
}

func withDebugChecks(t *testing.T) {
	old := DebugChecks()
	SetDebugChecks(true)
	t.Cleanup(func() {
		SetDebugChecks(old)
	})
}

func recoverError(fun func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok {
				e = errors.Newf("%v", r)
			}
			err = e
		}
	}()
	fun()
	return nil
}

func bigints(vals ...int64) *chunk.Vector {
	return chunk.NewBigintFlatVector(vals)
}

type testLayout struct {
	a uint8
	b int64
}

type testOwner struct {
	h handleState
}

type testBad struct {
	s []int
}

func Test_stateHelperLayout(t *testing.T) {
	h := NewStateHelper[testLayout]()
	assert.True(t, h.HasTrivialDestructor())
	assert.Equal(t, 16, h.SizeOfData())
	assert.Equal(t, 8, h.AlignOfData())

	o := NewStateHelper[handleState]()
	assert.False(t, o.HasTrivialDestructor())

	//owns a handle but no Destroy on testOwner
	err := recoverError(func() { NewStateHelper[testOwner]() })
	assert.True(t, errors.IsAssertionFailure(err))
	err = recoverError(func() { NewStateHelper[testBad]() })
	assert.True(t, errors.IsAssertionFailure(err))
	assert.Contains(t, err.Error(), "field s")
	err = recoverError(func() { NewStateHelper[string]() })
	assert.True(t, errors.IsAssertionFailure(err))
}

func Test_trivialDestructor(t *testing.T) {
	cases := []struct {
		name    string
		args    []common.LType
		trivial bool
	}{
		{"count", nil, true},
		{"sum", []common.LType{common.BigintType()}, true},
		{"avg", []common.LType{common.DoubleType()}, true},
		{"min", []common.LType{common.DecimalType(18, 2)}, true},
		{"uniq", []common.LType{common.BigintType()}, false},
		{"uniqExact", []common.LType{common.VarcharType()}, false},
		{"groupBitmap", []common.LType{common.UbigintType()}, false},
		{"quantileExact", []common.LType{common.DoubleType()}, false},
		{"groupArray", []common.LType{common.IntegerType()}, false},
		{"sumIf", []common.LType{common.BigintType(), common.BooleanType()}, true},
		{"uniqState", []common.LType{common.BigintType()}, false},
	}
	for _, c := range cases {
		fn := mustGet(t, c.name, c.args)
		assert.Equal(t, c.trivial, fn.HasTrivialDestructor(), c.name)
		assert.Greater(t, fn.SizeOfData(), 0, c.name)
		assert.True(t, util.IsPowerOfTwo(uint64(fn.AlignOfData())), c.name)
	}
}

func Test_bindingOrder(t *testing.T) {
	fn, err := newQuantile("quantileExact", nil)
	require.NoError(t, err)

	err = fn.SetParameters([]*chunk.Value{chunk.NewDoubleValue(0.9)})
	assert.True(t, errors.Is(err, ErrPreconditionViolation))

	assert.Panics(t, func() { fn.Create(nil) })

	require.NoError(t, fn.SetArguments([]common.LType{common.DoubleType()}))
	err = fn.SetArguments([]common.LType{common.DoubleType()})
	assert.True(t, errors.Is(err, ErrPreconditionViolation))

	require.NoError(t, fn.SetParameters([]*chunk.Value{chunk.NewDoubleValue(0.9)}))
	err = fn.SetParameters([]*chunk.Value{chunk.NewDoubleValue(0.1)})
	assert.True(t, errors.Is(err, ErrPreconditionViolation))

	newPlace(t, fn)
	fn2, err := newCount("count", nil)
	require.NoError(t, err)
	require.NoError(t, fn2.SetArguments(nil))
	newPlace(t, fn2)
	//sealed by Create
	err = fn2.SetArguments(nil)
	assert.True(t, errors.Is(err, ErrPreconditionViolation))
}

func Test_stateOperationsBeforeArguments(t *testing.T) {
	args := []common.LType{common.BigintType()}
	sum, err := newSum("sum", args)
	require.NoError(t, err)
	sumIf := IfCombinator{}.Wrap("sumIf", mustGet(t, "sum", args))

	var buf [64]byte
	place := AggregateDataPtr(unsafe.Pointer(&buf[0]))
	cases := []struct {
		fn      Function
		columns []*chunk.Vector
	}{
		{sum, []*chunk.Vector{bigints(1)}},
		{sumIf, []*chunk.Vector{bigints(1), chunk.NewBooleanFlatVector([]bool{true})}},
	}
	for _, c := range cases {
		err = recoverError(func() { c.fn.Add(place, c.columns, 0) })
		assert.True(t, errors.Is(err, ErrPreconditionViolation), c.fn.Name())

		err = recoverError(func() { c.fn.Merge(place, place) })
		assert.True(t, errors.Is(err, ErrPreconditionViolation), c.fn.Name())

		err = c.fn.Serialize(place, util.NewBufferSerialize())
		assert.True(t, errors.Is(err, ErrPreconditionViolation), c.fn.Name())

		err = c.fn.DeserializeMerge(place, util.NewBufferDeserialize(nil))
		assert.True(t, errors.Is(err, ErrPreconditionViolation), c.fn.Name())
	}
	assert.Equal(t, [64]byte{}, buf)
}

func Test_createDestroyReuse(t *testing.T) {
	withDebugChecks(t)
	fn := mustGet(t, "uniqExact", []common.LType{common.BigintType()})
	helper := fn.(*uniqExactFunction)

	arena := util.NewArena(0, false)
	defer arena.Close()
	place := arena.AllocAligned(fn.SizeOfData(), fn.AlignOfData())

	for i := 0; i < 3; i++ {
		fn.Create(place)
		assert.Equal(t, 1, helper.LiveStates())
		addRows(fn, place, bigints(1, 2, 3, int64(i+10)))
		assert.Equal(t, uint64(4), result(t, fn, place).U64)
		fn.Destroy(place)
		assert.Equal(t, 0, helper.LiveStates())
	}
}

func Test_debugChecks(t *testing.T) {
	withDebugChecks(t)
	fn := mustGet(t, "count", nil)
	arena := util.NewArena(0, false)
	defer arena.Close()
	place := arena.AllocAligned(fn.SizeOfData(), fn.AlignOfData())

	fn.Create(place)
	//never updated
	err := fn.Serialize(place, util.NewBufferSerialize())
	assert.True(t, errors.Is(err, ErrPreconditionViolation))

	fn.Merge(place, place)
	assert.NoError(t, fn.Serialize(place, util.NewBufferSerialize()))

	fn.Destroy(place)
	err = recoverError(func() { fn.Destroy(place) })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPreconditionViolation))

	err = recoverError(func() { fn.Add(place, nil, 0) })
	assert.True(t, errors.Is(err, ErrPreconditionViolation))

	//a live trivial state may be created over
	fn.Create(place)
	fn.Create(place)
	fn.Destroy(place)

	owner := mustGet(t, "uniq", []common.LType{common.BigintType()})
	p2 := arena.AllocAligned(owner.SizeOfData(), owner.AlignOfData())
	owner.Create(p2)
	err = recoverError(func() { owner.Create(p2) })
	assert.True(t, errors.Is(err, ErrPreconditionViolation))
	owner.Destroy(p2)
}
