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

package groupby

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/aggstate/pkg/aggregate"
	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

// input has the columns (k varchar, v bigint).
func input(keys []string, vals []int64) *chunk.Chunk {
	return chunk.FromColumns(
		chunk.NewVarcharFlatVector(keys),
		chunk.NewBigintFlatVector(vals))
}

func newTestAggregator(t *testing.T, opts Options) *Aggregator {
	bigint := []common.LType{common.BigintType()}
	get := func(name string, args []common.LType, params ...*chunk.Value) aggregate.Function {
		fn, err := aggregate.Get(name, args, params)
		require.NoError(t, err)
		return fn
	}
	aggs := []Aggregate{
		{Func: get("count", nil)},
		{Func: get("sum", bigint), Columns: []int{1}},
		{Func: get("uniqExact", bigint), Columns: []int{1}},
		{Func: get("groupArray", bigint), Columns: []int{1}},
		{Func: get("avg", bigint), Columns: []int{1}},
	}
	agg, err := NewAggregator([]common.LType{common.VarcharType()}, []int{0}, aggs, opts)
	require.NoError(t, err)
	t.Cleanup(agg.Close)
	return agg
}

func rows(t *testing.T, agg *Aggregator) string {
	res, err := agg.Finalize()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, res.SaveToWriter(&buf))
	return buf.String()
}

func Test_groupBy(t *testing.T) {
	agg := newTestAggregator(t, DefaultOptions())
	require.NoError(t, agg.AddChunk(input([]string{"a", "b", "a", "c"}, []int64{1, 2, 3, 4})))
	require.NoError(t, agg.AddChunk(input([]string{"b", "a"}, []int64{2, 5})))
	assert.Equal(t, 3, agg.GroupCount())
	want := strings.Join([]string{
		"a\t3\t9\t3\t[1,3,5]\t3",
		"b\t2\t4\t1\t[2,2]\t2",
		"c\t1\t4\t1\t[4]\t4",
	}, "\n") + "\n"
	assert.Equal(t, want, rows(t, agg))
}

func Test_layout(t *testing.T) {
	aligned := newTestAggregator(t, DefaultOptions())
	size, align := aligned.StateSize()
	assert.Equal(t, 8, align)
	assert.Equal(t, 0, size%8)
	for i, agg := range aligned.Aggregates() {
		assert.Equal(t, 0, aligned._offsets[i]%agg.Func.AlignOfData())
	}

	opts := DefaultOptions()
	opts.AlignStates = false
	packed := newTestAggregator(t, opts)
	psize, palign := packed.StateSize()
	assert.Equal(t, 1, palign)
	total := 0
	for _, agg := range packed.Aggregates() {
		total += agg.Func.SizeOfData()
	}
	assert.Equal(t, total, psize)

	require.NoError(t, packed.AddChunk(input([]string{"x", "y", "x"}, []int64{1, 2, 3})))
	assert.Equal(t, "x\t2\t4\t2\t[1,3]\t2\ny\t1\t2\t1\t[2]\t2\n", rows(t, packed))
}

func Test_mergeFrom(t *testing.T) {
	shards := [][]string{{"a", "b"}, {"b", "c"}, {"a", "a"}}
	parts := make([]*Aggregator, len(shards))
	for i := range parts {
		parts[i] = newTestAggregator(t, DefaultOptions())
	}
	grp := errgroup.Group{}
	for i, keys := range shards {
		grp.Go(func() error {
			return parts[i].AddChunk(input(keys, []int64{int64(i), int64(i + 10)}))
		})
	}
	require.NoError(t, grp.Wait())

	final := newTestAggregator(t, DefaultOptions())
	for _, part := range parts {
		require.NoError(t, final.MergeFrom(part))
	}
	want := "a\t3\t14\t3\t[0,2,12]\t4.666666666666667\n" +
		"b\t2\t11\t2\t[10,1]\t5.5\n" +
		"c\t1\t11\t1\t[11]\t11\n"
	assert.Equal(t, want, rows(t, final))
	//sources are unchanged
	assert.Equal(t, "a\t1\t0\t1\t[0]\t0\nb\t1\t10\t1\t[10]\t10\n", rows(t, parts[0]))
}

func Test_serializeMerge(t *testing.T) {
	src := newTestAggregator(t, DefaultOptions())
	require.NoError(t, src.AddChunk(input([]string{"a", "b", "a"}, []int64{1, 2, 3})))
	serial := util.NewBufferSerialize()
	require.NoError(t, src.Serialize(serial))

	dst := newTestAggregator(t, DefaultOptions())
	require.NoError(t, dst.AddChunk(input([]string{"b", "c"}, []int64{5, 6})))
	deserial := util.NewBufferDeserialize(serial.Bytes())
	require.NoError(t, dst.DeserializeMerge(deserial))
	assert.Equal(t, 0, deserial.Remaining())
	want := "b\t2\t7\t2\t[5,2]\t3.5\n" +
		"c\t1\t6\t1\t[6]\t6\n" +
		"a\t2\t4\t2\t[1,3]\t2\n"
	assert.Equal(t, want, rows(t, dst))
}

func Test_incompatible(t *testing.T) {
	a := newTestAggregator(t, DefaultOptions())
	fn, err := aggregate.Get("count", nil, nil)
	require.NoError(t, err)
	b, err := NewAggregator([]common.LType{common.VarcharType()}, []int{0}, []Aggregate{{Func: fn}}, DefaultOptions())
	require.NoError(t, err)
	defer b.Close()
	assert.Error(t, a.MergeFrom(b))

	_, err = NewAggregator(nil, nil, []Aggregate{{Func: fn, Columns: []int{0}}}, DefaultOptions())
	assert.Error(t, err)

	sum, err := aggregate.Get("sum", []common.LType{common.DoubleType()}, nil)
	require.NoError(t, err)
	c, err := NewAggregator(nil, nil, []Aggregate{{Func: sum, Columns: []int{1}}}, DefaultOptions())
	require.NoError(t, err)
	defer c.Close()
	//column 1 is bigint
	assert.Error(t, c.AddChunk(input([]string{"a"}, []int64{1})))
}

func Test_close(t *testing.T) {
	aggregate.SetDebugChecks(true)
	defer aggregate.SetDebugChecks(false)
	fn, err := aggregate.Get("uniqExact", []common.LType{common.BigintType()}, nil)
	require.NoError(t, err)
	cnt, err := aggregate.Get("count", nil, nil)
	require.NoError(t, err)
	sum, err := aggregate.Get("sum", []common.LType{common.BigintType()}, nil)
	require.NoError(t, err)
	agg, err := NewAggregator(nil, nil, []Aggregate{
		{Func: fn, Columns: []int{1}},
		{Func: cnt},
		{Func: sum, Columns: []int{1}},
	}, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, agg.AddChunk(input([]string{"a", "b"}, []int64{1, 2})))
	assert.Equal(t, 1, agg.GroupCount())

	type liveStates interface {
		LiveStates() int
	}
	for _, f := range []aggregate.Function{fn, cnt, sum} {
		assert.Equal(t, 1, f.(liveStates).LiveStates(), f.Name())
	}
	assert.True(t, sum.HasTrivialDestructor())
	agg.Close()
	//trivial states are destroyed too while tracked
	for _, f := range []aggregate.Function{fn, cnt, sum} {
		assert.Equal(t, 0, f.(liveStates).LiveStates(), f.Name())
	}
	agg.Close()
	assert.Error(t, agg.AddChunk(input(nil, nil)))
	_, err = agg.Finalize()
	assert.Error(t, err)
}

func Test_ownerCheck(t *testing.T) {
	opts := DefaultOptions()
	opts.CheckOwner = true
	agg := newTestAggregator(t, opts)
	require.NoError(t, agg.AddChunk(input([]string{"a"}, []int64{1})))

	grp := errgroup.Group{}
	grp.Go(func() error {
		assert.Panics(t, func() {
			_ = agg.AddChunk(input([]string{"b"}, []int64{1}))
		})
		return nil
	})
	require.NoError(t, grp.Wait())

	agg.Handoff()
	grp.Go(func() error {
		return agg.AddChunk(input([]string{"c"}, []int64{1}))
	})
	require.NoError(t, grp.Wait())
	agg.Handoff()
	assert.Equal(t, 2, agg.GroupCount())
}
