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
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"go.uber.org/zap"

	"github.com/daviszhen/aggstate/pkg/aggregate"
	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

// Aggregate is a bound function over columns of the input chunks.
type Aggregate struct {
	Func    aggregate.Function
	Columns []int
}

type Options struct {
	// AlignStates places every state at a multiple of its AlignOfData.
	// Otherwise states are packed back to back.
	AlignStates    bool
	ArenaChunkSize int
	// CheckOwner asserts that all allocations run on one goroutine.
	CheckOwner bool
}

func DefaultOptions() Options {
	return Options{
		AlignStates:    true,
		ArenaChunkSize: util.DefaultArenaChunkSize,
	}
}

type group struct {
	key   []*chunk.Value
	place unsafe.Pointer
}

// Aggregator folds rows into one region of states per distinct group
// key. Groups keep the order in which they were first seen.
type Aggregator struct {
	_groupTypes []common.LType
	_groupCols  []int
	_aggs       []Aggregate
	_offsets    []int
	_size       int
	_align      int
	_arena      *util.Arena
	_index      *swiss.Map[string, int]
	_groups     []group
	_keyBuf     *util.BufferSerialize
	_closed     bool
}

func NewAggregator(groupTypes []common.LType, groupCols []int, aggs []Aggregate, opts Options) (*Aggregator, error) {
	if len(groupTypes) != len(groupCols) {
		return nil, errors.Newf("groupby: %d group types for %d group columns", len(groupTypes), len(groupCols))
	}
	for i, agg := range aggs {
		if agg.Func == nil || !agg.Func.Bound() {
			return nil, errors.Newf("groupby: aggregate %d is not bound", i)
		}
		if len(agg.Columns) != len(agg.Func.Arguments()) {
			return nil, errors.Newf("groupby: %s takes %d columns, got %d",
				aggregate.Signature(agg.Func), len(agg.Func.Arguments()), len(agg.Columns))
		}
	}
	ret := &Aggregator{
		_groupTypes: common.CopyLTypes(groupTypes...),
		_groupCols:  util.CopyTo(groupCols),
		_aggs:       aggs,
		_align:      1,
		_arena:      util.NewArena(opts.ArenaChunkSize, opts.CheckOwner || aggregate.DebugChecks()),
		_index:      swiss.NewMap[string, int](64),
		_keyBuf:     util.NewBufferSerialize(),
	}
	ret.layout(opts.AlignStates)
	return ret, nil
}

// layout computes the offset of every state inside a group region.
func (a *Aggregator) layout(alignStates bool) {
	offset := 0
	for _, agg := range a._aggs {
		if alignStates {
			align := agg.Func.AlignOfData()
			offset = util.AlignValue(offset, align)
			a._align = max(a._align, align)
		}
		a._offsets = append(a._offsets, offset)
		offset += agg.Func.SizeOfData()
	}
	a._size = offset
}

func (a *Aggregator) GroupTypes() []common.LType {
	return common.CopyLTypes(a._groupTypes...)
}

func (a *Aggregator) Aggregates() []Aggregate {
	return a._aggs
}

func (a *Aggregator) GroupCount() int {
	return len(a._groups)
}

// StateSize is the bytes of one group region and its alignment.
func (a *Aggregator) StateSize() (int, int) {
	return a._size, a._align
}

func (a *Aggregator) statePlace(g *group, i int) aggregate.AggregateDataPtr {
	return util.PointerAdd(g.place, a._offsets[i])
}

func (a *Aggregator) encodeKey(key []*chunk.Value) string {
	a._keyBuf.Reset()
	for _, val := range key {
		err := val.Serialize(a._keyBuf)
		util.AssertFunc(err == nil)
	}
	return string(a._keyBuf.Bytes())
}

// findOrCreate returns the group of key, creating its states on first
// sight.
func (a *Aggregator) findOrCreate(key []*chunk.Value) *group {
	enc := a.encodeKey(key)
	if idx, ok := a._index.Get(enc); ok {
		return &a._groups[idx]
	}
	g := group{
		key:   key,
		place: a._arena.AllocAligned(a._size, a._align),
	}
	a._groups = append(a._groups, g)
	a._index.Put(enc, len(a._groups)-1)
	last := &a._groups[len(a._groups)-1]
	for i, agg := range a._aggs {
		agg.Func.Create(a.statePlace(last, i))
	}
	return last
}

func (a *Aggregator) checkOpen() error {
	if a._closed {
		return errors.New("groupby: aggregator is closed")
	}
	return nil
}

// AddChunk folds every row of data.
func (a *Aggregator) AddChunk(data *chunk.Chunk) error {
	err := a.checkOpen()
	if err != nil {
		return err
	}
	for _, col := range a._groupCols {
		if col < 0 || col >= data.ColumnCount() {
			return errors.Newf("groupby: group column %d out of %d", col, data.ColumnCount())
		}
	}
	inputs := make([][]*chunk.Vector, len(a._aggs))
	for i, agg := range a._aggs {
		args := agg.Func.Arguments()
		for j, col := range agg.Columns {
			if col < 0 || col >= data.ColumnCount() {
				return errors.Newf("groupby: %s column %d out of %d",
					aggregate.Signature(agg.Func), col, data.ColumnCount())
			}
			vec := data.Data[col]
			if !vec.Typ().Equal(args[j]) {
				return errors.Newf("groupby: %s argument %d is %s, column %d is %s",
					aggregate.Signature(agg.Func), j, args[j], col, vec.Typ())
			}
			inputs[i] = append(inputs[i], vec)
		}
	}
	for row := 0; row < data.Card(); row++ {
		key := make([]*chunk.Value, len(a._groupCols))
		for i, col := range a._groupCols {
			key[i] = data.Data[col].GetValue(row)
		}
		g := a.findOrCreate(key)
		for i, agg := range a._aggs {
			agg.Func.Add(a.statePlace(g, i), inputs[i], row)
		}
	}
	return nil
}

// Compatible fails unless states of other can be merged into a.
func (a *Aggregator) Compatible(other *Aggregator) error {
	if len(a._groupTypes) != len(other._groupTypes) || len(a._aggs) != len(other._aggs) {
		return errors.New("groupby: aggregators differ in shape")
	}
	for i, typ := range a._groupTypes {
		if !typ.Equal(other._groupTypes[i]) {
			return errors.Newf("groupby: group column %d is %s and %s", i, typ, other._groupTypes[i])
		}
	}
	for i, agg := range a._aggs {
		if !aggregate.SameSignature(agg.Func, other._aggs[i].Func) {
			return errors.Newf("groupby: aggregate %d is %s and %s", i,
				aggregate.Signature(agg.Func), aggregate.Signature(other._aggs[i].Func))
		}
	}
	return nil
}

// MergeFrom merges every group of other. other is left unchanged.
func (a *Aggregator) MergeFrom(other *Aggregator) error {
	err := a.checkOpen()
	if err != nil {
		return err
	}
	err = other.checkOpen()
	if err != nil {
		return err
	}
	err = a.Compatible(other)
	if err != nil {
		return err
	}
	for gi := range other._groups {
		src := &other._groups[gi]
		dst := a.findOrCreate(src.key)
		for i, agg := range a._aggs {
			agg.Func.Merge(a.statePlace(dst, i), other.statePlace(src, i))
		}
	}
	return nil
}

// Serialize writes the group count, then per group the key values and
// the state of every aggregate.
func (a *Aggregator) Serialize(serial util.Serialize) error {
	err := a.checkOpen()
	if err != nil {
		return err
	}
	err = util.Write[uint32](uint32(len(a._groups)), serial)
	if err != nil {
		return err
	}
	for gi := range a._groups {
		g := &a._groups[gi]
		for _, val := range g.key {
			err = val.Serialize(serial)
			if err != nil {
				return err
			}
		}
		for i, agg := range a._aggs {
			err = agg.Func.Serialize(a.statePlace(g, i), serial)
			if err != nil {
				return errors.Wrapf(err, "groupby: serialize %s", aggregate.Signature(agg.Func))
			}
		}
	}
	return nil
}

// DeserializeMerge reads groups written by Serialize of a compatible
// aggregator and merges them.
func (a *Aggregator) DeserializeMerge(deserial util.Deserialize) error {
	err := a.checkOpen()
	if err != nil {
		return err
	}
	var cnt uint32
	err = util.Read[uint32](&cnt, deserial)
	if err != nil {
		return err
	}
	for n := uint32(0); n < cnt; n++ {
		key := make([]*chunk.Value, len(a._groupTypes))
		for i, typ := range a._groupTypes {
			val, err := chunk.DeserializeValue(deserial)
			if err != nil {
				return err
			}
			if !val.Typ.Equal(typ) {
				return errors.Newf("groupby: group column %d is %s, got %s", i, typ, val.Typ)
			}
			key[i] = val
		}
		g := a.findOrCreate(key)
		for i, agg := range a._aggs {
			err = agg.Func.DeserializeMerge(a.statePlace(g, i), deserial)
			if err != nil {
				return errors.Wrapf(err, "groupby: merge %s", aggregate.Signature(agg.Func))
			}
		}
	}
	return nil
}

// Finalize returns the group columns followed by one result column per
// aggregate, one row per group.
func (a *Aggregator) Finalize() (*chunk.Chunk, error) {
	err := a.checkOpen()
	if err != nil {
		return nil, err
	}
	cols := make([]*chunk.Vector, 0, len(a._groupTypes)+len(a._aggs))
	for _, typ := range a._groupTypes {
		cols = append(cols, chunk.NewFlatVector(typ, len(a._groups)))
	}
	for _, agg := range a._aggs {
		cols = append(cols, chunk.NewFlatVector(agg.Func.ReturnType(), len(a._groups)))
	}
	for gi := range a._groups {
		g := &a._groups[gi]
		for i, val := range g.key {
			cols[i].Append(val)
		}
		for i, agg := range a._aggs {
			err = agg.Func.InsertResultInto(a.statePlace(g, i), cols[len(a._groupTypes)+i])
			if err != nil {
				return nil, errors.Wrapf(err, "groupby: finalize %s", aggregate.Signature(agg.Func))
			}
		}
	}
	util.Debug("groupby finalize", zap.Int("groups", len(a._groups)))
	return chunk.FromColumns(cols...), nil
}

// Handoff lets another goroutine continue with the aggregator.
func (a *Aggregator) Handoff() {
	a._arena.Handoff()
}

// Close destroys every state once and frees the arena. Aggregates with
// trivial destructors are skipped unless debug checks track their states.
func (a *Aggregator) Close() {
	if a._closed {
		return
	}
	a._closed = true
	destroyed := 0
	tracked := aggregate.DebugChecks()
	for i, agg := range a._aggs {
		if agg.Func.HasTrivialDestructor() && !tracked {
			continue
		}
		for gi := range a._groups {
			agg.Func.Destroy(a.statePlace(&a._groups[gi], i))
			destroyed++
		}
	}
	util.Debug("groupby close",
		zap.Int("groups", len(a._groups)),
		zap.Int("destroyed", destroyed),
		zap.Int("arena", a._arena.Reserved()))
	a._groups = nil
	a._index.Clear()
	a._arena.Close()
}
