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
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

// Combinator derives a function <f><Suffix> from a function f.
type Combinator interface {
	Suffix() string
	// NestedArguments maps the argument types of the derived function
	// to those of the nested function named nested.
	NestedArguments(nested string, args []common.LType) ([]common.LType, error)
	// Wrap returns the unbound derived function named name.
	Wrap(name string, nested Function) Function
}

// combined delegates the state lifecycle to the nested function. The
// derived function has no state of its own.
type combined struct {
	BaseFunction
	_comb   Combinator
	_nested Function
}

func (c *combined) init(name string, comb Combinator, nested Function) {
	c.InitBase(name)
	c._comb = comb
	c._nested = nested
}

// bind binds the nested function to the nested arguments of typs.
func (c *combined) bind(typs []common.LType) error {
	if c.Bound() {
		return PreconditionViolation(c.Name(), "arguments already set")
	}
	args, err := c._comb.NestedArguments(c._nested.Name(), typs)
	if err != nil {
		return err
	}
	return c._nested.SetArguments(args)
}

func (c *combined) Nested() Function {
	return c._nested
}

func (c *combined) Parameters() []*chunk.Value {
	return c._nested.Parameters()
}

func (c *combined) SetParameters(params []*chunk.Value) error {
	err := c.checkParams()
	if err != nil {
		return err
	}
	return c._nested.SetParameters(params)
}

func (c *combined) Create(place AggregateDataPtr) {
	c.mustBound("Create")
	c.seal()
	c._nested.Create(place)
}

func (c *combined) Destroy(place AggregateDataPtr) {
	c._nested.Destroy(place)
}

func (c *combined) HasTrivialDestructor() bool {
	return c._nested.HasTrivialDestructor()
}

func (c *combined) SizeOfData() int {
	return c._nested.SizeOfData()
}

func (c *combined) AlignOfData() int {
	return c._nested.AlignOfData()
}

func (c *combined) Add(place AggregateDataPtr, columns []*chunk.Vector, row int) {
	c.mustBound("Add")
	c._nested.Add(place, columns, row)
}

func (c *combined) Merge(place, rhs AggregateDataPtr) {
	c.mustBound("Merge")
	c._nested.Merge(place, rhs)
}

func (c *combined) Serialize(place AggregateDataPtr, serial util.Serialize) error {
	err := c.checkBound("Serialize")
	if err != nil {
		return err
	}
	return c._nested.Serialize(place, serial)
}

func (c *combined) DeserializeMerge(place AggregateDataPtr, deserial util.Deserialize) error {
	err := c.checkBound("DeserializeMerge")
	if err != nil {
		return err
	}
	return c._nested.DeserializeMerge(place, deserial)
}

func (c *combined) SerializeText(place AggregateDataPtr, w io.Writer) error {
	return c._nested.SerializeText(place, w)
}

func (c *combined) DeserializeMergeText(place AggregateDataPtr, r io.Reader) error {
	return c._nested.DeserializeMergeText(place, r)
}

func (c *combined) InsertResultInto(place AggregateDataPtr, to *chunk.Vector) error {
	return c._nested.InsertResultInto(place, to)
}

func (c *combined) CanBeFinal() bool {
	return c._nested.CanBeFinal()
}

func (c *combined) MarkUpdated(place AggregateDataPtr) {
	markUpdated(c._nested, place)
}

// StateCombinator makes <f>State: the result is the serialized state of
// f, to be merged later by <f>Merge.
type StateCombinator struct{}

func (StateCombinator) Suffix() string {
	return "State"
}

func (StateCombinator) NestedArguments(nested string, args []common.LType) ([]common.LType, error) {
	return args, nil
}

func (comb StateCombinator) Wrap(name string, nested Function) Function {
	f := &stateFunction{}
	f.init(name, comb, nested)
	return f
}

type stateFunction struct {
	combined
	_info *common.AggStateInfo
}

func (f *stateFunction) SetArguments(typs []common.LType) error {
	err := f.bind(typs)
	if err != nil {
		return err
	}
	f._info = &common.AggStateInfo{
		Name:   f._nested.Name(),
		Params: paramsText(f._nested.Parameters()),
		Args:   f._nested.Arguments(),
	}
	return f.BindArguments(typs, common.AggregateStateType(f._info))
}

// SetParameters also records the parameters in the state type.
func (f *stateFunction) SetParameters(params []*chunk.Value) error {
	err := f.combined.SetParameters(params)
	if err != nil {
		return err
	}
	f._info.Params = paramsText(f._nested.Parameters())
	return nil
}

func (f *stateFunction) InsertResultInto(place AggregateDataPtr, to *chunk.Vector) error {
	err := f.checkBound("InsertResultInto")
	if err != nil {
		return err
	}
	serial := util.NewBufferSerialize()
	err = f._nested.Serialize(place, serial)
	if err != nil {
		return err
	}
	to.Append(&chunk.Value{
		Typ: f.ReturnType(),
		Str: string(serial.Bytes()),
	})
	return nil
}

func (f *stateFunction) CanBeFinal() bool {
	return false
}

// MergeCombinator makes <f>Merge: its one argument is a column of states
// produced by <f>State.
type MergeCombinator struct{}

func (MergeCombinator) Suffix() string {
	return "Merge"
}

func (MergeCombinator) NestedArguments(nested string, args []common.LType) ([]common.LType, error) {
	name := nested + "Merge"
	if len(args) != 1 {
		return nil, UnsupportedArguments(name, "takes one argument, got %d", len(args))
	}
	arg := args[0]
	if arg.Id != common.LTID_AGGREGATE_STATE || arg.State == nil {
		return nil, UnsupportedArguments(name, "argument must be an aggregate state, got %s", arg)
	}
	if arg.State.Name != nested {
		return nil, UnsupportedArguments(name, "argument holds states of %s", arg.State)
	}
	return common.CopyLTypes(arg.State.Args...), nil
}

func (comb MergeCombinator) Wrap(name string, nested Function) Function {
	f := &mergeFunction{}
	f.init(name, comb, nested)
	return f
}

type mergeFunction struct {
	combined
	_state *common.AggStateInfo
}

// SetArguments binds the nested function to the arguments and the
// parameters recorded in the state type.
func (f *mergeFunction) SetArguments(typs []common.LType) error {
	err := f.bind(typs)
	if err != nil {
		return err
	}
	f._state = typs[0].State
	if len(f._state.Params) != 0 {
		err = f._nested.SetParameters(paramsFromText(f._state.Params))
		if err != nil {
			return err
		}
	}
	return f.BindArguments(typs, f._nested.ReturnType())
}

// SetParameters accepts only the parameters the states were built with.
func (f *mergeFunction) SetParameters(params []*chunk.Value) error {
	err := f.checkParams()
	if err != nil {
		return err
	}
	got := paramsText(params)
	if !slices.Equal(got, f._state.Params) {
		return InvalidParameters(f.Name(), "states were built with (%s), got (%s)",
			strings.Join(f._state.Params, ","), strings.Join(got, ","))
	}
	return f.BindParameters(params)
}

// Add merges the state held by the row. Rows that are not states of the
// nested function panic.
func (f *mergeFunction) Add(place AggregateDataPtr, columns []*chunk.Vector, row int) {
	f.mustBound("Add")
	markUpdated(f._nested, place)
	col := columns[0]
	if !col.RowIsValid(row) {
		return
	}
	data := util.UnsafeStringToBytes(col.GetString(row))
	err := f._nested.DeserializeMerge(place, util.NewBufferDeserialize(data))
	if err != nil {
		panic(errors.Wrapf(err, "%s: merge state of row %d", f.Name(), row))
	}
}

// IfCombinator makes <f>If: a trailing BOOLEAN argument selects the rows
// folded into f.
type IfCombinator struct{}

func (IfCombinator) Suffix() string {
	return "If"
}

func (IfCombinator) NestedArguments(nested string, args []common.LType) ([]common.LType, error) {
	if len(args) == 0 || args[len(args)-1].Id != common.LTID_BOOLEAN {
		return nil, UnsupportedArguments(nested+"If", "last argument must be boolean")
	}
	return common.CopyLTypes(args[:len(args)-1]...), nil
}

func (comb IfCombinator) Wrap(name string, nested Function) Function {
	f := &ifFunction{}
	f.init(name, comb, nested)
	return f
}

type ifFunction struct {
	combined
}

func (f *ifFunction) SetArguments(typs []common.LType) error {
	err := f.bind(typs)
	if err != nil {
		return err
	}
	return f.BindArguments(typs, f._nested.ReturnType())
}

// Add marks the state updated for every row so that a state no row
// selected can still be serialized.
func (f *ifFunction) Add(place AggregateDataPtr, columns []*chunk.Vector, row int) {
	f.mustBound("Add")
	markUpdated(f._nested, place)
	n := len(columns) - 1
	cond := columns[n]
	if !cond.RowIsValid(row) {
		return
	}
	if !chunk.GetSliceInPhyFormatFlat[bool](cond)[rowOf(cond, row)] {
		return
	}
	f._nested.Add(place, columns[:n], row)
}
