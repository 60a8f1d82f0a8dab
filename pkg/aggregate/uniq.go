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
	hll "github.com/axiomhq/hyperloglog"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

const (
	defaultUniqPrecision = 14
)

// uniqFunction estimates the number of distinct rows with a
// HyperLogLog sketch.
type uniqFunction struct {
	FunctionHelper[handleState]
	_precision int
}

func newUniq(name string, args []common.LType) (Function, error) {
	f := &uniqFunction{_precision: defaultUniqPrecision}
	f.InitHelper(name)
	return f, nil
}

func (f *uniqFunction) SetArguments(typs []common.LType) error {
	if len(typs) == 0 {
		return UnsupportedArguments(f.Name(), "takes at least one argument")
	}
	for _, typ := range typs {
		if typ.PTyp == common.INVALID {
			return UnsupportedArguments(f.Name(), "%s", typ)
		}
	}
	return f.BindArguments(typs, common.UbigintType())
}

// SetParameters takes the precision, 14 or 16.
func (f *uniqFunction) SetParameters(params []*chunk.Value) error {
	err := f.checkParams()
	if err != nil {
		return err
	}
	if len(params) != 1 {
		return InvalidParameters(f.Name(), "takes one parameter, got %d", len(params))
	}
	prec, err := intParam(f.Name(), params[0])
	if err != nil {
		return err
	}
	if prec != 14 && prec != 16 {
		return InvalidParameters(f.Name(), "precision must be 14 or 16, got %d", prec)
	}
	err = f.BindParameters(params)
	if err != nil {
		return err
	}
	f._precision = int(prec)
	return nil
}

func (f *uniqFunction) newSketch() *hll.Sketch {
	if f._precision == 16 {
		return hll.New16()
	}
	return hll.New14()
}

func (f *uniqFunction) sketch(st *handleState) *hll.Sketch {
	if st.empty() {
		st.set(f.newSketch())
	}
	return handleValue[*hll.Sketch](st)
}

func (f *uniqFunction) Add(place AggregateDataPtr, columns []*chunk.Vector, row int) {
	st := f.Mutable(place)
	hash, ok := rowHash(columns, row)
	if !ok {
		return
	}
	f.sketch(st).InsertHash(hash)
}

func (f *uniqFunction) merge(st *handleState, other *hll.Sketch) {
	if st.empty() {
		st.set(other.Clone())
		return
	}
	err := handleValue[*hll.Sketch](st).Merge(other)
	if err != nil {
		assertPrecondition(f.Name(), "merge sketches: %v", err)
	}
}

func (f *uniqFunction) Merge(place, rhs AggregateDataPtr) {
	dst := f.Mutable(place)
	src := f.Const(rhs)
	if src.empty() {
		return
	}
	f.merge(dst, handleValue[*hll.Sketch](src))
}

func (f *uniqFunction) Serialize(place AggregateDataPtr, serial util.Serialize) error {
	err := f.CheckSerialize(place)
	if err != nil {
		return err
	}
	st := f.Const(place)
	if st.empty() {
		return util.WriteBytes(nil, serial)
	}
	data, err := handleValue[*hll.Sketch](st).MarshalBinary()
	if err != nil {
		return err
	}
	return util.WriteBytes(data, serial)
}

func (f *uniqFunction) DeserializeMerge(place AggregateDataPtr, deserial util.Deserialize) error {
	err := f.CheckRead(place, "DeserializeMerge")
	if err != nil {
		return err
	}
	data, err := util.ReadBytes(deserial)
	if err != nil {
		return err
	}
	st := f.Mutable(place)
	if len(data) == 0 {
		return nil
	}
	other := f.newSketch()
	err = other.UnmarshalBinary(data)
	if err != nil {
		return err
	}
	if st.empty() {
		st.set(other)
		return nil
	}
	return handleValue[*hll.Sketch](st).Merge(other)
}

func (f *uniqFunction) InsertResultInto(place AggregateDataPtr, to *chunk.Vector) error {
	err := f.CheckRead(place, "InsertResultInto")
	if err != nil {
		return err
	}
	st := f.Const(place)
	if st.empty() {
		to.Append(chunk.NewUbigintValue(0))
		return nil
	}
	to.Append(chunk.NewUbigintValue(handleValue[*hll.Sketch](st).Estimate()))
	return nil
}
