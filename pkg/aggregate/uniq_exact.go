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
	"github.com/tidwall/btree"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

type hashSet = btree.BTreeG[uint64]

func hashLess(a, b uint64) bool {
	return a < b
}

// uniqExactFunction counts distinct rows by their 64 bit hashes.
type uniqExactFunction struct {
	FunctionHelper[handleState]
}

func newUniqExact(name string, args []common.LType) (Function, error) {
	f := &uniqExactFunction{}
	f.InitHelper(name)
	return f, nil
}

func (f *uniqExactFunction) SetArguments(typs []common.LType) error {
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

func (f *uniqExactFunction) set(st *handleState) *hashSet {
	if st.empty() {
		st.set(btree.NewBTreeG[uint64](hashLess))
	}
	return handleValue[*hashSet](st)
}

func (f *uniqExactFunction) Add(place AggregateDataPtr, columns []*chunk.Vector, row int) {
	st := f.Mutable(place)
	hash, ok := rowHash(columns, row)
	if !ok {
		return
	}
	f.set(st).Set(hash)
}

func (f *uniqExactFunction) Merge(place, rhs AggregateDataPtr) {
	dst := f.Mutable(place)
	src := f.Const(rhs)
	if src.empty() {
		return
	}
	set := f.set(dst)
	handleValue[*hashSet](src).Scan(func(hash uint64) bool {
		set.Set(hash)
		return true
	})
}

func (f *uniqExactFunction) Serialize(place AggregateDataPtr, serial util.Serialize) error {
	err := f.CheckSerialize(place)
	if err != nil {
		return err
	}
	st := f.Const(place)
	if st.empty() {
		return util.Write[uint32](0, serial)
	}
	set := handleValue[*hashSet](st)
	err = util.Write[uint32](uint32(set.Len()), serial)
	if err != nil {
		return err
	}
	set.Scan(func(hash uint64) bool {
		err = util.Write[uint64](hash, serial)
		return err == nil
	})
	return err
}

func (f *uniqExactFunction) DeserializeMerge(place AggregateDataPtr, deserial util.Deserialize) error {
	err := f.CheckRead(place, "DeserializeMerge")
	if err != nil {
		return err
	}
	var cnt uint32
	err = util.Read[uint32](&cnt, deserial)
	if err != nil {
		return err
	}
	st := f.Mutable(place)
	if cnt == 0 {
		return nil
	}
	set := f.set(st)
	for i := uint32(0); i < cnt; i++ {
		var hash uint64
		err = util.Read[uint64](&hash, deserial)
		if err != nil {
			return err
		}
		set.Set(hash)
	}
	return nil
}

func (f *uniqExactFunction) InsertResultInto(place AggregateDataPtr, to *chunk.Vector) error {
	err := f.CheckRead(place, "InsertResultInto")
	if err != nil {
		return err
	}
	st := f.Const(place)
	cnt := 0
	if !st.empty() {
		cnt = handleValue[*hashSet](st).Len()
	}
	to.Append(chunk.NewUbigintValue(uint64(cnt)))
	return nil
}
