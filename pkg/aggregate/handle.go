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
	"runtime/cgo"
	"unsafe"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

// handleState refers to a Go object owned by the state. The zero
// handle is an empty state, the object is made by the first update.
type handleState struct {
	h cgo.Handle
}

func (st *handleState) Destroy() {
	if st.h != 0 {
		st.h.Delete()
		st.h = 0
	}
}

func (st *handleState) empty() bool {
	return st.h == 0
}

func (st *handleState) set(v any) {
	util.AssertFunc(st.h == 0)
	st.h = cgo.NewHandle(v)
}

func handleValue[V any](st *handleState) V {
	return st.h.Value().(V)
}

// rowHash hashes the values of columns at row. It reports false when
// one of them is NULL.
func rowHash(columns []*chunk.Vector, row int) (uint64, bool) {
	var hash uint64
	for i, col := range columns {
		if !col.RowIsValid(row) {
			return 0, false
		}
		h := valueHash(col, row)
		if i == 0 {
			hash = h
		} else {
			hash = util.HashUint64(hash*31 ^ h)
		}
	}
	return hash, true
}

func valueHash(col *chunk.Vector, row int) uint64 {
	idx := rowOf(col, row)
	pTyp := col.Typ().GetInternalType()
	switch pTyp {
	case common.VARCHAR:
		return util.HashString(col.GetString(idx))
	case common.DECIMAL:
		d := chunk.GetSliceInPhyFormatFlat[common.Decimal](col)[idx]
		return util.HashString(d.WithScale(col.Typ().Scale).String())
	default:
		sz := pTyp.Size()
		return util.HashBytes(unsafe.Pointer(&col.Data[idx*sz]), uint64(sz))
	}
}
