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
	"strings"
	"unsafe"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

// AggregateDataPtr addresses one aggregation state in memory owned by
// the caller. The state carries no tag, the caller tracks which
// Function it belongs to.
type AggregateDataPtr = unsafe.Pointer

// Function describes one aggregate function bound to argument types and
// parameters.
//
// SetArguments is called exactly once, then SetParameters at most once,
// before any state operation. After that the descriptor is immutable and
// may be shared by any number of goroutines, each operating on its own
// states. A state at a given address is mutated by one goroutine at a
// time.
//
// States are created with Create before use and destroyed with Destroy
// exactly once before the memory is reused or freed. Destroy may be
// skipped when HasTrivialDestructor reports true. The descriptor never
// allocates nor frees the memory at the address.
type Function interface {
	Name() string
	Arguments() []common.LType
	Parameters() []*chunk.Value

	SetArguments(typs []common.LType) error
	SetParameters(params []*chunk.Value) error
	Bound() bool
	ReturnType() common.LType

	Create(place AggregateDataPtr)
	Destroy(place AggregateDataPtr)
	HasTrivialDestructor() bool
	SizeOfData() int
	AlignOfData() int

	// Add folds row of columns into the state. columns match the bound
	// argument types.
	Add(place AggregateDataPtr, columns []*chunk.Vector, row int)
	// Merge folds the state at rhs into place. rhs stays unchanged.
	Merge(place, rhs AggregateDataPtr)

	// Serialize writes the state. The state must have been updated by
	// Add, Merge or DeserializeMerge since Create.
	Serialize(place AggregateDataPtr, serial util.Serialize) error
	// DeserializeMerge reads a state written by Serialize of a function
	// with the same Signature and merges it into place.
	DeserializeMerge(place AggregateDataPtr, deserial util.Deserialize) error
	SerializeText(place AggregateDataPtr, w io.Writer) error
	DeserializeMergeText(place AggregateDataPtr, r io.Reader) error

	// InsertResultInto appends exactly one value of ReturnType to to.
	// The state is not modified.
	InsertResultInto(place AggregateDataPtr, to *chunk.Vector) error
	// CanBeFinal is false when the result is only meaningful after a
	// further merge step.
	CanBeFinal() bool
}

// Signature identifies what states a function reads and writes.
// States may only be exchanged between functions with equal signatures.
func Signature(fn Function) string {
	sb := strings.Builder{}
	sb.WriteString(fn.Name())
	params := fn.Parameters()
	if len(params) != 0 {
		sb.WriteByte('(')
		for i, p := range params {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(p.String())
		}
		sb.WriteByte(')')
	}
	sb.WriteByte('(')
	for i, typ := range fn.Arguments() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(typ.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// SameSignature reports whether states of a can be merged into b.
func SameSignature(a, b Function) bool {
	return Signature(a) == Signature(b)
}

func argumentsString(typs []common.LType) string {
	strs := make([]string, len(typs))
	for i, typ := range typs {
		strs[i] = typ.String()
	}
	return fmt.Sprintf("(%s)", strings.Join(strs, ","))
}
