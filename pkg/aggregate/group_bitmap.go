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
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

// groupBitmapFunction collects values into a roaring bitmap and returns
// its cardinality. Values are truncated to 32 bits.
type groupBitmapFunction struct {
	FunctionHelper[handleState]
}

func newGroupBitmap(name string, args []common.LType) (Function, error) {
	f := &groupBitmapFunction{}
	f.InitHelper(name)
	return f, nil
}

func (f *groupBitmapFunction) SetArguments(typs []common.LType) error {
	if len(typs) != 1 {
		return UnsupportedArguments(f.Name(), "takes one argument, got %d", len(typs))
	}
	switch typs[0].Id {
	case common.LTID_INTEGER, common.LTID_BIGINT, common.LTID_UBIGINT:
	default:
		return UnsupportedArguments(f.Name(), "%s", typs[0])
	}
	return f.BindArguments(typs, common.UbigintType())
}

func (f *groupBitmapFunction) bitmap(st *handleState) *roaring.Bitmap {
	if st.empty() {
		st.set(roaring.New())
	}
	return handleValue[*roaring.Bitmap](st)
}

func (f *groupBitmapFunction) Add(place AggregateDataPtr, columns []*chunk.Vector, row int) {
	st := f.Mutable(place)
	if !columns[0].RowIsValid(row) {
		return
	}
	f.bitmap(st).Add(uint32(loadInt64(columns[0], row)))
}

func (f *groupBitmapFunction) Merge(place, rhs AggregateDataPtr) {
	dst := f.Mutable(place)
	src := f.Const(rhs)
	if src.empty() {
		return
	}
	f.bitmap(dst).Or(handleValue[*roaring.Bitmap](src))
}

func (f *groupBitmapFunction) Serialize(place AggregateDataPtr, serial util.Serialize) error {
	err := f.CheckSerialize(place)
	if err != nil {
		return err
	}
	st := f.Const(place)
	if st.empty() {
		return util.WriteBytes(nil, serial)
	}
	data, err := handleValue[*roaring.Bitmap](st).MarshalBinary()
	if err != nil {
		return err
	}
	return util.WriteBytes(data, serial)
}

func (f *groupBitmapFunction) DeserializeMerge(place AggregateDataPtr, deserial util.Deserialize) error {
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
	other := roaring.New()
	err = other.UnmarshalBinary(data)
	if err != nil {
		return err
	}
	f.bitmap(st).Or(other)
	return nil
}

// SerializeText writes the portable bitmap format in base64. An empty
// state is written as NULL.
func (f *groupBitmapFunction) SerializeText(place AggregateDataPtr, w io.Writer) error {
	err := f.CheckSerialize(place)
	if err != nil {
		return err
	}
	st := f.Const(place)
	if st.empty() {
		_, err = io.WriteString(w, textNull)
		return err
	}
	text, err := handleValue[*roaring.Bitmap](st).ToBase64()
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}

func (f *groupBitmapFunction) DeserializeMergeText(place AggregateDataPtr, r io.Reader) error {
	err := f.CheckRead(place, "DeserializeMergeText")
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	st := f.Mutable(place)
	text := strings.TrimSpace(string(data))
	if text == textNull {
		return nil
	}
	other := roaring.New()
	_, err = other.FromBase64(text)
	if err != nil {
		return err
	}
	f.bitmap(st).Or(other)
	return nil
}

func (f *groupBitmapFunction) InsertResultInto(place AggregateDataPtr, to *chunk.Vector) error {
	err := f.CheckRead(place, "InsertResultInto")
	if err != nil {
		return err
	}
	st := f.Const(place)
	var card uint64
	if !st.empty() {
		card = handleValue[*roaring.Bitmap](st).GetCardinality()
	}
	to.Append(chunk.NewUbigintValue(card))
	return nil
}
