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
	"strconv"
	"strings"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

type countState struct {
	count uint64
}

// countFunction counts rows, or non-NULL values of its argument.
type countFunction struct {
	FunctionHelper[countState]
}

func newCount(name string, args []common.LType) (Function, error) {
	f := &countFunction{}
	f.InitHelper(name)
	return f, nil
}

func (f *countFunction) SetArguments(typs []common.LType) error {
	if len(typs) > 1 {
		return UnsupportedArguments(f.Name(), "takes at most one argument, got %d", len(typs))
	}
	for _, typ := range typs {
		if typ.PTyp == common.INVALID {
			return UnsupportedArguments(f.Name(), "%s", typ)
		}
	}
	return f.BindArguments(typs, common.UbigintType())
}

func (f *countFunction) Add(place AggregateDataPtr, columns []*chunk.Vector, row int) {
	st := f.Mutable(place)
	if len(columns) == 1 && !columns[0].RowIsValid(row) {
		return
	}
	st.count++
}

func (f *countFunction) Merge(place, rhs AggregateDataPtr) {
	f.Mutable(place).count += f.Const(rhs).count
}

func (f *countFunction) Serialize(place AggregateDataPtr, serial util.Serialize) error {
	err := f.CheckSerialize(place)
	if err != nil {
		return err
	}
	return util.Write[uint64](f.Const(place).count, serial)
}

func (f *countFunction) DeserializeMerge(place AggregateDataPtr, deserial util.Deserialize) error {
	err := f.CheckRead(place, "DeserializeMerge")
	if err != nil {
		return err
	}
	var cnt uint64
	err = util.Read[uint64](&cnt, deserial)
	if err != nil {
		return err
	}
	f.Mutable(place).count += cnt
	return nil
}

func (f *countFunction) SerializeText(place AggregateDataPtr, w io.Writer) error {
	err := f.CheckSerialize(place)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, strconv.FormatUint(f.Const(place).count, 10))
	return err
}

func (f *countFunction) DeserializeMergeText(place AggregateDataPtr, r io.Reader) error {
	err := f.CheckRead(place, "DeserializeMergeText")
	if err != nil {
		return err
	}
	text, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	cnt, err := strconv.ParseUint(strings.TrimSpace(string(text)), 10, 64)
	if err != nil {
		return err
	}
	f.Mutable(place).count += cnt
	return nil
}

func (f *countFunction) InsertResultInto(place AggregateDataPtr, to *chunk.Vector) error {
	err := f.CheckRead(place, "InsertResultInto")
	if err != nil {
		return err
	}
	to.Append(chunk.NewUbigintValue(f.Const(place).count))
	return nil
}
