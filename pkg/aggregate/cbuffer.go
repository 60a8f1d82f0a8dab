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
	"unsafe"

	"github.com/daviszhen/aggstate/pkg/util"
)

const (
	float64Size       = int(unsafe.Sizeof(float64(0)))
	floatBufferMinCap = 8
)

// floatBuffer is a growable array of float64 in C memory.
type floatBuffer struct {
	data unsafe.Pointer
	len  uint32
	cap  uint32
}

func (buf *floatBuffer) Destroy() {
	if buf.data != nil {
		util.CFree(buf.data)
	}
	*buf = floatBuffer{}
}

func (buf *floatBuffer) reserve(n uint32) {
	if n <= buf.cap {
		return
	}
	newCap := max(buf.cap*2, uint32(floatBufferMinCap), n)
	buf.data = util.CGrow(buf.data, int(buf.cap)*float64Size, int(newCap)*float64Size)
	buf.cap = newCap
}

func (buf *floatBuffer) push(v float64) {
	buf.reserve(buf.len + 1)
	util.Store2[float64](v, buf.data, int(buf.len)*float64Size)
	buf.len++
}

func (buf *floatBuffer) append(vals []float64) {
	if len(vals) == 0 {
		return
	}
	buf.reserve(buf.len + uint32(len(vals)))
	util.CMemcpy(
		util.PointerAdd(buf.data, int(buf.len)*float64Size),
		unsafe.Pointer(unsafe.SliceData(vals)),
		len(vals)*float64Size)
	buf.len += uint32(len(vals))
}

// values aliases the C memory. It is invalidated by the next push.
func (buf *floatBuffer) values() []float64 {
	if buf.len == 0 {
		return nil
	}
	return util.PointerToSlice[float64](buf.data, int(buf.len))
}

func (buf *floatBuffer) write(serial util.Serialize) error {
	err := util.Write[uint32](buf.len, serial)
	if err != nil {
		return err
	}
	if buf.len == 0 {
		return nil
	}
	sz := int(buf.len) * float64Size
	return serial.WriteData(util.PointerToSlice[byte](buf.data, sz), sz)
}

func readFloats(deserial util.Deserialize) ([]float64, error) {
	var cnt uint32
	err := util.Read[uint32](&cnt, deserial)
	if err != nil {
		return nil, err
	}
	err = util.CheckLength(deserial, cnt, float64Size)
	if err != nil {
		return nil, err
	}
	vals := make([]float64, 0, min(int(cnt), util.MaxReadChunk/float64Size))
	for i := uint32(0); i < cnt; i++ {
		var v float64
		err = util.Read[float64](&v, deserial)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}
