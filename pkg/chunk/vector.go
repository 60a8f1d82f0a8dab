package chunk

import (
	"fmt"

	"github.com/govalues/decimal"

	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

// Vector is one column. Fixed width values live in Data, strings and
// blobs in the string buffer. Count is the number of rows that have been
// written, Cap the number the buffers hold.
type Vector struct {
	_PhyFormat PhyFormat
	_Typ       common.LType
	Data       []byte
	Mask       *util.Bitmap
	Buf        *VecBuffer
	_count     int
	_cap       int
}

func NewFlatVector(typ common.LType, cap int) *Vector {
	vec := &Vector{
		_PhyFormat: PF_FLAT,
		_Typ:       typ,
		Mask:       &util.Bitmap{},
	}
	vec.Init(cap)
	return vec
}

// NewEmptyVector returns a flat vector with no rows, used as an
// output column that values are appended to.
func NewEmptyVector(typ common.LType) *Vector {
	return NewFlatVector(typ, 0)
}

func NewConstVector(val *Value) *Vector {
	vec := &Vector{
		_Typ: val.Typ,
		Mask: &util.Bitmap{},
	}
	vec.ReferenceValue(val)
	return vec
}

func (vec *Vector) Init(cap int) {
	vec.Mask.Reset()
	if vec.Typ().GetInternalType().IsVarchar() {
		vec.Buf = NewStringBuffer(cap)
	} else {
		vec.Buf = NewStandardBuffer(vec.Typ(), cap)
		vec.Data = vec.Buf.Data
	}
	vec._cap = cap
	vec._count = 0
}

func (vec *Vector) Typ() common.LType {
	return vec._Typ
}

func (vec *Vector) PhyFormat() PhyFormat {
	return vec._PhyFormat
}

func (vec *Vector) Count() int {
	return vec._count
}

func (vec *Vector) SetCount(cnt int) {
	util.AssertFunc(cnt <= vec._cap)
	vec._count = cnt
}

func (vec *Vector) Cap() int {
	return vec._cap
}

func (vec *Vector) ReferenceValue(val *Value) {
	util.AssertFunc(vec.Typ().Id == val.Typ.Id)
	vec._PhyFormat = PF_CONST
	vec.Buf = NewConstBuffer(val.Typ)
	vec.Data = vec.Buf.Data
	vec._cap = 1
	vec._count = 1
	vec.SetValue(0, val)
}

func (vec *Vector) Reset() {
	vec._PhyFormat = PF_FLAT
	vec.Mask.Reset()
	vec._count = 0
}

func (vec *Vector) reserve(cap int) {
	if cap <= vec._cap {
		return
	}
	ncap := max(cap, vec._cap*2, 16)
	vec.Buf.grow(vec.Typ(), vec._count, ncap)
	vec.Data = vec.Buf.Data
	vec._cap = ncap
}

// Append writes val after the last row.
func (vec *Vector) Append(val *Value) {
	util.AssertFunc(vec.PhyFormat().IsFlat())
	idx := vec._count
	vec.reserve(idx + 1)
	vec.SetValue(idx, val)
	vec._count = idx + 1
}

func (vec *Vector) RowIsValid(idx int) bool {
	if vec.PhyFormat().IsConst() {
		idx = 0
	}
	return vec.Mask.RowIsValid(uint64(idx))
}

func (vec *Vector) GetValue(idx int) *Value {
	if vec.PhyFormat().IsConst() {
		idx = 0
	}
	if !vec.Mask.RowIsValid(uint64(idx)) {
		return NullValue(vec.Typ())
	}

	switch vec.Typ().GetInternalType() {
	case common.INT32:
		data := GetSliceInPhyFormatFlat[int32](vec)
		return &Value{
			Typ: vec.Typ(),
			I64: int64(data[idx]),
		}
	case common.BOOL:
		data := GetSliceInPhyFormatFlat[bool](vec)
		return &Value{
			Typ:  vec.Typ(),
			Bool: data[idx],
		}
	case common.VARCHAR:
		return &Value{
			Typ: vec.Typ(),
			Str: vec.Buf.Strs[idx],
		}
	case common.DECIMAL:
		data := GetSliceInPhyFormatFlat[common.Decimal](vec)
		return &Value{
			Typ: vec.Typ(),
			Str: data[idx].WithScale(vec.Typ().Scale).String(),
		}
	case common.UINT64:
		data := GetSliceInPhyFormatFlat[uint64](vec)
		return &Value{
			Typ: vec.Typ(),
			U64: data[idx],
		}
	case common.INT64:
		data := GetSliceInPhyFormatFlat[int64](vec)
		return &Value{
			Typ: vec.Typ(),
			I64: data[idx],
		}
	case common.DOUBLE:
		data := GetSliceInPhyFormatFlat[float64](vec)
		return &Value{
			Typ: vec.Typ(),
			F64: data[idx],
		}
	case common.INT128:
		data := GetSliceInPhyFormatFlat[common.Hugeint](vec)
		return &Value{
			Typ: vec.Typ(),
			I64: data[idx].Upper,
			U64: data[idx].Lower,
		}
	default:
		panic("usp")
	}
}

func (vec *Vector) SetValue(idx int, val *Value) {
	util.AssertFunc(val.Typ.Equal(vec.Typ()))
	util.AssertFunc(idx < vec._cap)
	vec.Mask.Set(uint64(idx), !val.IsNull)
	if val.IsNull {
		return
	}
	pTyp := vec.Typ().GetInternalType()
	switch pTyp {
	case common.INT32:
		slice := util.ToSlice[int32](vec.Data, pTyp.Size())
		slice[idx] = int32(val.I64)
	case common.INT64:
		slice := util.ToSlice[int64](vec.Data, pTyp.Size())
		slice[idx] = val.I64
	case common.UINT64:
		slice := util.ToSlice[uint64](vec.Data, pTyp.Size())
		slice[idx] = val.U64
	case common.VARCHAR:
		vec.Buf.Strs[idx] = val.Str
	case common.DECIMAL:
		slice := util.ToSlice[common.Decimal](vec.Data, pTyp.Size())
		if len(val.Str) != 0 {
			decVal, err := decimal.ParseExact(val.Str, vec.Typ().Scale)
			if err != nil {
				panic(err)
			}
			slice[idx] = common.Decimal{
				Decimal: decVal,
			}
		} else {
			nDec, err := decimal.NewFromInt64(val.I64, val.I64_1, vec.Typ().Scale)
			if err != nil {
				panic(err)
			}
			slice[idx] = common.Decimal{
				Decimal: nDec,
			}
		}
	case common.DOUBLE:
		slice := util.ToSlice[float64](vec.Data, pTyp.Size())
		slice[idx] = val.F64
	case common.BOOL:
		slice := util.ToSlice[bool](vec.Data, pTyp.Size())
		slice[idx] = val.Bool
	case common.INT128:
		slice := util.ToSlice[common.Hugeint](vec.Data, pTyp.Size())
		slice[idx].Upper = val.I64
		slice[idx].Lower = val.U64
	default:
		panic("usp")
	}
}

// GetString returns the string or blob at idx without building a Value.
func (vec *Vector) GetString(idx int) string {
	util.AssertFunc(vec.Typ().GetInternalType().IsVarchar())
	if vec.PhyFormat().IsConst() {
		idx = 0
	}
	return vec.Buf.Strs[idx]
}

func (vec *Vector) String() string {
	return fmt.Sprintf("%s %s rows %d", vec.Typ(), vec.PhyFormat(), vec.Count())
}

func GetSliceInPhyFormatConst[T any](vec *Vector) []T {
	util.AssertFunc(vec.PhyFormat().IsConst() || vec.PhyFormat().IsFlat())
	pSize := vec.Typ().GetInternalType().Size()
	return util.ToSlice[T](vec.Data, pSize)
}

func GetSliceInPhyFormatFlat[T any](vec *Vector) []T {
	return GetSliceInPhyFormatConst[T](vec)
}

func NewBigintFlatVector(v []int64) *Vector {
	vec := NewFlatVector(common.BigintType(), len(v))
	data := GetSliceInPhyFormatFlat[int64](vec)
	copy(data, v)
	vec.SetCount(len(v))
	return vec
}

func NewUbigintFlatVector(v []uint64) *Vector {
	vec := NewFlatVector(common.UbigintType(), len(v))
	data := GetSliceInPhyFormatFlat[uint64](vec)
	copy(data, v)
	vec.SetCount(len(v))
	return vec
}

func NewDoubleFlatVector(v []float64) *Vector {
	vec := NewFlatVector(common.DoubleType(), len(v))
	data := GetSliceInPhyFormatFlat[float64](vec)
	copy(data, v)
	vec.SetCount(len(v))
	return vec
}

func NewBooleanFlatVector(v []bool) *Vector {
	vec := NewFlatVector(common.BooleanType(), len(v))
	data := GetSliceInPhyFormatFlat[bool](vec)
	copy(data, v)
	vec.SetCount(len(v))
	return vec
}

func NewVarcharFlatVector(v []string) *Vector {
	vec := NewFlatVector(common.VarcharType(), len(v))
	copy(vec.Buf.Strs, v)
	vec.SetCount(len(v))
	return vec
}

// NewFlatVectorFromValues builds a vector of typ holding vals in order.
func NewFlatVectorFromValues(typ common.LType, vals []*Value) *Vector {
	vec := NewFlatVector(typ, len(vals))
	for i, val := range vals {
		vec.SetValue(i, val)
	}
	vec.SetCount(len(vals))
	return vec
}

func HasNull(input *Vector, count int) bool {
	if count == 0 {
		return false
	}
	if input.PhyFormat().IsConst() {
		return !input.RowIsValid(0)
	}
	if input.Mask.AllValid() {
		return false
	}
	for i := 0; i < count; i++ {
		if !input.Mask.RowIsValid(uint64(i)) {
			return true
		}
	}
	return false
}
