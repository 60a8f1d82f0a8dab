package chunk

import (
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

type VecBufferType int

const (
	//array of fixed width data
	VBT_STANDARD VecBufferType = iota
	//array of strings
	VBT_STRING
)

type VecBuffer struct {
	BufTyp VecBufferType
	Data   []byte
	Strs   []string
}

func NewBuffer(sz int) *VecBuffer {
	return &VecBuffer{
		BufTyp: VBT_STANDARD,
		Data:   util.GAlloc.Alloc(sz),
	}
}

func NewStandardBuffer(lt common.LType, cap int) *VecBuffer {
	return NewBuffer(lt.GetInternalType().Size() * cap)
}

func NewStringBuffer(cap int) *VecBuffer {
	return &VecBuffer{
		BufTyp: VBT_STRING,
		Strs:   make([]string, cap),
	}
}

func NewConstBuffer(typ common.LType) *VecBuffer {
	if typ.GetInternalType().IsVarchar() {
		return NewStringBuffer(1)
	}
	return NewStandardBuffer(typ, 1)
}

// grow keeps the first cnt rows and extends the buffer to hold cap rows.
func (buf *VecBuffer) grow(typ common.LType, cnt, cap int) {
	switch buf.BufTyp {
	case VBT_STANDARD:
		sz := typ.GetInternalType().Size()
		data := util.GAlloc.Alloc(sz * cap)
		copy(data, buf.Data[:sz*cnt])
		buf.Data = data
	case VBT_STRING:
		strs := make([]string, cap)
		copy(strs, buf.Strs[:cnt])
		buf.Strs = strs
	}
}
