package common

import (
	"fmt"
	"unsafe"
)

type PhyType int

const (
	NA      PhyType = 0
	BOOL    PhyType = 1
	UINT64  PhyType = 8
	INT32   PhyType = 7
	INT64   PhyType = 9
	DOUBLE  PhyType = 12
	VARCHAR PhyType = 200
	INT128  PhyType = 204
	DECIMAL PhyType = 209

	INVALID PhyType = 255
)

var pTypeToStr = map[PhyType]string{
	NA:      "NA",
	BOOL:    "BOOL",
	UINT64:  "UINT64",
	INT32:   "INT32",
	INT64:   "INT64",
	DOUBLE:  "DOUBLE",
	VARCHAR: "VARCHAR",
	INT128:  "INT128",
	DECIMAL: "DECIMAL",
	INVALID: "INVALID",
}

var (
	BoolSize    int
	Int32Size   int
	Int64Size   int
	Int128Size  int
	DecimalSize int
)

func init() {
	b := false
	BoolSize = int(unsafe.Sizeof(b))
	Int32Size = int(unsafe.Sizeof(int32(0)))
	Int64Size = int(unsafe.Sizeof(int64(0)))
	Int128Size = int(unsafe.Sizeof(Hugeint{}))
	DecimalSize = int(unsafe.Sizeof(Decimal{}))
}

func (pt PhyType) String() string {
	if s, has := pTypeToStr[pt]; has {
		return s
	}
	panic(fmt.Sprintf("usp %d", pt))
}

// Size is the width of one value in the fixed-width column buffer.
// Variable-length types are held outside it and report 0.
func (pt PhyType) Size() int {
	switch pt {
	case BOOL:
		return BoolSize
	case INT32:
		return Int32Size
	case INT64, UINT64, DOUBLE:
		return Int64Size
	case INT128:
		return Int128Size
	case DECIMAL:
		return DecimalSize
	case VARCHAR, NA, INVALID:
		return 0
	default:
		panic("usp")
	}
}

func (pt PhyType) IsVarchar() bool {
	return pt == VARCHAR
}
