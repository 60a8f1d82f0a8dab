package common

import (
	"fmt"
	"math"
	"math/big"
)

// Hugeint is a signed 128 bit integer.
type Hugeint struct {
	Lower uint64
	Upper int64
}

func HugeintFromInt64(v int64) Hugeint {
	ret := Hugeint{Lower: uint64(v)}
	if v < 0 {
		ret.Upper = -1
	}
	return ret
}

func (h Hugeint) String() string {
	return h.Big().String()
}

func (h Hugeint) Big() *big.Int {
	ret := big.NewInt(h.Upper)
	ret.Lsh(ret, 64)
	return ret.Add(ret, new(big.Int).SetUint64(h.Lower))
}

func (h Hugeint) Float64() float64 {
	f, _ := new(big.Float).SetInt(h.Big()).Float64()
	return f
}

func (h *Hugeint) Equal(o *Hugeint) bool {
	return h.Lower == o.Lower && h.Upper == o.Upper
}

func (h *Hugeint) Less(o *Hugeint) bool {
	if h.Upper != o.Upper {
		return h.Upper < o.Upper
	}
	return h.Lower < o.Lower
}

func ParseHugeint(s string) (Hugeint, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Hugeint{}, fmt.Errorf("invalid hugeint %q", s)
	}
	if v.BitLen() > 127 {
		return Hugeint{}, fmt.Errorf("hugeint %q out of range", s)
	}
	lower := new(big.Int).And(v, new(big.Int).SetUint64(math.MaxUint64))
	upper := new(big.Int).Rsh(v, 64)
	return Hugeint{Lower: lower.Uint64(), Upper: upper.Int64()}, nil
}

func NegateHugeint(input *Hugeint, result *Hugeint) {
	if input.Upper == math.MinInt64 && input.Lower == 0 {
		panic("-hugeint overflow")
	}
	result.Lower = math.MaxUint64 - input.Lower + 1
	if input.Lower == 0 {
		result.Upper = -1 - input.Upper + 1
	} else {
		result.Upper = -1 - input.Upper
	}
}

// AddInplace
// return
//
//	false : overflow
func AddInplace(lhs, rhs *Hugeint) bool {
	ladd := lhs.Lower + rhs.Lower
	overflow := int64(0)
	if ladd < lhs.Lower {
		overflow = 1
	}
	if rhs.Upper >= 0 {
		//rhs is positive
		if lhs.Upper > (math.MaxInt64 - rhs.Upper - overflow) {
			return false
		}
		lhs.Upper = lhs.Upper + overflow + rhs.Upper
	} else {
		//rhs is negative
		if lhs.Upper < (math.MinInt64 - rhs.Upper - overflow) {
			return false
		}
		lhs.Upper = lhs.Upper + (overflow + rhs.Upper)
	}
	lhs.Lower = ladd
	if lhs.Upper == math.MinInt64 && lhs.Lower == 0 {
		return false
	}
	return true
}

func (h *Hugeint) Add(lhs, rhs *Hugeint) {
	if !AddInplace(lhs, rhs) {
		panic("hugeint add overflow")
	}
}
