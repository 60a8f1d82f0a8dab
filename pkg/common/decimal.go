package common

import (
	decimal2 "github.com/govalues/decimal"
)

type Decimal struct {
	decimal2.Decimal
}

func ParseDecimal(s string) (Decimal, error) {
	d, err := decimal2.Parse(s)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Decimal: d}, nil
}

// DecimalFromInt64 builds value / 10^scale.
func DecimalFromInt64(value int64, scale int) (Decimal, error) {
	d, err := decimal2.New(value, scale)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Decimal: d}, nil
}

func (dec *Decimal) Equal(o *Decimal) bool {
	return dec.Decimal.Cmp(o.Decimal) == 0
}

func (dec Decimal) String() string {
	return dec.Decimal.String()
}

func (dec *Decimal) Add(lhs *Decimal, rhs *Decimal) {
	res, err := lhs.Decimal.Add(rhs.Decimal)
	if err != nil {
		panic(err)
	}
	lhs.Decimal = res
}

// Quo divides by an integer count.
func (dec Decimal) Quo(cnt uint64) (Decimal, error) {
	d, err := decimal2.New(int64(cnt), 0)
	if err != nil {
		return Decimal{}, err
	}
	res, err := dec.Decimal.Quo(d)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Decimal: res}, nil
}

// WithScale pads or rounds to exactly scale fractional digits.
func (dec Decimal) WithScale(scale int) Decimal {
	if dec.Decimal.Scale() < scale {
		return Decimal{Decimal: dec.Decimal.Pad(scale)}
	}
	return Decimal{Decimal: dec.Decimal.Round(scale)}
}

func (dec *Decimal) Less(lhs, rhs *Decimal) bool {
	return lhs.Decimal.Cmp(rhs.Decimal) < 0
}

func (dec *Decimal) Greater(lhs, rhs *Decimal) bool {
	return lhs.Decimal.Cmp(rhs.Decimal) > 0
}
