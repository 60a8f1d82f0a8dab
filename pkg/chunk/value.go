package chunk

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/govalues/decimal"

	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

// Value is one scalar. The field holding the payload depends on Typ:
// integers in I64, ubigint in U64, hugeint in I64 (upper) and U64 (lower),
// double in F64, decimal/varchar/blob in Str. Decimals may also be given
// as I64 (whole) and I64_1 (fraction) with an empty Str.
type Value struct {
	Typ    common.LType
	IsNull bool
	//value
	Bool  bool
	I64   int64
	I64_1 int64
	U64   uint64
	F64   float64
	Str   string
}

func NullValue(typ common.LType) *Value {
	return &Value{Typ: typ, IsNull: true}
}

func NewIntegerValue(v int32) *Value {
	return &Value{Typ: common.IntegerType(), I64: int64(v)}
}

func NewBigintValue(v int64) *Value {
	return &Value{Typ: common.BigintType(), I64: v}
}

func NewUbigintValue(v uint64) *Value {
	return &Value{Typ: common.UbigintType(), U64: v}
}

func NewDoubleValue(v float64) *Value {
	return &Value{Typ: common.DoubleType(), F64: v}
}

func NewBooleanValue(v bool) *Value {
	return &Value{Typ: common.BooleanType(), Bool: v}
}

func NewVarcharValue(v string) *Value {
	return &Value{Typ: common.VarcharType(), Str: v}
}

func NewBlobValue(v []byte) *Value {
	return &Value{Typ: common.BlobType(), Str: string(v)}
}

func NewHugeintValue(h common.Hugeint) *Value {
	return &Value{Typ: common.HugeintType(), I64: h.Upper, U64: h.Lower}
}

func NewDecimalValue(typ common.LType, d common.Decimal) *Value {
	util.AssertFunc(typ.Id == common.LTID_DECIMAL)
	return &Value{Typ: typ, Str: d.WithScale(typ.Scale).String()}
}

func (val *Value) Hugeint() common.Hugeint {
	return common.Hugeint{Upper: val.I64, Lower: val.U64}
}

func (val *Value) Decimal() (common.Decimal, error) {
	if len(val.Str) != 0 {
		d, err := decimal.ParseExact(val.Str, val.Typ.Scale)
		if err != nil {
			return common.Decimal{}, err
		}
		return common.Decimal{Decimal: d}, nil
	}
	d, err := decimal.NewFromInt64(val.I64, val.I64_1, val.Typ.Scale)
	if err != nil {
		return common.Decimal{}, err
	}
	return common.Decimal{Decimal: d}, nil
}

func (val Value) String() string {
	if val.IsNull {
		return "NULL"
	}
	switch val.Typ.Id {
	case common.LTID_INTEGER, common.LTID_BIGINT:
		return fmt.Sprintf("%d", val.I64)
	case common.LTID_BOOLEAN:
		return fmt.Sprintf("%v", val.Bool)
	case common.LTID_VARCHAR:
		return val.Str
	case common.LTID_BLOB, common.LTID_AGGREGATE_STATE:
		return base64.StdEncoding.EncodeToString(util.UnsafeStringToBytes(val.Str))
	case common.LTID_DECIMAL:
		d, err := val.Decimal()
		if err != nil {
			panic(err)
		}
		return d.WithScale(val.Typ.Scale).String()
	case common.LTID_UBIGINT:
		return fmt.Sprintf("%d", val.U64)
	case common.LTID_DOUBLE:
		return strconv.FormatFloat(val.F64, 'g', -1, 64)
	case common.LTID_HUGEINT:
		return val.Hugeint().String()
	default:
		panic("usp")
	}
}

// Equal compares type, nullness and payload.
func (val *Value) Equal(o *Value) bool {
	if !val.Typ.Equal(o.Typ) || val.IsNull != o.IsNull {
		return false
	}
	if val.IsNull {
		return true
	}
	return val.String() == o.String()
}

// ParseValue converts the text form of a value, as found in csv files.
// An empty string or NULL is the null value.
func ParseValue(typ common.LType, s string) (*Value, error) {
	if s == "" || strings.EqualFold(s, "null") {
		return NullValue(typ), nil
	}
	ret := &Value{Typ: typ}
	var err error
	switch typ.Id {
	case common.LTID_INTEGER:
		var v int64
		v, err = strconv.ParseInt(s, 10, 32)
		ret.I64 = v
	case common.LTID_BIGINT:
		ret.I64, err = strconv.ParseInt(s, 10, 64)
	case common.LTID_UBIGINT:
		ret.U64, err = strconv.ParseUint(s, 10, 64)
	case common.LTID_DOUBLE:
		ret.F64, err = strconv.ParseFloat(s, 64)
	case common.LTID_BOOLEAN:
		ret.Bool, err = strconv.ParseBool(s)
	case common.LTID_HUGEINT:
		var h common.Hugeint
		h, err = common.ParseHugeint(s)
		ret.I64, ret.U64 = h.Upper, h.Lower
	case common.LTID_DECIMAL:
		var d decimal.Decimal
		d, err = decimal.ParseExact(s, typ.Scale)
		if err == nil {
			ret.Str = d.String()
		}
	case common.LTID_VARCHAR:
		ret.Str = s
	case common.LTID_BLOB, common.LTID_AGGREGATE_STATE:
		var data []byte
		data, err = base64.StdEncoding.DecodeString(s)
		ret.Str = string(data)
	default:
		return nil, fmt.Errorf("can not parse %s value", typ)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s value %q: %w", typ, s, err)
	}
	return ret, nil
}

func (val *Value) Serialize(serial util.Serialize) error {
	err := val.Typ.Serialize(serial)
	if err != nil {
		return err
	}
	err = util.Write[bool](val.IsNull, serial)
	if err != nil || val.IsNull {
		return err
	}
	switch val.Typ.GetInternalType() {
	case common.BOOL:
		return util.Write[bool](val.Bool, serial)
	case common.INT32, common.INT64:
		return util.Write[int64](val.I64, serial)
	case common.UINT64:
		return util.Write[uint64](val.U64, serial)
	case common.DOUBLE:
		return util.Write[float64](val.F64, serial)
	case common.INT128:
		err = util.Write[int64](val.I64, serial)
		if err != nil {
			return err
		}
		return util.Write[uint64](val.U64, serial)
	case common.DECIMAL:
		d, err := val.Decimal()
		if err != nil {
			return err
		}
		return util.WriteString(d.String(), serial)
	case common.VARCHAR:
		return util.WriteString(val.Str, serial)
	default:
		panic("usp")
	}
}

func DeserializeValue(deserial util.Deserialize) (*Value, error) {
	typ, err := common.DeserializeLType(deserial)
	if err != nil {
		return nil, err
	}
	ret := &Value{Typ: typ}
	err = util.Read[bool](&ret.IsNull, deserial)
	if err != nil || ret.IsNull {
		return ret, err
	}
	switch typ.GetInternalType() {
	case common.BOOL:
		err = util.Read[bool](&ret.Bool, deserial)
	case common.INT32, common.INT64:
		err = util.Read[int64](&ret.I64, deserial)
	case common.UINT64:
		err = util.Read[uint64](&ret.U64, deserial)
	case common.DOUBLE:
		err = util.Read[float64](&ret.F64, deserial)
	case common.INT128:
		err = util.Read[int64](&ret.I64, deserial)
		if err == nil {
			err = util.Read[uint64](&ret.U64, deserial)
		}
	case common.DECIMAL, common.VARCHAR:
		ret.Str, err = util.ReadString(deserial)
	default:
		panic("usp")
	}
	if err != nil {
		return nil, err
	}
	return ret, nil
}
