package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/daviszhen/aggstate/pkg/util"
)

type LType struct {
	Id    LTypeId
	PTyp  PhyType
	Width int
	Scale int
	// State is set on AGGREGATE_STATE types.
	State *AggStateInfo
}

// AggStateInfo names the function, its parameters and argument types
// whose serialized state an AGGREGATE_STATE column holds. Parameters
// are kept in their text form.
type AggStateInfo struct {
	Name   string
	Params []string
	Args   []LType
}

func (info *AggStateInfo) Equal(o *AggStateInfo) bool {
	if info == nil || o == nil {
		return info == o
	}
	if info.Name != o.Name || len(info.Params) != len(o.Params) || len(info.Args) != len(o.Args) {
		return false
	}
	for i := range info.Params {
		if info.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range info.Args {
		if !info.Args[i].Equal(o.Args[i]) {
			return false
		}
	}
	return true
}

func (info *AggStateInfo) String() string {
	args := make([]string, len(info.Args))
	for i, arg := range info.Args {
		args[i] = arg.String()
	}
	if len(info.Params) == 0 {
		return fmt.Sprintf("%s(%s)", info.Name, strings.Join(args, ","))
	}
	return fmt.Sprintf("%s(%s)(%s)", info.Name, strings.Join(info.Params, ","), strings.Join(args, ","))
}

const (
	DecimalMaxWidth = 38
)

func (lt LType) Serialize(serial util.Serialize) error {
	err := util.Write[int](int(lt.Id), serial)
	if err != nil {
		return err
	}
	err = util.Write[int](lt.Width, serial)
	if err != nil {
		return err
	}
	err = util.Write[int](lt.Scale, serial)
	if err != nil {
		return err
	}
	if lt.Id != LTID_AGGREGATE_STATE {
		return nil
	}
	err = util.Write[bool](lt.State != nil, serial)
	if err != nil || lt.State == nil {
		return err
	}
	err = util.WriteString(lt.State.Name, serial)
	if err != nil {
		return err
	}
	err = util.Write[uint32](uint32(len(lt.State.Params)), serial)
	if err != nil {
		return err
	}
	for _, param := range lt.State.Params {
		err = util.WriteString(param, serial)
		if err != nil {
			return err
		}
	}
	err = util.Write[uint32](uint32(len(lt.State.Args)), serial)
	if err != nil {
		return err
	}
	for _, arg := range lt.State.Args {
		err = arg.Serialize(serial)
		if err != nil {
			return err
		}
	}
	return nil
}

func DeserializeLType(deserial util.Deserialize) (LType, error) {
	id := 0
	width := 0
	scale := 0
	err := util.Read[int](&id, deserial)
	if err != nil {
		return LType{}, err
	}
	err = util.Read[int](&width, deserial)
	if err != nil {
		return LType{}, err
	}
	err = util.Read[int](&scale, deserial)
	if err != nil {
		return LType{}, err
	}
	if !LTypeId(id).Valid() {
		return LType{}, fmt.Errorf("invalid logical type id %d", id)
	}
	ret := LType{
		Id:    LTypeId(id),
		Width: width,
		Scale: scale,
	}
	ret.PTyp = ret.GetInternalType()
	if ret.Id != LTID_AGGREGATE_STATE {
		return ret, nil
	}
	hasInfo := false
	err = util.Read[bool](&hasInfo, deserial)
	if err != nil || !hasInfo {
		return ret, err
	}
	info := &AggStateInfo{}
	info.Name, err = util.ReadString(deserial)
	if err != nil {
		return LType{}, err
	}
	cnt := uint32(0)
	err = util.Read[uint32](&cnt, deserial)
	if err != nil {
		return LType{}, err
	}
	for i := uint32(0); i < cnt; i++ {
		param, err := util.ReadString(deserial)
		if err != nil {
			return LType{}, err
		}
		info.Params = append(info.Params, param)
	}
	err = util.Read[uint32](&cnt, deserial)
	if err != nil {
		return LType{}, err
	}
	for i := uint32(0); i < cnt; i++ {
		arg, err := DeserializeLType(deserial)
		if err != nil {
			return LType{}, err
		}
		info.Args = append(info.Args, arg)
	}
	ret.State = info
	return ret, nil
}

func MakeLType(id LTypeId) LType {
	ret := LType{Id: id}
	ret.PTyp = ret.GetInternalType()
	return ret
}

func DecimalType(width, scale int) LType {
	ret := MakeLType(LTID_DECIMAL)
	ret.Width = width
	ret.Scale = scale
	return ret
}

func HugeintType() LType {
	return MakeLType(LTID_HUGEINT)
}

func BigintType() LType {
	return MakeLType(LTID_BIGINT)
}

func IntegerType() LType {
	return MakeLType(LTID_INTEGER)
}

func UbigintType() LType {
	return MakeLType(LTID_UBIGINT)
}

func DoubleType() LType {
	return MakeLType(LTID_DOUBLE)
}

func VarcharType() LType {
	return MakeLType(LTID_VARCHAR)
}

func BlobType() LType {
	return MakeLType(LTID_BLOB)
}

func BooleanType() LType {
	return MakeLType(LTID_BOOLEAN)
}

// AggregateStateType is the type of a column holding serialized states
// of the function described by info. Its values are stored like blobs.
func AggregateStateType(info *AggStateInfo) LType {
	ret := MakeLType(LTID_AGGREGATE_STATE)
	ret.State = info
	return ret
}

func CopyLTypes(typs ...LType) []LType {
	ret := make([]LType, 0, len(typs))
	ret = append(ret, typs...)
	return ret
}

var Integrals = map[LTypeId]int{
	LTID_INTEGER: 0,
	LTID_BIGINT:  0,
	LTID_UBIGINT: 0,
	LTID_HUGEINT: 0,
}

func (lt LType) IsIntegral() bool {
	if _, has := Integrals[lt.Id]; has {
		return true
	}
	return false
}

// IsBlobLike reports types whose values are opaque byte strings.
func (lt LType) IsBlobLike() bool {
	return lt.Id == LTID_BLOB || lt.Id == LTID_AGGREGATE_STATE
}

func (lt LType) Equal(o LType) bool {
	if lt.Id != o.Id {
		return false
	}
	switch lt.Id {
	case LTID_DECIMAL:
		return lt.Width == o.Width && lt.Scale == o.Scale
	case LTID_AGGREGATE_STATE:
		return lt.State.Equal(o.State)
	default:
	}
	return true
}

func (lt LType) GetInternalType() PhyType {
	switch lt.Id {
	case LTID_BOOLEAN:
		return BOOL
	case LTID_NULL, LTID_INTEGER:
		return INT32
	case LTID_BIGINT:
		return INT64
	case LTID_UBIGINT:
		return UINT64
	case LTID_HUGEINT:
		return INT128
	case LTID_DOUBLE:
		return DOUBLE
	case LTID_DECIMAL:
		return DECIMAL
	case LTID_VARCHAR, LTID_BLOB, LTID_AGGREGATE_STATE:
		return VARCHAR
	case LTID_ANY, LTID_INVALID:
		return INVALID
	default:
		panic(fmt.Sprintf("usp logical type %d", lt.Id))
	}
}

func (lt LType) String() string {
	if lt.Id == LTID_DECIMAL {
		return fmt.Sprintf("decimal(%d,%d)", lt.Width, lt.Scale)
	}
	if lt.Id == LTID_AGGREGATE_STATE && lt.State != nil {
		return fmt.Sprintf("aggregate_state(%s)", lt.State)
	}
	return lt.Id.String()
}

// ParseLType parses the names printed by String, e.g. "bigint",
// "decimal(10,2)" or "aggregate_state(sum(bigint))".
func ParseLType(name string) (LType, error) {
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "aggregate_state(") && strings.HasSuffix(lower, ")") {
		inner := name[len("aggregate_state(") : len(name)-1]
		open := strings.IndexByte(inner, '(')
		if open <= 0 {
			return LType{}, fmt.Errorf("invalid aggregate state type %q", name)
		}
		info := &AggStateInfo{Name: strings.TrimSpace(inner[:open])}
		var lists []string
		rest := inner[open:]
		for rest != "" {
			end := groupEnd(rest)
			if end < 0 {
				return LType{}, fmt.Errorf("invalid aggregate state type %q", name)
			}
			lists = append(lists, rest[1:end])
			rest = strings.TrimSpace(rest[end+1:])
		}
		if len(lists) == 0 || len(lists) > 2 {
			return LType{}, fmt.Errorf("invalid aggregate state type %q", name)
		}
		if len(lists) == 2 {
			for _, part := range splitTopLevel(lists[0]) {
				info.Params = append(info.Params, strings.TrimSpace(part))
			}
		}
		for _, part := range splitTopLevel(lists[len(lists)-1]) {
			arg, err := ParseLType(part)
			if err != nil {
				return LType{}, err
			}
			info.Args = append(info.Args, arg)
		}
		return AggregateStateType(info), nil
	}
	name = lower
	if strings.HasPrefix(name, "decimal") {
		rest := strings.TrimPrefix(name, "decimal")
		if rest == "" {
			return DecimalType(18, 3), nil
		}
		if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
			return LType{}, fmt.Errorf("invalid decimal type %q", name)
		}
		parts := strings.Split(rest[1:len(rest)-1], ",")
		if len(parts) != 2 {
			return LType{}, fmt.Errorf("invalid decimal type %q", name)
		}
		width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return LType{}, fmt.Errorf("invalid decimal width %q", name)
		}
		scale, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return LType{}, fmt.Errorf("invalid decimal scale %q", name)
		}
		if width <= 0 || width > DecimalMaxWidth || scale < 0 || scale > width {
			return LType{}, fmt.Errorf("decimal(%d,%d) out of range", width, scale)
		}
		return DecimalType(width, scale), nil
	}
	switch name {
	case "int", "int4":
		return IntegerType(), nil
	case "int8":
		return BigintType(), nil
	case "float8":
		return DoubleType(), nil
	case "bool":
		return BooleanType(), nil
	case "text", "string":
		return VarcharType(), nil
	}
	for id, s := range lTypeNames {
		if s == name && id != LTID_ANY && id != LTID_NULL && id != LTID_INVALID && id != LTID_DECIMAL {
			return MakeLType(id), nil
		}
	}
	return LType{}, fmt.Errorf("unknown type %q", name)
}

// groupEnd returns the index of the parenthesis closing s[0], or -1.
func groupEnd(s string) int {
	if s == "" || s[0] != '(' {
		return -1
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s at commas that are not inside parentheses.
func splitTopLevel(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var ret []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				ret = append(ret, s[start:i])
				start = i + 1
			}
		}
	}
	return append(ret, s[start:])
}
