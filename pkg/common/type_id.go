package common

import "fmt"

// LTypeId keeps the numbering of the full engine so serialized type ids
// stay stable. Only the ids below are supported here.
type LTypeId int

const (
	LTID_INVALID         LTypeId = 0
	LTID_NULL            LTypeId = 1
	LTID_ANY             LTypeId = 3
	LTID_BOOLEAN         LTypeId = 10
	LTID_INTEGER         LTypeId = 13
	LTID_BIGINT          LTypeId = 14
	LTID_DECIMAL         LTypeId = 21
	LTID_DOUBLE          LTypeId = 23
	LTID_VARCHAR         LTypeId = 25
	LTID_BLOB            LTypeId = 26
	LTID_UBIGINT         LTypeId = 31
	LTID_HUGEINT         LTypeId = 50
	LTID_AGGREGATE_STATE LTypeId = 105
)

// lTypeNames are the names printed and parsed for each id.
var lTypeNames = map[LTypeId]string{
	LTID_INVALID:         "invalid",
	LTID_NULL:            "null",
	LTID_ANY:             "any",
	LTID_BOOLEAN:         "boolean",
	LTID_INTEGER:         "integer",
	LTID_BIGINT:          "bigint",
	LTID_DECIMAL:         "decimal",
	LTID_DOUBLE:          "double",
	LTID_VARCHAR:         "varchar",
	LTID_BLOB:            "blob",
	LTID_UBIGINT:         "ubigint",
	LTID_HUGEINT:         "hugeint",
	LTID_AGGREGATE_STATE: "aggregate_state",
}

func (id LTypeId) Valid() bool {
	_, has := lTypeNames[id]
	return has
}

func (id LTypeId) String() string {
	if s, has := lTypeNames[id]; has {
		return s
	}
	panic(fmt.Sprintf("usp %d", id))
}
