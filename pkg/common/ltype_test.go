package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/aggstate/pkg/util"
)

func Test_ltypeSerialize(t *testing.T) {
	typs := []LType{
		IntegerType(),
		BigintType(),
		DecimalType(10, 2),
		VarcharType(),
		AggregateStateType(&AggStateInfo{
			Name: "sum",
			Args: []LType{DecimalType(10, 2)},
		}),
		AggregateStateType(&AggStateInfo{
			Name:   "quantileExact",
			Params: []string{"0.25"},
			Args:   []LType{DoubleType()},
		}),
	}
	serial := util.NewBufferSerialize()
	for _, typ := range typs {
		require.NoError(t, typ.Serialize(serial))
	}
	deserial := util.NewBufferDeserialize(serial.Bytes())
	for _, typ := range typs {
		got, err := DeserializeLType(deserial)
		require.NoError(t, err)
		assert.True(t, typ.Equal(got))
		assert.Equal(t, typ.PTyp, got.PTyp)
	}
}

func Test_parseLType(t *testing.T) {
	kases := []struct {
		name string
		want LType
	}{
		{"bigint", BigintType()},
		{"INT", IntegerType()},
		{"double", DoubleType()},
		{"decimal(10, 2)", DecimalType(10, 2)},
		{"blob", BlobType()},
		{"boolean", BooleanType()},
		{"aggregate_state(quantileExact(decimal(10,2),bigint))", AggregateStateType(&AggStateInfo{
			Name: "quantileExact",
			Args: []LType{DecimalType(10, 2), BigintType()},
		})},
		{"aggregate_state(quantileExact(0.25)(double))", AggregateStateType(&AggStateInfo{
			Name:   "quantileExact",
			Params: []string{"0.25"},
			Args:   []LType{DoubleType()},
		})},
		{"aggregate_state(count())", AggregateStateType(&AggStateInfo{Name: "count"})},
	}
	for _, kase := range kases {
		got, err := ParseLType(kase.name)
		require.NoError(t, err, kase.name)
		assert.True(t, kase.want.Equal(got), kase.name)
		assert.Equal(t, kase.want.String(), got.String())
	}
	//parameters are part of the state type
	a := AggregateStateType(&AggStateInfo{Name: "uniq", Params: []string{"14"}, Args: []LType{BigintType()}})
	b := AggregateStateType(&AggStateInfo{Name: "uniq", Params: []string{"16"}, Args: []LType{BigintType()}})
	c := AggregateStateType(&AggStateInfo{Name: "uniq", Args: []LType{BigintType()}})
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, "aggregate_state(uniq(14)(bigint))", a.String())
	for _, bad := range []string{"date", "decimal(50,2)", "decimal(x)", "any",
		"aggregate_state(sum)", "aggregate_state(sum(bigint)", "aggregate_state(f(1)(2)(bigint))"} {
		_, err := ParseLType(bad)
		assert.Error(t, err, bad)
	}
}

func Test_hugeint(t *testing.T) {
	a := HugeintFromInt64(math.MaxInt64)
	b := HugeintFromInt64(math.MaxInt64)
	require.True(t, AddInplace(&a, &b))
	assert.Equal(t, "18446744073709551614", a.String())

	c := HugeintFromInt64(-5)
	d := HugeintFromInt64(3)
	require.True(t, AddInplace(&c, &d))
	assert.Equal(t, "-2", c.String())
	assert.Equal(t, -2.0, c.Float64())

	e, err := ParseHugeint("18446744073709551614")
	require.NoError(t, err)
	assert.True(t, e.Equal(&a))

	var neg Hugeint
	NegateHugeint(&e, &neg)
	assert.Equal(t, "-18446744073709551614", neg.String())
	assert.True(t, neg.Less(&e))
}

func Test_decimal(t *testing.T) {
	a, err := ParseDecimal("1.25")
	require.NoError(t, err)
	b, err := DecimalFromInt64(275, 2)
	require.NoError(t, err)
	a.Add(&a, &b)
	assert.Equal(t, "4.00", a.String())
	q, err := a.Quo(3)
	require.NoError(t, err)
	assert.Equal(t, "1.33", q.WithScale(2).String())
	assert.Equal(t, "4.000", a.WithScale(3).String())
}
