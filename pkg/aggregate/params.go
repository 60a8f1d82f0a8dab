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
	"strconv"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
)

func intParam(name string, p *chunk.Value) (int64, error) {
	if p == nil || p.IsNull || !p.Typ.IsIntegral() {
		return 0, InvalidParameters(name, "parameter must be an integer")
	}
	if p.Typ.Id == common.LTID_UBIGINT {
		return int64(p.U64), nil
	}
	return p.I64, nil
}

func floatParam(name string, p *chunk.Value) (float64, error) {
	if p == nil || p.IsNull {
		return 0, InvalidParameters(name, "parameter must be a number")
	}
	switch p.Typ.Id {
	case common.LTID_DOUBLE:
		return p.F64, nil
	case common.LTID_DECIMAL:
		d, err := p.Decimal()
		if err != nil {
			return 0, InvalidParameters(name, "%v", err)
		}
		return decimalFloat(d), nil
	default:
		if p.Typ.IsIntegral() {
			v, err := intParam(name, p)
			return float64(v), err
		}
		return 0, InvalidParameters(name, "parameter must be a number")
	}
}

// paramsText renders parameters the way state types record them.
func paramsText(params []*chunk.Value) []string {
	ret := make([]string, 0, len(params))
	for _, p := range params {
		ret = append(ret, p.String())
	}
	return ret
}

// paramsFromText reads recorded parameters back: integers as bigint,
// other numbers as double and the rest as varchar.
func paramsFromText(texts []string) []*chunk.Value {
	ret := make([]*chunk.Value, 0, len(texts))
	for _, s := range texts {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			ret = append(ret, chunk.NewBigintValue(v))
		} else if v, err := strconv.ParseFloat(s, 64); err == nil {
			ret = append(ret, chunk.NewDoubleValue(v))
		} else {
			ret = append(ret, chunk.NewVarcharValue(s))
		}
	}
	return ret
}
