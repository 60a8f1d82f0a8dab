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


package main

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/daviszhen/aggstate/pkg/aggregate"
	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/groupby"
)

// aggSpec is one aggregate written as name(params)(columns) or
// name(columns).
type aggSpec struct {
	text   string
	name   string
	params []*chunk.Value
	cols   []int
}

func parseAggSpec(text string) (*aggSpec, error) {
	text = strings.TrimSpace(text)
	ret := &aggSpec{text: text}
	open := strings.IndexByte(text, '(')
	if open < 0 {
		ret.name = text
	} else {
		ret.name = strings.TrimSpace(text[:open])
	}
	if ret.name == "" {
		return nil, errors.Newf("aggregate %q has no name", text)
	}
	var lists [][]string
	rest := ""
	if open >= 0 {
		rest = text[open:]
	}
	for rest != "" {
		if rest[0] != '(' {
			return nil, errors.Newf("aggregate %q: unexpected %q", text, rest)
		}
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return nil, errors.Newf("aggregate %q: unbalanced parentheses", text)
		}
		var items []string
		for _, item := range strings.Split(rest[1:end], ",") {
			item = strings.TrimSpace(item)
			if item != "" {
				items = append(items, item)
			}
		}
		lists = append(lists, items)
		rest = strings.TrimSpace(rest[end+1:])
	}
	var colList []string
	switch len(lists) {
	case 0:
	case 1:
		colList = lists[0]
	case 2:
		for _, item := range lists[0] {
			ret.params = append(ret.params, parseParam(item))
		}
		colList = lists[1]
	default:
		return nil, errors.Newf("aggregate %q: too many argument lists", text)
	}
	for _, item := range colList {
		col, err := strconv.Atoi(item)
		if err != nil || col < 0 {
			return nil, errors.Newf("aggregate %q: invalid column %q", text, item)
		}
		ret.cols = append(ret.cols, col)
	}
	return ret, nil
}

// parseParam reads integers as bigint, other numbers as double and the
// rest as varchar.
func parseParam(s string) *chunk.Value {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return chunk.NewBigintValue(v)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return chunk.NewDoubleValue(v)
	}
	return chunk.NewVarcharValue(strings.Trim(s, `'"`))
}

func parseParams(items []string) []*chunk.Value {
	ret := make([]*chunk.Value, 0, len(items))
	for _, item := range items {
		ret = append(ret, parseParam(strings.TrimSpace(item)))
	}
	return ret
}

func parseTypes(names []string) ([]common.LType, error) {
	ret := make([]common.LType, 0, len(names))
	for _, name := range names {
		typ, err := common.ParseLType(name)
		if err != nil {
			return nil, err
		}
		ret = append(ret, typ)
	}
	return ret, nil
}

// bind resolves the aggregate against the input column types.
func (spec *aggSpec) bind(fac *aggregate.Factory, types []common.LType) (groupby.Aggregate, error) {
	args := make([]common.LType, 0, len(spec.cols))
	for _, col := range spec.cols {
		if col >= len(types) {
			return groupby.Aggregate{}, errors.Newf("aggregate %q: column %d out of %d", spec.text, col, len(types))
		}
		args = append(args, types[col])
	}
	fn, err := fac.Get(spec.name, args, spec.params)
	if err != nil {
		return groupby.Aggregate{}, errors.Wrapf(err, "aggregate %q", spec.text)
	}
	return groupby.Aggregate{Func: fn, Columns: spec.cols}, nil
}
