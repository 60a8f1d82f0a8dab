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
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/huandu/go-clone"
	treemap "github.com/liyue201/gostl/ds/map"
	"go.uber.org/zap"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

// Creator returns an unbound function named name for the argument
// types. It picks the implementation, SetArguments validates.
type Creator func(name string, args []common.LType) (Function, error)

// Factory maps names to creators. Names not registered directly are
// resolved through combinator suffixes, the longest suffix first.
type Factory struct {
	lock         sync.RWMutex
	_creators    *treemap.Map[string, Creator]
	_combinators []Combinator
}

func NewFactory() *Factory {
	return &Factory{
		_creators: treemap.New[string, Creator](strings.Compare),
	}
}

func (fac *Factory) Register(name string, creator Creator) error {
	if name == "" || creator == nil {
		return errors.Newf("register aggregate function %q: empty name or creator", name)
	}
	fac.lock.Lock()
	defer fac.lock.Unlock()
	if _, err := fac._creators.Get(name); err == nil {
		return errors.Newf("aggregate function %s already registered", name)
	}
	fac._creators.Insert(name, creator)
	util.Debug("register aggregate function", zap.String("name", name))
	return nil
}

func (fac *Factory) RegisterCombinator(comb Combinator) error {
	suffix := comb.Suffix()
	if suffix == "" {
		return errors.New("register combinator: empty suffix")
	}
	fac.lock.Lock()
	defer fac.lock.Unlock()
	if util.FindIf(fac._combinators, func(c Combinator) bool { return c.Suffix() == suffix }) >= 0 {
		return errors.Newf("combinator %s already registered", suffix)
	}
	fac._combinators = append(fac._combinators, comb)
	sort.SliceStable(fac._combinators, func(i, j int) bool {
		return len(fac._combinators[i].Suffix()) > len(fac._combinators[j].Suffix())
	})
	util.Debug("register aggregate combinator", zap.String("suffix", suffix))
	return nil
}

// Get returns the function name bound to args and params. The
// parameters are copied, the caller keeps ownership of params.
func (fac *Factory) Get(name string, args []common.LType, params []*chunk.Value) (Function, error) {
	fac.lock.RLock()
	fn, err := fac.create(name, args)
	fac.lock.RUnlock()
	if err != nil {
		return nil, err
	}
	err = fn.SetArguments(args)
	if err != nil {
		return nil, err
	}
	if len(params) != 0 {
		err = fn.SetParameters(clone.Clone(params).([]*chunk.Value))
		if err != nil {
			return nil, err
		}
	}
	return fn, nil
}

func (fac *Factory) create(name string, args []common.LType) (Function, error) {
	if creator, err := fac._creators.Get(name); err == nil {
		return creator(name, args)
	}
	for _, comb := range fac._combinators {
		suffix := comb.Suffix()
		if len(name) <= len(suffix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		nestedName := name[:len(name)-len(suffix)]
		if !fac.resolvable(nestedName) {
			continue
		}
		nestedArgs, err := comb.NestedArguments(nestedName, args)
		if err != nil {
			return nil, err
		}
		nested, err := fac.create(nestedName, nestedArgs)
		if err != nil {
			return nil, err
		}
		return comb.Wrap(name, nested), nil
	}
	return nil, UnknownFunction(name)
}

func (fac *Factory) resolvable(name string) bool {
	if _, err := fac._creators.Get(name); err == nil {
		return true
	}
	for _, comb := range fac._combinators {
		suffix := comb.Suffix()
		if len(name) > len(suffix) && strings.HasSuffix(name, suffix) &&
			fac.resolvable(name[:len(name)-len(suffix)]) {
			return true
		}
	}
	return false
}

// Has reports whether name resolves, directly or with combinators.
func (fac *Factory) Has(name string) bool {
	fac.lock.RLock()
	defer fac.lock.RUnlock()
	return fac.resolvable(name)
}

// Names returns the directly registered names in order.
func (fac *Factory) Names() []string {
	fac.lock.RLock()
	defer fac.lock.RUnlock()
	names := make([]string, 0, fac._creators.Size())
	for iter := fac._creators.Begin(); iter.IsValid(); iter.Next() {
		names = append(names, iter.Key())
	}
	return names
}

func (fac *Factory) Suffixes() []string {
	fac.lock.RLock()
	defer fac.lock.RUnlock()
	ret := make([]string, len(fac._combinators))
	for i, comb := range fac._combinators {
		ret[i] = comb.Suffix()
	}
	return ret
}

var DefaultFactory = NewFactory()

// Get resolves name in DefaultFactory.
func Get(name string, args []common.LType, params []*chunk.Value) (Function, error) {
	return DefaultFactory.Get(name, args, params)
}

// RegisterBuiltins registers the functions and combinators of this
// package into fac.
func RegisterBuiltins(fac *Factory) error {
	builtins := []struct {
		name    string
		creator Creator
	}{
		{"count", newCount},
		{"sum", newSum},
		{"avg", newAvg},
		{"min", reduceCreator(reduceMin)},
		{"max", reduceCreator(reduceMax)},
		{"any", reduceCreator(reduceAny)},
		{"uniq", newUniq},
		{"uniqExact", newUniqExact},
		{"groupBitmap", newGroupBitmap},
		{"quantileExact", newQuantile},
		{"groupArray", newGroupArray},
	}
	for _, b := range builtins {
		err := fac.Register(b.name, b.creator)
		if err != nil {
			return err
		}
	}
	for _, comb := range []Combinator{StateCombinator{}, MergeCombinator{}, IfCombinator{}} {
		err := fac.RegisterCombinator(comb)
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	err := RegisterBuiltins(DefaultFactory)
	if err != nil {
		panic(err)
	}
}
