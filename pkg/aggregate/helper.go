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
	"reflect"
	"runtime/cgo"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/daviszhen/aggstate/pkg/util"
)

// StateIniter is implemented by *T of state layouts that need more
// than the zero value after Create.
type StateIniter interface {
	Init()
}

// StateDestroyer is implemented by *T of state layouts owning
// resources outside the state memory.
type StateDestroyer interface {
	Destroy()
}

var (
	destroyerType = reflect.TypeFor[StateDestroyer]()
	handleType    = reflect.TypeFor[cgo.Handle]()
)

// StateHelper implements the mechanical part of the state lifecycle for
// the layout T.
//
// The memory of a state is not scanned by the garbage collector, so T
// must not hold Go pointers, slices, maps, strings, interfaces, channels
// or funcs. Resources are instead held as C memory (unsafe.Pointer from
// util.CMalloc) or as a cgo.Handle, both requiring a Destroy hook.
type StateHelper[T any] struct {
	_size    int
	_align   int
	_trivial bool
}

// NewStateHelper validates T and panics if it can not live in raw memory.
func NewStateHelper[T any]() StateHelper[T] {
	var zero T
	typ := reflect.TypeFor[T]()
	hasDestroy := reflect.PointerTo(typ).Implements(destroyerType)
	owns, err := checkLayout(typ)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "state layout %v", typ))
	}
	if owns && !hasDestroy {
		panic(errors.AssertionFailedf("state layout %v owns resources but has no Destroy", typ))
	}
	return StateHelper[T]{
		_size:    int(unsafe.Sizeof(zero)),
		_align:   int(unsafe.Alignof(zero)),
		_trivial: !hasDestroy && !owns,
	}
}

// checkLayout reports whether typ holds resources and fails on fields
// the garbage collector would need to see.
func checkLayout(typ reflect.Type) (bool, error) {
	if typ == handleType {
		return true, nil
	}
	switch typ.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return false, nil
	case reflect.UnsafePointer:
		return true, nil
	case reflect.Array:
		if typ.Len() == 0 {
			return false, nil
		}
		return checkLayout(typ.Elem())
	case reflect.Struct:
		owns := false
		for i := 0; i < typ.NumField(); i++ {
			field := typ.Field(i)
			o, err := checkLayout(field.Type)
			if err != nil {
				return false, errors.Wrapf(err, "field %s", field.Name)
			}
			owns = owns || o
		}
		return owns, nil
	default:
		return false, errors.Newf("%v is managed by the garbage collector", typ.Kind())
	}
}

// Create writes the zero value of T at place and runs its Init hook.
func (h *StateHelper[T]) Create(place AggregateDataPtr) {
	data := h.Data(place)
	var zero T
	*data = zero
	if initer, ok := any(data).(StateIniter); ok {
		initer.Init()
	}
}

// Destroy runs the Destroy hook of T and zeroes the state.
func (h *StateHelper[T]) Destroy(place AggregateDataPtr) {
	data := h.Data(place)
	if destroyer, ok := any(data).(StateDestroyer); ok {
		destroyer.Destroy()
	}
	var zero T
	*data = zero
}

func (h *StateHelper[T]) HasTrivialDestructor() bool {
	return h._trivial
}

func (h *StateHelper[T]) SizeOfData() int {
	return h._size
}

func (h *StateHelper[T]) AlignOfData() int {
	return h._align
}

func (h *StateHelper[T]) Data(place AggregateDataPtr) *T {
	return (*T)(place)
}

var debugChecks atomic.Bool

// SetDebugChecks turns lifecycle tracking of states on or off. It must
// be set before states are created.
func SetDebugChecks(on bool) {
	debugChecks.Store(on)
}

func DebugChecks() bool {
	return debugChecks.Load()
}

type placeStatus uint8

const (
	placeNone placeStatus = iota
	placeCreated
	placeUpdated
)

// lifecycleTracker records the status of every live state of one
// descriptor while debug checks are on.
type lifecycleTracker struct {
	_mu     sync.Mutex
	_places map[uintptr]placeStatus
}

// create returns the previous status of place.
func (t *lifecycleTracker) create(place AggregateDataPtr) placeStatus {
	t._mu.Lock()
	defer t._mu.Unlock()
	if t._places == nil {
		t._places = make(map[uintptr]placeStatus)
	}
	key := uintptr(place)
	old := t._places[key]
	t._places[key] = placeCreated
	return old
}

// destroy returns false if place was not live.
func (t *lifecycleTracker) destroy(place AggregateDataPtr) bool {
	t._mu.Lock()
	defer t._mu.Unlock()
	key := uintptr(place)
	if t._places[key] == placeNone {
		return false
	}
	delete(t._places, key)
	return true
}

// update returns false if place was not live.
func (t *lifecycleTracker) update(place AggregateDataPtr) bool {
	t._mu.Lock()
	defer t._mu.Unlock()
	key := uintptr(place)
	if t._places[key] == placeNone {
		return false
	}
	t._places[key] = placeUpdated
	return true
}

func (t *lifecycleTracker) status(place AggregateDataPtr) placeStatus {
	t._mu.Lock()
	defer t._mu.Unlock()
	return t._places[uintptr(place)]
}

func (t *lifecycleTracker) live() int {
	t._mu.Lock()
	defer t._mu.Unlock()
	return len(t._places)
}

// FunctionHelper is the base of concrete functions: binding from
// BaseFunction, lifecycle from StateHelper, and the precondition checks
// tying them together. Concrete functions access their states through
// Mutable and Const.
type FunctionHelper[T any] struct {
	BaseFunction
	StateHelper[T]
	_tracker lifecycleTracker
}

func (h *FunctionHelper[T]) InitHelper(name string) {
	h.InitBase(name)
	h.StateHelper = NewStateHelper[T]()
}

func (h *FunctionHelper[T]) Create(place AggregateDataPtr) {
	h.mustBound("Create")
	util.AssertFunc(place != nil)
	h.seal()
	if debugChecks.Load() {
		old := h._tracker.create(place)
		if old != placeNone && !h.HasTrivialDestructor() {
			assertPrecondition(h.Name(), "Create over a live state at %p", place)
		}
	}
	h.StateHelper.Create(place)
}

func (h *FunctionHelper[T]) Destroy(place AggregateDataPtr) {
	h.mustBound("Destroy")
	if debugChecks.Load() && !h._tracker.destroy(place) {
		assertPrecondition(h.Name(), "Destroy of a state that is not live at %p", place)
	}
	h.StateHelper.Destroy(place)
}

// Mutable returns the state at place for an update and marks it updated.
func (h *FunctionHelper[T]) Mutable(place AggregateDataPtr) *T {
	h.mustBound("update")
	if debugChecks.Load() && !h._tracker.update(place) {
		assertPrecondition(h.Name(), "update of a state that was not created at %p", place)
	}
	return h.Data(place)
}

// Const returns the state at place for reading.
func (h *FunctionHelper[T]) Const(place AggregateDataPtr) *T {
	h.mustBound("read")
	if debugChecks.Load() && h._tracker.status(place) == placeNone {
		assertPrecondition(h.Name(), "read of a state that was not created at %p", place)
	}
	return h.Data(place)
}

// MarkUpdated records an Add that left the state unchanged.
func (h *FunctionHelper[T]) MarkUpdated(place AggregateDataPtr) {
	h.Mutable(place)
}

// CheckSerialize fails for a state that can not be serialized.
func (h *FunctionHelper[T]) CheckSerialize(place AggregateDataPtr) error {
	err := h.checkBound("Serialize")
	if err != nil {
		return err
	}
	if debugChecks.Load() {
		switch h._tracker.status(place) {
		case placeNone:
			return PreconditionViolation(h.Name(), "Serialize of a state that was not created")
		case placeCreated:
			return PreconditionViolation(h.Name(), "Serialize of a state that was never updated")
		}
	}
	return nil
}

// CheckRead fails for a state that can not be read.
func (h *FunctionHelper[T]) CheckRead(place AggregateDataPtr, op string) error {
	err := h.checkBound(op)
	if err != nil {
		return err
	}
	if debugChecks.Load() && h._tracker.status(place) == placeNone {
		return PreconditionViolation(h.Name(), "%s of a state that was not created", op)
	}
	return nil
}

// LiveStates is the number of tracked states. It is 0 without debug checks.
func (h *FunctionHelper[T]) LiveStates() int {
	return h._tracker.live()
}

type updateMarker interface {
	MarkUpdated(place AggregateDataPtr)
}

func markUpdated(fn Function, place AggregateDataPtr) {
	if marker, ok := fn.(updateMarker); ok {
		marker.MarkUpdated(place)
	}
}
