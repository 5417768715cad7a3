package shm

import (
	"fmt"
	"sync"

	"github.com/antocuni/cffi-shm/internal/heap"
)

// typeKind distinguishes what a registered C type alias names.
type typeKind int

const (
	kindPrimitive typeKind = iota
	kindStruct
	kindList
	kindDeque
	kindDict
	kindSet
)

// containerEntry is what a List/Deque/Dict/Set registers itself under
// an opaque C alias as: enough to reconstruct a handle from a heap
// offset (wrap) and to recover that offset back from a handle (unwrap),
// so a struct field can refer to the container type before any concrete
// instance of it exists. See [RegisterList], [RegisterDeque],
// [RegisterDict], [RegisterSet], and [ContainerPtrField].
type containerEntry struct {
	wrap   func(h *heap.Heap, ptr uint64) any
	unwrap func(host any) (ptr uint64, err error)
}

// typeEntry is what [RegisterType] records for one C type name. Only
// the fields relevant to entry.kind are populated; the rest are zero.
type typeEntry struct {
	kind typeKind

	// hostType documents the Go type host values of this C type take,
	// for diagnostics only — Go has no decorator/class machinery to
	// attach behavior to, so registration here is purely bookkeeping
	// plus (for structs) the StructDef, or (for containers) the
	// containerEntry, needed to build/reconstruct instances.
	hostType string

	structDef *StructDef
	container *containerEntry
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*typeEntry{}
)

// RegisterType records that cName is a known C type whose host
// representation is described by hostType (a label such as "string",
// "int64", or another registered C type name for nested containers).
// Struct types defined via [DefineStruct] are recorded in the same
// registry without going through this function; callers register
// primitive aliases explicitly before referencing them from a field list.
func RegisterType(cName, hostType string) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[cName] = &typeEntry{kind: kindPrimitive, hostType: hostType}
}

// TypeOf reports whether cName has been registered, and the host-type
// label it was registered with.
func TypeOf(cName string) (hostType string, ok bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	e, ok := registry[cName]
	if !ok {
		return "", false
	}

	return e.hostType, true
}

func registerStruct(cName string, sd *StructDef) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[cName] = &typeEntry{kind: kindStruct, hostType: cName, structDef: sd}
}

// isRegistered reports whether cName has already been registered by
// any means (primitive alias, struct, or container type), so sidecar
// schema loading can skip names an explicit call already claimed.
func isRegistered(cName string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()

	_, ok := registry[cName]

	return ok
}

func lookupStruct(cName string) (*StructDef, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	e, ok := registry[cName]
	if !ok || e.kind != kindStruct {
		return nil, fmt.Errorf("%w: no struct type registered as %q", ErrUnknownType, cName)
	}

	return e.structDef, nil
}

// registerContainer records cAlias as an opaque C alias for a List,
// Deque, Dict, or Set, identified by kind.
func registerContainer(cAlias string, kind typeKind, entry containerEntry) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[cAlias] = &typeEntry{kind: kind, hostType: cAlias, container: &entry}
}

// lookupContainer resolves a container registered via [RegisterList],
// [RegisterDeque], [RegisterDict], or [RegisterSet].
func lookupContainer(cAlias string) (containerEntry, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	e, ok := registry[cAlias]
	if !ok || e.container == nil {
		return containerEntry{}, fmt.Errorf("%w: no container type registered as %q", ErrUnknownType, cAlias)
	}

	return *e.container, nil
}
