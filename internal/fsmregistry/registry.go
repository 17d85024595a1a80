// Package fsmregistry holds the process-scoped mapping from
// (modelClass, columnName) to its FsmRuntimeDefinition. Grounded on the
// teacher's pattern of a startup-populated, read-mostly global (compare
// internal/logging's sync.Once-built logger): writes only happen during
// initialization, after which Get takes only a shared read lock, so
// concurrent readers never block each other.
package fsmregistry

import (
	"reflect"
	"sync"

	"apexfsm/internal/fsmdef"
	"apexfsm/internal/fsmerrors"
)

// Registry maps (modelClass, columnName) to an immutable FsmRuntimeDefinition.
// The zero value is not usable; construct with New.
type Registry struct {
	mu   sync.RWMutex
	defs map[fsmdef.Key]fsmdef.FsmRuntimeDefinition
	done bool // not set or read by any method; Register is accepted at any time
}

func New() *Registry {
	return &Registry{defs: make(map[fsmdef.Key]fsmdef.FsmRuntimeDefinition)}
}

// Register installs a definition. Re-registering the identical definition
// under the same key is a no-op; re-registering a different definition under
// an already-used key fails.
func (r *Registry) Register(def fsmdef.FsmRuntimeDefinition) error {
	if def.ModelClass == "" || def.ColumnName == "" {
		return fsmerrors.New(fsmerrors.KindInvalidArgument, def.ModelClass, def.ColumnName, "modelClass and columnName are required")
	}
	if err := def.Validate(); err != nil {
		return fsmerrors.New(fsmerrors.KindInvalidArgument, def.ModelClass, def.ColumnName, err.Error())
	}

	key := fsmdef.Key{ModelClass: def.ModelClass, ColumnName: def.ColumnName}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.defs[key]
	if ok {
		if reflect.DeepEqual(existing, def) {
			return nil
		}
		return fsmerrors.New(fsmerrors.KindInvalidArgument, def.ModelClass, def.ColumnName,
			"conflicting re-registration for "+key.String())
	}
	r.defs[key] = def
	return nil
}

// Get returns the registered definition or ErrNotRegistered.
func (r *Registry) Get(modelClass, columnName string) (fsmdef.FsmRuntimeDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[fsmdef.Key{ModelClass: modelClass, ColumnName: columnName}]
	if !ok {
		return fsmdef.FsmRuntimeDefinition{}, fsmerrors.New(fsmerrors.KindNotRegistered, modelClass, columnName, "no FSM runtime definition registered")
	}
	return def, nil
}

// Keys returns every registered (modelClass, columnName) pair, in no
// particular order, for diagnostics.
func (r *Registry) Keys() []fsmdef.Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]fsmdef.Key, 0, len(r.defs))
	for k := range r.defs {
		keys = append(keys, k)
	}
	return keys
}
