package fsmengine

import (
	"fmt"

	"apexfsm/internal/fsmdef"
)

// Container resolves a name-only CallableRef (the class-string / "Type@Method"
// service-spec variants of §9) to a concrete Go function. The host
// application registers its guard/action/callback implementations under
// whatever name its FsmRuntimeDefinition references.
type Container interface {
	ResolveGuard(name string) (fsmdef.GuardFunc, error)
	ResolveAction(name string) (fsmdef.ActionFunc, error)
	ResolveCallback(name string) (fsmdef.CallbackFunc, error)
}

// MapContainer is a trivial in-memory Container backed by three maps,
// sufficient for registering a host's named callables at startup without
// requiring a full DI framework — the static-typing simplification the
// design notes call out for context rehydration applies equally here.
type MapContainer struct {
	guards    map[string]fsmdef.GuardFunc
	actions   map[string]fsmdef.ActionFunc
	callbacks map[string]fsmdef.CallbackFunc
}

func NewMapContainer() *MapContainer {
	return &MapContainer{
		guards:    map[string]fsmdef.GuardFunc{},
		actions:   map[string]fsmdef.ActionFunc{},
		callbacks: map[string]fsmdef.CallbackFunc{},
	}
}

func (c *MapContainer) RegisterGuard(name string, fn fsmdef.GuardFunc) { c.guards[name] = fn }
func (c *MapContainer) RegisterAction(name string, fn fsmdef.ActionFunc) { c.actions[name] = fn }
func (c *MapContainer) RegisterCallback(name string, fn fsmdef.CallbackFunc) { c.callbacks[name] = fn }

func (c *MapContainer) ResolveGuard(name string) (fsmdef.GuardFunc, error) {
	fn, ok := c.guards[name]
	if !ok {
		return nil, fmt.Errorf("fsmengine: no guard registered under name %q", name)
	}
	return fn, nil
}

func (c *MapContainer) ResolveAction(name string) (fsmdef.ActionFunc, error) {
	fn, ok := c.actions[name]
	if !ok {
		return nil, fmt.Errorf("fsmengine: no action registered under name %q", name)
	}
	return fn, nil
}

func (c *MapContainer) ResolveCallback(name string) (fsmdef.CallbackFunc, error) {
	fn, ok := c.callbacks[name]
	if !ok {
		return nil, fmt.Errorf("fsmengine: no callback registered under name %q", name)
	}
	return fn, nil
}
