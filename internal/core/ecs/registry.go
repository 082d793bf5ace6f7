package ecs

// Removable is implemented by anything holding per-entity state that must be
// released when the entity is destroyed.
type Removable interface {
	Remove(id EntityID)
}

// RemoveFunc adapts a plain function to Removable.
type RemoveFunc func(id EntityID)

func (f RemoveFunc) Remove(id EntityID) { f(id) }

// Registry fans a destroy out to every registered Removable, in
// registration order.
type Registry struct {
	stores []Removable
}

func NewRegistry() *Registry {
	return &Registry{stores: make([]Removable, 0, 4)}
}

func (r *Registry) Register(store Removable) {
	r.stores = append(r.stores, store)
}

func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.Remove(id)
	}
}
