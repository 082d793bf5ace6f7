package ecs

// World owns the owner entities sequences can be bound to. Destruction is
// deferred: MarkForDestruction queues, and CleanupSystem calls
// FlushDestroyQueue at tick end, which notifies every registered Removable
// before the ID is recycled.
type World struct {
	pool         *EntityPool
	registry     *Registry
	labels       map[EntityID]string
	destroyQueue []EntityID
	queued       map[EntityID]struct{}
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		registry:     NewRegistry(),
		labels:       make(map[EntityID]string, 64),
		destroyQueue: make([]EntityID, 0, 16),
		queued:       make(map[EntityID]struct{}, 16),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

// CreateEntity allocates an entity with a diagnostic label.
func (w *World) CreateEntity(label string) EntityID {
	id := w.pool.Create()
	w.labels[id] = label
	return id
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// Label returns the entity's label, or "" for dead or unknown IDs.
func (w *World) Label(id EntityID) string {
	return w.labels[id]
}

// MarkForDestruction queues an entity for end-of-tick cleanup. Queuing the
// same entity twice is a no-op.
func (w *World) MarkForDestruction(id EntityID) {
	if !w.pool.Alive(id) {
		return
	}
	if _, ok := w.queued[id]; ok {
		return
	}
	w.queued[id] = struct{}{}
	w.destroyQueue = append(w.destroyQueue, id)
}

// FlushDestroyQueue destroys all queued entities and returns how many were
// destroyed.
func (w *World) FlushDestroyQueue() int {
	n := 0
	for _, id := range w.destroyQueue {
		w.registry.RemoveAll(id)
		if w.pool.Destroy(id) {
			n++
		}
		delete(w.labels, id)
		delete(w.queued, id)
	}
	w.destroyQueue = w.destroyQueue[:0]
	return n
}
