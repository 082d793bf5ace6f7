package ecs

// EntityID encodes a 32-bit slot index in the lower bits and a 32-bit
// generation in the upper bits. Generations start at 1, so the zero ID never
// names a live entity and is used as "no owner".
type EntityID uint64

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

type slot struct {
	generation uint32
	alive      bool
}

// EntityPool hands out generational IDs and recycles destroyed slots.
type EntityPool struct {
	slots []slot
	free  []uint32
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		slots: make([]slot, 0, 64),
		free:  make([]uint32, 0, 16),
	}
}

func (p *EntityPool) Create() EntityID {
	var idx uint32
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		idx = uint32(len(p.slots))
		p.slots = append(p.slots, slot{})
	}
	s := &p.slots[idx]
	s.generation++
	s.alive = true
	return NewEntityID(idx, s.generation)
}

func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Index()
	if id.IsZero() || int(idx) >= len(p.slots) {
		return false
	}
	s := p.slots[idx]
	return s.alive && s.generation == id.Generation()
}

// Destroy frees the slot. Stale or unknown IDs are ignored and report false.
func (p *EntityPool) Destroy(id EntityID) bool {
	if !p.Alive(id) {
		return false
	}
	p.slots[id.Index()].alive = false
	p.free = append(p.free, id.Index())
	return true
}

// Len returns the number of live entities.
func (p *EntityPool) Len() int {
	return len(p.slots) - len(p.free)
}
