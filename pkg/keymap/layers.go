package keymap

import "sync/atomic"

// Activation identifies one activation of a layer on the stack.
type Activation uint64

type stackEntry struct {
	layer int
	id    Activation
}

// LayerStack is the ordered set of active layers. The most recent
// activation is on top; layer 0 is always at the bottom.
// It is owned by a single writer (the resolver).
type LayerStack struct {
	entries []stackEntry
	nextID  Activation
}

// Push activates a layer on top and returns the activation to Pop.
func (s *LayerStack) Push(layer int) Activation {
	s.nextID++
	s.entries = append(s.entries, stackEntry{layer: layer, id: s.nextID})
	return s.nextID
}

// Pop removes exactly one activation, wherever it is in the stack.
func (s *LayerStack) Pop(id Activation) bool {
	for n := len(s.entries) - 1; n >= 0; n-- {
		if s.entries[n].id == id {
			s.entries = append(s.entries[:n], s.entries[n+1:]...)
			return true
		}
	}
	return false
}

// Toggle removes the most recent activation of layer if any, otherwise
// pushes it. It reports whether the layer is active afterwards.
func (s *LayerStack) Toggle(layer int) bool {
	if layer == 0 {
		return true
	}
	for n := len(s.entries) - 1; n >= 0; n-- {
		if s.entries[n].layer == layer {
			s.entries = append(s.entries[:n], s.entries[n+1:]...)
			return false
		}
	}
	s.Push(layer)
	return true
}

// Active lists active layers, top first, ending with layer 0.
func (s *LayerStack) Active() []int {
	active := make([]int, 0, len(s.entries)+1)
	for n := len(s.entries) - 1; n >= 0; n-- {
		active = append(active, s.entries[n].layer)
	}
	return append(active, 0)
}

// Top gets the highest priority active layer.
func (s *LayerStack) Top() int {
	if len(s.entries) == 0 {
		return 0
	}
	return s.entries[len(s.entries)-1].layer
}

// Equal compares the active layers of two stacks, in order.
func (s *LayerStack) Equal(o *LayerStack) bool {
	if len(s.entries) != len(o.entries) {
		return false
	}
	for n := range s.entries {
		if s.entries[n] != o.entries[n] {
			return false
		}
	}
	return true
}

// Clone copies the stack.
func (s *LayerStack) Clone() *LayerStack {
	return &LayerStack{entries: append([]stackEntry(nil), s.entries...), nextID: s.nextID}
}

// Snapshot is an immutable view of the layer state of one cycle.
type Snapshot struct {
	Active []int
	Seq    uint64
}

// IsActive tells if the layer is active.
func (s *Snapshot) IsActive(layer int) bool {
	for _, l := range s.Active {
		if l == layer {
			return true
		}
	}
	return false
}

// Top gets the highest priority layer.
func (s *Snapshot) Top() int {
	if len(s.Active) == 0 {
		return 0
	}
	return s.Active[0]
}

// SnapshotPublisher hands the latest Snapshot to readers.
type SnapshotPublisher struct {
	current atomic.Pointer[Snapshot]
}

// Publish replaces the current snapshot.
func (p *SnapshotPublisher) Publish(s *Snapshot) {
	p.current.Store(s)
}

// Snapshot gets the latest snapshot, never nil.
func (p *SnapshotPublisher) Snapshot() *Snapshot {
	if s := p.current.Load(); s != nil {
		return s
	}
	return &Snapshot{Active: []int{0}}
}
