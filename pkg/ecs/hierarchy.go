package ecs

import "slices"

// Parent points at the entity whose transform this entity is relative to.
type Parent struct {
	ID EntityID
}

// Children lists direct descendants in insertion order.
type Children struct {
	IDs []EntityID
}

func (w *World) pushChildren(parent EntityID, children []EntityID) error {
	if !w.EntityExists(parent) {
		return ErrEntityNotFound{parent}
	}

	for _, child := range children {
		if !w.EntityExists(child) {
			return ErrEntityNotFound{child}
		}
		if child == parent || slices.Contains(w.Ancestors(parent), child) {
			return ErrHierarchyCycle
		}
	}

	for _, child := range children {
		w.detach(child)

		store, _ := getStoreFromWorld[Children](w)
		list, ok := store.Lookup(parent)
		if !ok {
			store.Set(parent, Children{})
			list, _ = store.Lookup(parent)
		}
		list.IDs = append(list.IDs, child)

		parents, _ := getStoreFromWorld[Parent](w)
		parents.Set(child, Parent{ID: parent})
	}

	return nil
}

// detach removes id from its parent's children list and drops its Parent.
func (w *World) detach(id EntityID) {
	p, ok := lookup[Parent](w, id)
	if !ok {
		return
	}

	if siblings, ok := lookup[Children](w, p.ID); ok {
		siblings.IDs = slices.DeleteFunc(siblings.IDs, func(c EntityID) bool { return c == id })
		if len(siblings.IDs) == 0 {
			removeFrom[Children](w, p.ID)
		}
	}

	removeFrom[Parent](w, id)
}

// ParentOf reports the parent of id, if any.
func (w *World) ParentOf(id EntityID) (EntityID, bool) {
	p, ok := lookup[Parent](w, id)
	if !ok {
		return NoEntity, false
	}
	return p.ID, true
}

// ChildrenOf returns a copy of the direct children of id.
func (w *World) ChildrenOf(id EntityID) []EntityID {
	c, ok := lookup[Children](w, id)
	if !ok {
		return nil
	}
	return slices.Clone(c.IDs)
}

// Ancestors walks from the parent of id up to the root.
func (w *World) Ancestors(id EntityID) []EntityID {
	var out []EntityID
	for {
		p, ok := lookup[Parent](w, id)
		if !ok {
			return out
		}
		out = append(out, p.ID)
		id = p.ID
	}
}
