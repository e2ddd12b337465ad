// Package objecttank implements the ObjectTank registry: the process-wide
// index of all monitored objects, their parent/child relations, and typed
// lookups.
//
// Grounded on original_source/amplify/agent/tanks/objects.py.
package objecttank

import (
	"sync"

	"github.com/nginxinc/nginx-telemetry-agent/internal/object"
)

// Registered is the minimal surface the tank needs from a managed object.
type Registered interface {
	object.Entity
	SetID(id int)
	GetID() int
	Stop()
}

// Tank is the singleton registry of running objects. All operations are
// safe for concurrent use, though the Supervisor is expected to call them
// from a single goroutine (spec §5).
type Tank struct {
	mu sync.Mutex

	nextID int

	objects      map[int]Registered
	objectsByType map[object.Type][]int
	relations    map[int][]int // parent id -> child ids

	rootID int
}

// New constructs an empty Tank.
func New() *Tank {
	return &Tank{
		objects:       make(map[int]Registered),
		objectsByType: make(map[object.Type][]int),
		relations:     make(map[int][]int),
	}
}

// RootObject returns the current root object (type system/container), or
// nil if none is registered.
func (t *Tank) RootObject() Registered {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rootID == 0 {
		return nil
	}
	return t.objects[t.rootID]
}

// Register assigns the object its id, indexes it by type, and records the
// parent->child edge if parentID is non-zero. Returns the assigned id.
func (t *Tank) Register(obj Registered, parentID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	obj.SetID(id)

	t.objects[id] = obj
	t.objectsByType[obj.Type()] = append(t.objectsByType[obj.Type()], id)

	if obj.Type() == object.TypeSystem || obj.Type() == object.TypeContainer {
		t.rootID = id
	}

	if _, ok := t.relations[id]; !ok {
		t.relations[id] = nil
	}

	if parentID != 0 {
		t.relations[parentID] = append(t.relations[parentID], id)
	}

	return id
}

// Unregister recursively unregisters children first, then removes the
// object itself from every index and calls Stop() on it.
func (t *Tank) Unregister(id int) {
	t.mu.Lock()
	obj, ok := t.objects[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	children := append([]int(nil), t.relations[id]...)
	t.mu.Unlock()

	for _, childID := range children {
		t.Unregister(childID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obj.Stop()

	delete(t.objects, id)

	kind := obj.Type()
	ids := t.objectsByType[kind]
	for i, v := range ids {
		if v == id {
			t.objectsByType[kind] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	delete(t.relations, id)
	for parentID, childIDs := range t.relations {
		for i, v := range childIDs {
			if v == id {
				t.relations[parentID] = append(childIDs[:i], childIDs[i+1:]...)
				break
			}
		}
	}

	if id == t.rootID {
		t.rootID = 0
	}
}

// Replace swaps the object stored at id for replacement, keeping id,
// type index, and parent/child edges intact. Used when a manager rebuilds
// an object in place (restart/reload) rather than discovering a new one.
// The caller is responsible for stopping the object being replaced.
func (t *Tank) Replace(id int, replacement Registered) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old, ok := t.objects[id]
	if !ok {
		return
	}
	replacement.SetID(id)
	t.objects[id] = replacement

	oldType := old.Type()
	newType := replacement.Type()
	if oldType != newType {
		ids := t.objectsByType[oldType]
		for i, v := range ids {
			if v == id {
				t.objectsByType[oldType] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		t.objectsByType[newType] = append(t.objectsByType[newType], id)
	}

	if newType == object.TypeSystem || newType == object.TypeContainer {
		t.rootID = id
	}
}

// FindOne returns the object with the given id, or nil.
func (t *Tank) FindOne(id int) Registered {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.objects[id]
}

// FindAllOptions constrains a FindAll query.
type FindAllOptions struct {
	ParentID    int
	Children    bool
	Types       []object.Type
	IncludeSelf bool
	SelfID      int
}

// FindAll returns objects matching the given criteria: direct children of
// ParentID, recursive children of SelfID when Children is set, and/or all
// objects of the listed Types. SelfID itself is included in the result only
// when IncludeSelf is true.
func (t *Tank) FindAll(opts FindAllOptions) []Registered {
	t.mu.Lock()
	defer t.mu.Unlock()

	found := make(map[int]bool)

	if opts.SelfID != 0 {
		if _, ok := t.objects[opts.SelfID]; ok {
			found[opts.SelfID] = true
		}
	}

	if opts.ParentID != 0 {
		for _, childID := range t.relations[opts.ParentID] {
			found[childID] = true
		}
	}

	if opts.Children && opts.SelfID != 0 {
		for _, childID := range t.recursiveChildren(opts.SelfID) {
			if _, ok := t.objects[childID]; ok {
				found[childID] = true
			}
		}
	}

	for _, typ := range opts.Types {
		for _, id := range t.objectsByType[typ] {
			if _, ok := t.objects[id]; ok {
				found[id] = true
			}
		}
	}

	if !opts.IncludeSelf && opts.SelfID != 0 {
		delete(found, opts.SelfID)
	}

	out := make([]Registered, 0, len(found))
	for id := range found {
		out = append(out, t.objects[id])
	}
	return out
}

func (t *Tank) recursiveChildren(id int) []int {
	var result []int
	for _, childID := range t.relations[id] {
		result = append(result, childID)
		result = append(result, t.recursiveChildren(childID)...)
	}
	return result
}

// FindParent returns the parent of id, or nil if id is unregistered, has no
// parent, or its recorded parent is itself no longer present.
func (t *Tank) FindParent(id int) Registered {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.objects[id]; !ok {
		return nil
	}

	for parentID, children := range t.relations {
		for _, childID := range children {
			if childID == id {
				return t.objects[parentID]
			}
		}
	}
	return nil
}

// Node is one entry in the tree returned by Tree.
type Node struct {
	Object   Registered
	Children []Node
}

// Tree builds the parent-child hierarchy rooted at baseID (the root object
// if baseID is zero).
func (t *Tank) Tree(baseID int) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	if baseID == 0 {
		baseID = t.rootID
	}
	return t.buildNode(baseID)
}

func (t *Tank) buildNode(id int) *Node {
	obj, ok := t.objects[id]
	if !ok {
		return nil
	}
	node := &Node{Object: obj}
	for _, childID := range t.relations[id] {
		if child := t.buildNode(childID); child != nil {
			node.Children = append(node.Children, *child)
		}
	}
	return node
}

// Size returns the number of currently-registered objects.
func (t *Tank) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.objects)
}
