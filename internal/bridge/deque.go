package bridge

// boundedDeque is a FIFO buffer capped at maxLen entries, dropping the
// oldest entry once full. Mirrors Python's collections.deque(maxlen=360)
// used for each of the Bridge's four payload buckets.
type boundedDeque struct {
	maxLen int
	items  []interface{}
}

func newBoundedDeque(maxLen int) *boundedDeque {
	return &boundedDeque{maxLen: maxLen}
}

// Append adds v to the end of the deque, evicting the oldest entry if the
// deque is already at capacity.
func (d *boundedDeque) Append(v interface{}) {
	d.items = append(d.items, v)
	if len(d.items) > d.maxLen {
		d.items = d.items[len(d.items)-d.maxLen:]
	}
}

// Len returns the number of entries currently buffered.
func (d *boundedDeque) Len() int {
	return len(d.items)
}

// List returns the buffered entries in FIFO order, the shape needed for
// JSON encoding (the wire payload has no concept of a deque).
func (d *boundedDeque) List() []interface{} {
	out := make([]interface{}, len(d.items))
	copy(out, d.items)
	return out
}

// Reset empties the deque.
func (d *boundedDeque) Reset() {
	d.items = nil
}
