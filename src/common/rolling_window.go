package common

// RollingWindow keeps the most recent items of an append-only sequence. Items
// are buffered up to twice the window size and the oldest half is dropped in
// one go, so that appends stay cheap.
type RollingWindow[T any] struct {
	size  int
	items []T
}

// NewRollingWindow creates a window retaining the last size items.
func NewRollingWindow[T any](size int) *RollingWindow[T] {
	if size < 1 {
		size = 1
	}
	return &RollingWindow[T]{
		size:  size,
		items: make([]T, 0, 2*size),
	}
}

// Push appends an item.
func (r *RollingWindow[T]) Push(item T) {
	if len(r.items) >= 2*r.size {
		r.Roll()
	}
	r.items = append(r.items, item)
}

// Window returns a copy of the last size items, oldest first.
func (r *RollingWindow[T]) Window() []T {
	start := 0
	if len(r.items) > r.size {
		start = len(r.items) - r.size
	}
	res := make([]T, len(r.items)-start)
	copy(res, r.items[start:])
	return res
}

// Len returns the number of items currently inside the window.
func (r *RollingWindow[T]) Len() int {
	if len(r.items) > r.size {
		return r.size
	}
	return len(r.items)
}

// Roll drops the oldest size items from the buffer.
func (r *RollingWindow[T]) Roll() {
	newList := make([]T, 0, 2*r.size)
	newList = append(newList, r.items[r.size:]...)
	r.items = newList
}
