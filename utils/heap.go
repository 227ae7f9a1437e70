package utils

import "golang.org/x/exp/constraints"

// Item is a heap element ordered by Key.
type Item[K constraints.Ordered, V any] struct {
	Key   K
	Value V
}

// Heap is a binary min-heap of keyed items.
type Heap[K constraints.Ordered, V any] struct {
	buf []Item[K, V]
}

func (h *Heap[K, V]) Len() int {
	return len(h.buf)
}

// Push pushes the value with the given key onto the heap.
// The complexity is O(log n) where n = h.Len().
func (h *Heap[K, V]) Push(key K, value V) {
	h.buf = append(h.buf, Item[K, V]{Key: key, Value: value})
	h.up(h.Len() - 1)
}

// Peek returns the minimum item without removing it. The heap must not be empty.
func (h *Heap[K, V]) Peek() Item[K, V] {
	return h.buf[0]
}

// Pop removes and returns the minimum item.
// The complexity is O(log n) where n = h.Len().
func (h *Heap[K, V]) Pop() (min Item[K, V]) {
	min = h.buf[0]
	n := h.Len() - 1
	h.swap(0, n)
	h.down(0, n)
	h.buf = h.buf[0:n]
	return
}

func (h *Heap[K, V]) swap(i, j int) {
	h.buf[i], h.buf[j] = h.buf[j], h.buf[i]
}

func (h *Heap[K, V]) up(j int) {
	for {
		i := (j - 1) / 2 // parent
		if i == j || !(h.buf[j].Key < h.buf[i].Key) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

func (h *Heap[K, V]) down(i0, n int) bool {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 { // j1 < 0 after int overflow
			break
		}
		j := j1 // left child
		if j2 := j1 + 1; j2 < n && h.buf[j2].Key < h.buf[j1].Key {
			j = j2 // right child
		}
		if !(h.buf[j].Key < h.buf[i].Key) {
			break
		}
		h.swap(i, j)
		i = j
	}
	return i > i0
}
