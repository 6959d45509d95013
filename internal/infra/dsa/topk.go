// Package dsa holds small data structures used by the economy queries.
package dsa

// ─── Bounded Top-K (Min-Heap) ───────────────────────────────────────────────
// Keeps the K best items seen so far. The root is the worst kept item, so a
// new candidate only needs one comparison to be rejected.
//
// Operations:
//   Offer:  O(log k)
//   Sorted: O(k log k)

// TopK collects the k best items according to better.
// better(a, b) reports whether a ranks strictly ahead of b.
type TopK[T any] struct {
	k      int
	heap   []T
	better func(a, b T) bool
}

// NewTopK creates a collector for at most k items. k ≤ 0 keeps nothing.
func NewTopK[T any](k int, better func(a, b T) bool) *TopK[T] {
	if k < 0 {
		k = 0
	}
	return &TopK[T]{k: k, better: better, heap: make([]T, 0, k)}
}

// Offer considers one item.
func (t *TopK[T]) Offer(item T) {
	if t.k == 0 {
		return
	}
	if len(t.heap) < t.k {
		t.heap = append(t.heap, item)
		t.siftUp(len(t.heap) - 1)
		return
	}
	if !t.better(item, t.heap[0]) {
		return
	}
	t.heap[0] = item
	t.siftDown(0)
}

// Len returns the number of items kept.
func (t *TopK[T]) Len() int { return len(t.heap) }

// Sorted drains the collector and returns the kept items, best first.
func (t *TopK[T]) Sorted() []T {
	out := make([]T, len(t.heap))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = t.heap[0]
		last := len(t.heap) - 1
		t.heap[0] = t.heap[last]
		t.heap = t.heap[:last]
		if len(t.heap) > 0 {
			t.siftDown(0)
		}
	}
	return out
}

// worse orders the min-heap: the root is the item every other beats.
func (t *TopK[T]) worse(i, j int) bool {
	return t.better(t.heap[j], t.heap[i])
}

func (t *TopK[T]) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if t.worse(idx, parent) {
			t.heap[idx], t.heap[parent] = t.heap[parent], t.heap[idx]
			idx = parent
		} else {
			break
		}
	}
}

func (t *TopK[T]) siftDown(idx int) {
	n := len(t.heap)
	for {
		worst := idx
		left := 2*idx + 1
		right := 2*idx + 2

		if left < n && t.worse(left, worst) {
			worst = left
		}
		if right < n && t.worse(right, worst) {
			worst = right
		}
		if worst == idx {
			break
		}
		t.heap[idx], t.heap[worst] = t.heap[worst], t.heap[idx]
		idx = worst
	}
}
