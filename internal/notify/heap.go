package notify

import "container/heap"

// alertHeap is a min-heap of alerts ordered by fire time.
type alertHeap []Alert

func (h alertHeap) Len() int { return len(h) }
func (h alertHeap) Less(i, j int) bool {
	if h[i].At.Equal(h[j].At) {
		return h[i].ID < h[j].ID
	}
	return h[i].At.Before(h[j].At)
}
func (h alertHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *alertHeap) Push(x any) {
	*h = append(*h, x.(Alert))
}

func (h *alertHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *alertHeap, a Alert) {
	heap.Push(h, a)
}

// heapPop removes the earliest alert. Panics on an empty heap.
func heapPop(h *alertHeap) Alert {
	return heap.Pop(h).(Alert)
}

// heapRemoveByID removes the alert with the given id, if queued.
func heapRemoveByID(h *alertHeap, id int) bool {
	for i, a := range *h {
		if a.ID == id {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}
