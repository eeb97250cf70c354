// internal/queue/heap.go
package queue

// entry is one queued item. seq is the insertion sequence number and breaks
// ties inside a priority tier.
type entry[T any] struct {
	item T
	prio Priority
	seq  uint64
}

// entries implements heap.Interface.
type entries[T any] []entry[T]

func (e entries[T]) Len() int { return len(e) }

func (e entries[T]) Less(i, j int) bool {
	if e[i].prio != e[j].prio {
		return e[i].prio < e[j].prio
	}
	return e[i].seq < e[j].seq
}

func (e entries[T]) Swap(i, j int) { e[i], e[j] = e[j], e[i] }

func (e *entries[T]) Push(x any) { *e = append(*e, x.(entry[T])) }

func (e *entries[T]) Pop() any {
	old := *e
	n := len(old)
	it := old[n-1]
	old[n-1] = entry[T]{}
	*e = old[:n-1]
	return it
}
