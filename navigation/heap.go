package navigation

// frontier is a lazy-deletion min-queue of (index, cost) pairs
// Entries are never decreased in place: a cheaper push shadows the old one and
// callers drop stale pops by comparing against their own cost table
type frontier struct {
	idx  []int32
	cost []float32
}

// init empties the queue, growing its backing arrays to at least capacity
func (q *frontier) init(capacity int) {
	if cap(q.idx) < capacity {
		q.idx = make([]int32, 0, capacity)
		q.cost = make([]float32, 0, capacity)
		return
	}
	q.idx = q.idx[:0]
	q.cost = q.cost[:0]
}

func (q *frontier) len() int { return len(q.idx) }

func (q *frontier) push(i int32, c float32) {
	q.idx = append(q.idx, i)
	q.cost = append(q.cost, c)
	q.up(len(q.idx) - 1)
}

// pop removes the cheapest entry; the queue must be non-empty
func (q *frontier) pop() (int32, float32) {
	i, c := q.idx[0], q.cost[0]
	last := len(q.idx) - 1
	q.swap(0, last)
	q.idx = q.idx[:last]
	q.cost = q.cost[:last]
	q.down(0)
	return i, c
}

func (q *frontier) swap(a, b int) {
	q.idx[a], q.idx[b] = q.idx[b], q.idx[a]
	q.cost[a], q.cost[b] = q.cost[b], q.cost[a]
}

func (q *frontier) up(k int) {
	for k > 0 {
		parent := (k - 1) >> 1
		if q.cost[parent] <= q.cost[k] {
			return
		}
		q.swap(parent, k)
		k = parent
	}
}

func (q *frontier) down(k int) {
	n := len(q.cost)
	for {
		child := 2*k + 1
		if child >= n {
			return
		}
		if r := child + 1; r < n && q.cost[r] < q.cost[child] {
			child = r
		}
		if q.cost[k] <= q.cost[child] {
			return
		}
		q.swap(k, child)
		k = child
	}
}
