package engine

// queueItem wraps a request with the bookkeeping the heap needs.
// Cancelled items stay in the heap and are skipped on pop.
type queueItem struct {
	req       Request
	seq       uint64
	index     int
	cancelled bool
}

// requestQueue is a max-heap: higher priority first, FIFO within the
// same priority.
type requestQueue []*queueItem

func (q requestQueue) Len() int { return len(q) }

func (q requestQueue) Less(i, j int) bool {
	if q[i].req.Priority != q[j].req.Priority {
		return q[i].req.Priority > q[j].req.Priority
	}
	return q[i].seq < q[j].seq
}

func (q requestQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *requestQueue) Push(x any) {
	it := x.(*queueItem)
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *requestQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}
