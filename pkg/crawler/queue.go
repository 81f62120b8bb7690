package crawler

import "github.com/Sternrassler/repo-crawler/pkg/daterange"

// Queue is the FIFO work queue of ranges still to explore.
type Queue struct {
	items []daterange.Range
}

// NewQueue returns a queue holding ranges in order.
func NewQueue(ranges ...daterange.Range) *Queue {
	q := &Queue{}
	q.Push(ranges...)
	return q
}

// Push appends ranges to the back of the queue.
func (q *Queue) Push(ranges ...daterange.Range) {
	q.items = append(q.items, ranges...)
}

// PushFront places ranges ahead of everything queued, keeping their order.
func (q *Queue) PushFront(ranges ...daterange.Range) {
	items := make([]daterange.Range, 0, len(ranges)+len(q.items))
	items = append(items, ranges...)
	q.items = append(items, q.items...)
}

// Pop removes and returns the head of the queue.
func (q *Queue) Pop() (daterange.Range, bool) {
	if len(q.items) == 0 {
		return daterange.Range{}, false
	}
	r := q.items[0]
	q.items = q.items[1:]
	return r, true
}

// Len returns the number of queued ranges.
func (q *Queue) Len() int {
	return len(q.items)
}
