package bestroute

import "swaprouter/internal/model"

// partialSplit is a set of legs that does not yet cover 100%.
type partialSplit struct {
	routes           []*model.RouteWithValidQuote
	percentIndex     int
	remainingPercent int
	special          bool
}

// splitQueue is a FIFO of partial splits.
type splitQueue struct {
	items []partialSplit
	head  int
}

func (q *splitQueue) enqueue(item partialSplit) {
	q.items = append(q.items, item)
}

func (q *splitQueue) dequeue() partialSplit {
	item := q.items[q.head]
	q.items[q.head] = partialSplit{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return item
}

func (q *splitQueue) size() int {
	return len(q.items) - q.head
}
