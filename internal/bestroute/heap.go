package bestroute

import (
	"container/heap"
	"math/big"
	"sort"

	"swaprouter/internal/model"
)

// candidateSwap is a complete split and its L1-adjusted quote.
type candidateSwap struct {
	quote  *big.Int
	routes []*model.RouteWithValidQuote
}

// topSwaps keeps the k best candidates seen in one layer. The worst kept
// candidate sits at the root so it can be evicted.
type topSwaps struct {
	k      int
	better func(a, b *big.Int) bool
	items  []candidateSwap
}

func newTopSwaps(k int, better func(a, b *big.Int) bool) *topSwaps {
	return &topSwaps{k: k, better: better}
}

func (h *topSwaps) Len() int           { return len(h.items) }
func (h *topSwaps) Less(i, j int) bool { return h.better(h.items[j].quote, h.items[i].quote) }
func (h *topSwaps) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topSwaps) Push(x any)         { h.items = append(h.items, x.(candidateSwap)) }
func (h *topSwaps) Pop() any {
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last
}

func (h *topSwaps) offer(c candidateSwap) {
	if h.k <= 0 {
		return
	}
	if len(h.items) < h.k {
		heap.Push(h, c)
		return
	}
	if h.better(c.quote, h.items[0].quote) {
		h.items[0] = c
		heap.Fix(h, 0)
	}
}

// consume returns the kept candidates best first and empties the heap.
func (h *topSwaps) consume() []candidateSwap {
	out := h.items
	h.items = nil
	sort.SliceStable(out, func(i, j int) bool { return h.better(out[i].quote, out[j].quote) })
	return out
}
