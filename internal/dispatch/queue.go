package dispatch

import "container/heap"

// Priority classes for pending calls. Retries preempt first-pass requests,
// which preempt batch requests; within a class ordering is FIFO.
type Priority string

const (
	PriorityRetry     Priority = "retry"
	PriorityFirstPass Priority = "first_pass"
	PriorityBatch     Priority = "batch"
)

func priorityRank(p Priority) int {
	switch p {
	case PriorityRetry:
		return 0
	case PriorityFirstPass:
		return 1
	default:
		return 2
	}
}

type queueItem struct {
	rank int
	seq  uint64
	call *pendingCall
}

type callQueue struct {
	items []queueItem
	seq   uint64
}

func newCallQueue() *callQueue {
	q := &callQueue{}
	heap.Init(q)
	return q
}

func (q *callQueue) Len() int { return len(q.items) }

func (q *callQueue) Less(i, j int) bool {
	if q.items[i].rank != q.items[j].rank {
		return q.items[i].rank < q.items[j].rank
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *callQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *callQueue) Push(x any) { q.items = append(q.items, x.(queueItem)) }

func (q *callQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

func (q *callQueue) enqueue(call *pendingCall) {
	q.seq++
	heap.Push(q, queueItem{rank: priorityRank(call.req.Priority), seq: q.seq, call: call})
}

func (q *callQueue) dequeue() *pendingCall {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(queueItem).call
}

func (q *callQueue) sizePerPriority() map[Priority]int {
	out := map[Priority]int{}
	for _, item := range q.items {
		switch item.rank {
		case 0:
			out[PriorityRetry]++
		case 1:
			out[PriorityFirstPass]++
		default:
			out[PriorityBatch]++
		}
	}
	return out
}
