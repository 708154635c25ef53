package client

import "sync"

// QueuedSend is one send buffered while disconnected.
type QueuedSend struct {
	TempID    string
	ChannelID string
	Text      string
}

// Queue buffers sends issued while offline and drains them in enqueue order
// on reconnect. Items are considered handled once given to the transmit
// function; there is no acknowledgment beyond the eventual message:new echo.
// Enqueues that race with a drain land at the tail and are picked up by the
// same drain, so nothing is lost or reordered.
type Queue struct {
	mu    sync.Mutex
	items []QueuedSend
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a send to the queue.
func (q *Queue) Enqueue(item QueuedSend) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// Len returns the number of buffered sends.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Flush hands every buffered send to transmit, strictly in enqueue order.
// The head item is removed before transmit runs, so a transmit that
// re-enqueues cannot double-deliver.
func (q *Queue) Flush(transmit func(QueuedSend)) {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		transmit(item)
	}
}
