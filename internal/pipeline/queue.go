package pipeline

import "sync"

// Chunk is one speakable piece of a reply, numbered from zero in emission
// order within a turn.
type Chunk struct {
	Index int
	Text  string
}

type queueItem struct {
	chunk    Chunk
	shutdown bool
}

// Queue is an unbounded FIFO handing chunks from the stream reader to the
// synthesis worker. It supports exactly one producer and one consumer.
type Queue struct {
	mu    sync.Mutex
	items []queueItem
	wake  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Push never blocks.
func (q *Queue) Push(c Chunk) {
	q.put(queueItem{chunk: c})
}

// Shutdown enqueues the end-of-turn marker. Chunks pushed before it are
// still delivered.
func (q *Queue) Shutdown() {
	q.put(queueItem{shutdown: true})
}

func (q *Queue) put(it queueItem) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop blocks until an item is available. ok is false once the shutdown
// marker is reached.
func (q *Queue) Pop() (c Chunk, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items[0] = queueItem{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return it.chunk, !it.shutdown
		}
		q.mu.Unlock()
		<-q.wake
	}
}

// Len reports the number of undelivered items, including a pending
// shutdown marker.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
