// Package queue implements the bounded, FIFO, enqueue-time-stamped queue
// the forwarding plane uses for each of its three priority classes.
package queue

import (
	"errors"
	"time"

	"netlab/pkg/wire"
)

// ErrFull is returned by Enqueue when the queue is already at capacity.
var ErrFull = errors.New("queue: full")

// Entry is one packet waiting in a priority queue: the raw encoded
// datagram, the time it was enqueued, and the routing decision already
// made for it (destination and resolved next hop).
type Entry struct {
	Packet    []byte
	EnqueueAt time.Time
	Dest      wire.Addr
	NextHop   wire.Addr
}

// Queue is a fixed-capacity FIFO. It is not safe for concurrent use; each
// forwarding loop owns its three queues exclusively, matching the
// single-threaded cooperative model the rest of the forwarding plane runs
// under.
type Queue struct {
	capacity int
	entries  []Entry
}

// New returns an empty queue with the given capacity.
func New(capacity int) *Queue {
	return &Queue{capacity: capacity, entries: make([]Entry, 0, capacity)}
}

// Enqueue appends an entry, stamping it with the current time. It returns
// ErrFull without modifying the queue when at capacity.
func (q *Queue) Enqueue(packet []byte, dest, nextHop wire.Addr) error {
	if len(q.entries) >= q.capacity {
		return ErrFull
	}
	q.entries = append(q.entries, Entry{
		Packet:    packet,
		EnqueueAt: time.Now(),
		Dest:      dest,
		NextHop:   nextHop,
	})
	return nil
}

// Dequeue removes and returns the oldest entry. The second return value
// is false on an empty queue.
func (q *Queue) Dequeue() (Entry, bool) {
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

// Peek returns the oldest entry without removing it.
func (q *Queue) Peek() (Entry, bool) {
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return q.entries[0], true
}

// Len returns the current number of queued entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Capacity returns the fixed capacity the queue was constructed with.
func (q *Queue) Capacity() int {
	return q.capacity
}
