package grouping

import (
	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

// WaitingQueue is a FIFO of student records. Dequeued slots are reclaimed
// once the consumed prefix outgrows the live part.
type WaitingQueue struct {
	items []*student.Record
	head  int
}

// Enqueue appends a record at the tail.
func (q *WaitingQueue) Enqueue(rec *student.Record) {
	q.items = append(q.items, rec)
}

// Dequeue removes and returns the longest-waiting record.
func (q *WaitingQueue) Dequeue() (*student.Record, bool) {
	if q.head >= len(q.items) {
		return nil, false
	}

	rec := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 32 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	return rec, true
}

// pushFront returns a record to the head of the queue. Used to roll back a
// formation that could not complete.
func (q *WaitingQueue) pushFront(rec *student.Record) {
	if q.head > 0 {
		q.head--
		q.items[q.head] = rec
		return
	}
	q.items = append(q.items, nil)
	copy(q.items[1:], q.items)
	q.items[0] = rec
}

// Len returns the number of waiting records.
func (q *WaitingQueue) Len() int {
	return len(q.items) - q.head
}

// Records returns copies of the waiting records in queue order.
func (q *WaitingQueue) Records() []student.Record {
	out := make([]student.Record, 0, q.Len())
	for _, rec := range q.items[q.head:] {
		out = append(out, rec.Clone())
	}
	return out
}

func (q *WaitingQueue) contains(id int) bool {
	for _, rec := range q.items[q.head:] {
		if rec.ID == id {
			return true
		}
	}
	return false
}

// TieredQueue holds one waiting queue per tier.
type TieredQueue struct {
	queues [3]WaitingQueue
}

// Enqueue appends a record to the queue of the given tier.
func (t *TieredQueue) Enqueue(tier student.Tier, rec *student.Record) {
	t.queue(tier).Enqueue(rec)
}

// Dequeue removes the longest-waiting record of the given tier.
func (t *TieredQueue) Dequeue(tier student.Tier) (*student.Record, bool) {
	return t.queue(tier).Dequeue()
}

// Len returns the number of records waiting in one tier.
func (t *TieredQueue) Len(tier student.Tier) int {
	return t.queue(tier).Len()
}

// Counts returns the waiting counts of all tiers.
func (t *TieredQueue) Counts() Composition {
	return Composition{
		High: t.Len(student.TierHigh),
		Mid:  t.Len(student.TierMid),
		Low:  t.Len(student.TierLow),
	}
}

// Records returns copies of the records waiting in one tier.
func (t *TieredQueue) Records(tier student.Tier) []student.Record {
	return t.queue(tier).Records()
}

func (t *TieredQueue) contains(id int) bool {
	for i := range t.queues {
		if t.queues[i].contains(id) {
			return true
		}
	}
	return false
}

func (t *TieredQueue) queue(tier student.Tier) *WaitingQueue {
	if !tier.IsValid() {
		tier = student.TierLow
	}
	return &t.queues[tier]
}
