package sim

import "container/heap"

// queuedEvent pairs an event with its insertion sequence number.
type queuedEvent struct {
	ev  Event
	seq uint64
}

// EventQueue is a priority queue with deterministic ordering.
// Ordering: timestamp → insertion sequence.
//
// Only the Simulator holds an EventQueue; event code sees the append-only
// EventSink view instead.
type EventQueue struct {
	events  []queuedEvent
	nextSeq uint64
}

// NewEventQueue creates an empty event queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{events: make([]queuedEvent, 0)}
	heap.Init(q)
	return q
}

// Len implements heap.Interface
func (q *EventQueue) Len() int { return len(q.events) }

// Less implements heap.Interface with deterministic ordering
func (q *EventQueue) Less(i, j int) bool {
	ei, ej := q.events[i], q.events[j]
	if ei.ev.Timestamp() != ej.ev.Timestamp() {
		return ei.ev.Timestamp() < ej.ev.Timestamp()
	}
	return ei.seq < ej.seq
}

// Swap implements heap.Interface
func (q *EventQueue) Swap(i, j int) { q.events[i], q.events[j] = q.events[j], q.events[i] }

// Push implements heap.Interface
func (q *EventQueue) Push(x any) { q.events = append(q.events, x.(queuedEvent)) }

// Pop implements heap.Interface
func (q *EventQueue) Pop() any {
	old := q.events
	n := len(old)
	item := old[n-1]
	old[n-1] = queuedEvent{}
	q.events = old[:n-1]
	return item
}

// Schedule adds an event behind every queued event with the same timestamp.
func (q *EventQueue) Schedule(ev Event) {
	heap.Push(q, queuedEvent{ev: ev, seq: q.nextSeq})
	q.nextSeq++
}

// PopNext removes and returns the next event, nil if the queue is empty.
func (q *EventQueue) PopNext() Event {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(queuedEvent).ev
}

// Peek returns the next event without removing it.
func (q *EventQueue) Peek() Event {
	if q.Len() == 0 {
		return nil
	}
	return q.events[0].ev
}

// RemoveKind drops every queued event of the given kind and returns how many
// were removed. Relative order of the remaining events is unchanged.
func (q *EventQueue) RemoveKind(kind EventKind) int {
	kept := q.events[:0]
	removed := 0
	for _, qe := range q.events {
		if qe.ev.Kind() == kind {
			removed++
			continue
		}
		kept = append(kept, qe)
	}
	clear(q.events[len(kept):])
	q.events = kept
	if removed > 0 {
		heap.Init(q)
	}
	return removed
}

// Clear discards all queued events.
func (q *EventQueue) Clear() {
	clear(q.events)
	q.events = q.events[:0]
}
