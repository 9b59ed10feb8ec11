package sim

import (
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
)

// MetricDispatcher is a per-step publish/subscribe bus. Metric events are
// buffered by Record during an event's execution and delivered by Flush, which
// the simulator calls exactly once per processed event.
//
// Listener registration is safe from any goroutine and from inside a delivery.
// Delivery iterates over a snapshot, so a listener added or removed during a
// flush takes effect from the next flush on.
//
// Close may race with a Flush running on the simulation goroutine. The
// in-flight batch stops at the next delivery and the flushing goroutine sends
// the end-of-stream signal once it is done, so no listener sees an event after
// OnSimulationEnd.
type MetricDispatcher struct {
	mu        sync.Mutex
	buffer    []MetricEvent
	listeners []MetricListener
	closed    bool
	delivered uint64

	flushing bool
	// listeners still owed OnSimulationEnd by the in-flight flush
	endPending []MetricListener
}

// NewMetricDispatcher creates an open dispatcher without listeners.
func NewMetricDispatcher() *MetricDispatcher {
	return &MetricDispatcher{}
}

// Record appends m to the step buffer. Records after Close are dropped.
func (d *MetricDispatcher) Record(m MetricEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.buffer = append(d.buffer, m)
}

// Flush delivers every buffered event, in recording order, to every listener
// and clears the buffer. It returns the number of buffered events. A Close
// arriving during the flush cuts the remaining deliveries short.
func (d *MetricDispatcher) Flush() int {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0
	}
	batch := d.buffer
	d.buffer = nil
	listeners := slices.Clone(d.listeners)
	d.delivered += uint64(len(batch))
	d.flushing = true
	d.mu.Unlock()

deliveries:
	for _, m := range batch {
		for _, l := range listeners {
			if d.IsClosed() {
				break deliveries
			}
			deliver(l, m)
		}
	}

	d.mu.Lock()
	d.flushing = false
	owed := d.endPending
	d.endPending = nil
	d.mu.Unlock()
	for _, l := range owed {
		endOfStream(l)
	}
	return len(batch)
}

// AddListener registers l; duplicates are ignored. A listener added after
// Close immediately receives the end-of-stream signal. Listeners of a
// non-comparable type, such as function adapters, are never deduplicated and
// cannot be removed again.
func (d *MetricDispatcher) AddListener(l MetricListener) {
	if l == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		endOfStream(l)
		return
	}
	if listenerIndex(d.listeners, l) < 0 {
		d.listeners = append(d.listeners, l)
	}
	d.mu.Unlock()
}

// RemoveListener unregisters l and reports whether it was registered.
func (d *MetricDispatcher) RemoveListener(l MetricListener) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := listenerIndex(d.listeners, l)
	if i < 0 {
		return false
	}
	d.listeners = slices.Delete(slices.Clone(d.listeners), i, i+1)
	return true
}

// Len returns the number of registered listeners.
func (d *MetricDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Pending returns the number of buffered, undelivered events.
func (d *MetricDispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffer)
}

// Delivered returns the number of events flushed so far.
func (d *MetricDispatcher) Delivered() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delivered
}

// IsClosed reports whether Close was called.
func (d *MetricDispatcher) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close signals end-of-stream to every listener, then drops listeners and any
// undelivered events. Subsequent calls are no-ops. When a flush is in flight
// the signal is sent by the flushing goroutine after its last delivery, which
// also keeps Close safe to call from inside a listener.
func (d *MetricDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	listeners := d.listeners
	d.listeners = nil
	if n := len(d.buffer); n > 0 {
		logrus.Debugf("Dropping %d undelivered metric events on close", n)
	}
	d.buffer = nil
	if d.flushing {
		d.endPending = listeners
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	for _, l := range listeners {
		endOfStream(l)
	}
}

func deliver(l MetricListener, m MetricEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Warnf("Metric listener %T panicked on %s: %v", l, m.Kind, r)
		}
	}()
	l.OnMetricEvent(m)
}

func endOfStream(l MetricListener) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Warnf("Metric listener %T panicked on end of simulation: %v", l, r)
		}
	}()
	l.OnSimulationEnd()
}
