package cpu

import (
	"sync"
	"time"

	"github.com/devicelab/gpuprobe/accel"
)

// event is a timestamp recorded in stream order. The timestamp task runs
// only after every task submitted before it has completed, so an event pair
// brackets exactly the work issued between the two Record calls.
type event struct {
	dev *Device

	mu     sync.Mutex
	done   chan struct{} // closed once the timestamp task has run
	at     time.Time
	closed bool
}

// Record enqueues the timestamp after all previously issued work.
func (e *event) Record() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return accel.ErrDoubleFree
	}
	if e.dev.isClosed() {
		return accel.ErrClosed
	}

	done := make(chan struct{})
	e.done = done
	e.dev.stream.submit(func() {
		e.at = time.Now()
		close(done)
	})
	return nil
}

// Synchronize blocks until the recorded timestamp has completed.
func (e *event) Synchronize() error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return accel.ErrEventNotRecorded
	}
	<-done
	return nil
}

// Since returns milliseconds elapsed from start to this event. Both events
// must have been recorded and have completed.
func (e *event) Since(start accel.Event) (float64, error) {
	s, ok := start.(*event)
	if !ok {
		return 0, accel.NewInvalidArgError("Event.Since", "start event belongs to a different backend")
	}
	for _, ev := range []*event{s, e} {
		ev.mu.Lock()
		done := ev.done
		ev.mu.Unlock()
		if done == nil {
			return 0, accel.ErrEventNotRecorded
		}
		select {
		case <-done:
		default:
			return 0, accel.NewInvalidArgError("Event.Since", "event has not completed")
		}
	}
	return float64(e.at.Sub(s.at)) / float64(time.Millisecond), nil
}

// Close releases the event.
func (e *event) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return accel.ErrDoubleFree
	}
	e.closed = true
	return nil
}
