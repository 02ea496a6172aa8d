package manager

import (
	"context"
	"time"
)

// beginGeneration reserves a queue slot and then the single device slot.
// Returns a release func to be deferred. With maxWait == 0 it waits until
// the slot frees or ctx is done.
func (m *Manager) beginGeneration(ctx context.Context) (func(), error) {
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	var deadline <-chan time.Time
	if m.maxWait > 0 {
		timer := time.NewTimer(m.maxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case m.queueCh <- struct{}{}:
		// reserved queue slot
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-deadline:
		backpressureTotal.WithLabelValues("queue_full").Inc()
		return func() {}, tooBusyError{reason: "queue full"}
	}
	queueDepth.Set(float64(len(m.queueCh)))

	// Wait to acquire the single in-flight slot
	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
			queueDepth.Set(float64(len(m.queueCh)))
		}
	}()
	select {
	case m.genCh <- struct{}{}:
		acquired = true
		return func() {
			<-m.genCh
			<-m.queueCh
			queueDepth.Set(float64(len(m.queueCh)))
		}, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-deadline:
		backpressureTotal.WithLabelValues("wait_timeout").Inc()
		return func() {}, tooBusyError{reason: "device busy"}
	}
}

// Busy reports whether a generation currently holds the device.
func (m *Manager) Busy() bool { return len(m.genCh) > 0 }

// QueueLen is the number of requests waiting for or holding the device.
func (m *Manager) QueueLen() int { return len(m.queueCh) }
