package cpu

import (
	"sync"
)

// stream is the device's single in-order work queue. Uploads, downloads,
// kernel launches, and event timestamps all flow through it, which is what
// gives events their device-order semantics: a timestamp task observes the
// completion of everything submitted before it.
type stream struct {
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	execErr error // sticky until the next synchronize
}

func newStream() *stream {
	s := &stream{
		tasks: make(chan func(), 1024),
		done:  make(chan struct{}),
	}
	go s.worker()
	return s
}

// worker processes tasks in submission order
func (s *stream) worker() {
	for task := range s.tasks {
		task()
		s.wg.Done()
	}
	close(s.done)
}

// submit adds a task to the stream
func (s *stream) submit(task func()) {
	s.wg.Add(1)
	s.tasks <- task
}

// wait blocks until all submitted tasks have completed
func (s *stream) wait() {
	s.wg.Wait()
}

// setExecErr records an execution failure observed by an asynchronous
// task. The first failure wins; later ones are dropped.
func (s *stream) setExecErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.execErr == nil {
		s.execErr = err
	}
}

// takeExecErr returns the pending execution failure, if any, and clears it.
func (s *stream) takeExecErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.execErr
	s.execErr = nil
	return err
}

// close drains the stream and stops the worker.
func (s *stream) close() {
	s.wg.Wait()
	close(s.tasks)
	<-s.done
}
