package library

import (
	"sync"
	"time"
)

// Pending is the handle of a submitted circulation task.
type Pending struct {
	done chan struct{}
	loan Loan
	err  error
}

// Wait blocks until the task has finished and returns its result.
func (p *Pending) Wait() (Loan, error) {
	<-p.done
	return p.loan, p.err
}

// Done is closed once the task has finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

func (p *Pending) finish(loan Loan, err error) {
	p.loan, p.err = loan, err
	close(p.done)
}

// TaskPool runs circulation work after a fixed delay. Each task gets its own
// timer started at submission, so the delay does not grow with the number of
// tasks in flight. Tasks cannot be cancelled.
type TaskPool struct {
	delay time.Duration
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewTaskPool returns a pool that delays every task by delay.
func NewTaskPool(delay time.Duration) *TaskPool {
	return &TaskPool{delay: delay}
}

// Submit schedules fn and returns immediately. After Close the returned
// Pending fails with ErrPoolClosed.
func (p *TaskPool) Submit(fn func() (Loan, error)) *Pending {
	pending := &Pending{done: make(chan struct{})}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		pending.finish(Loan{}, ErrPoolClosed)
		return pending
	}
	p.wg.Add(1)
	time.AfterFunc(p.delay, func() {
		defer p.wg.Done()
		pending.finish(fn())
	})
	return pending
}

// Close rejects new tasks and waits for the scheduled ones to finish.
func (p *TaskPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
}
