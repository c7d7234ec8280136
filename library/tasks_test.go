package library

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskPoolCloseDrainsQueue(t *testing.T) {
	p := NewTaskPool(5 * time.Millisecond)

	var ran atomic.Int32
	var pending []*Pending
	for i := 0; i < 6; i++ {
		pending = append(pending, p.Submit(func() (Loan, error) {
			ran.Add(1)
			return Loan{}, nil
		}))
	}
	p.Close()

	assert.Equal(t, int32(6), ran.Load())
	for _, pd := range pending {
		_, err := pd.Wait()
		require.NoError(t, err)
	}

	// closing twice is harmless
	p.Close()
	_, err := p.Submit(func() (Loan, error) { return Loan{}, nil }).Wait()
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestTaskPoolPassesResultThrough(t *testing.T) {
	p := NewTaskPool(0)
	defer p.Close()

	boom := errors.New("boom")
	_, err := p.Submit(func() (Loan, error) { return Loan{}, boom }).Wait()
	require.ErrorIs(t, err, boom)

	loan, err := p.Submit(func() (Loan, error) { return Loan{ISBN: "1111"}, nil }).Wait()
	require.NoError(t, err)
	assert.Equal(t, "1111", loan.ISBN)
}

func TestTaskPoolDelaysDoNotQueueUp(t *testing.T) {
	const delay = 100 * time.Millisecond
	p := NewTaskPool(delay)
	defer p.Close()

	start := time.Now()
	var pending []*Pending
	for i := 0; i < 100; i++ {
		pending = append(pending, p.Submit(func() (Loan, error) { return Loan{}, nil }))
	}
	assert.Less(t, time.Since(start), delay/2, "submitting must not wait for earlier tasks")

	for _, pd := range pending {
		_, err := pd.Wait()
		require.NoError(t, err)
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, delay)
	assert.Less(t, elapsed, 2*delay, "every task runs one delay after it was submitted")
}

func TestTaskPoolTaskMaySubmitAndWait(t *testing.T) {
	p := NewTaskPool(time.Millisecond)
	defer p.Close()

	outer := p.Submit(func() (Loan, error) {
		return p.Submit(func() (Loan, error) { return Loan{ISBN: "inner"}, nil }).Wait()
	})

	select {
	case <-outer.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("nested task never finished")
	}
	loan, err := outer.Wait()
	require.NoError(t, err)
	assert.Equal(t, "inner", loan.ISBN)
}
