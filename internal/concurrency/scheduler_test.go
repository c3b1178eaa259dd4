// scheduler_test.go: timer expiration, ordering, cancel, close.
package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_DelayedExecution(t *testing.T) {
	s := NewScheduler()
	defer s.Close()
	var count int32

	c, err := s.Schedule(int64(10*time.Millisecond), func() { atomic.AddInt32(&count, 1) })
	require.Nil(t, err)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduled function did not run")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
	assert.Nil(t, c.Err())
}

func TestScheduler_Order(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	for i, d := range []time.Duration{30, 10, 20} {
		wg.Add(1)
		i := i
		_, err := s.Schedule(int64(d*time.Millisecond), func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
		require.Nil(t, err)
	}
	wg.Wait()
	assert.Equal(t, []int{1, 2, 0}, got)
}

func TestScheduler_Cancel(t *testing.T) {
	s := NewScheduler()
	defer s.Close()
	var ran atomic.Bool
	c, err := s.Schedule(int64(20*time.Millisecond), func() { ran.Store(true) })
	require.Nil(t, err)
	require.Nil(t, s.Cancel(c))
	<-c.Done()
	assert.ErrorIs(t, c.Err(), ErrTaskCanceled)
	assert.Equal(t, 0, s.Pending())

	time.Sleep(40 * time.Millisecond)
	assert.False(t, ran.Load())

	// Canceling twice is harmless.
	assert.Nil(t, c.Cancel())
}

func TestScheduler_CancelForeign(t *testing.T) {
	s1 := NewScheduler()
	defer s1.Close()
	s2 := NewScheduler()
	defer s2.Close()
	c, err := s1.Schedule(int64(time.Hour), func() {})
	require.Nil(t, err)
	assert.ErrorIs(t, s2.Cancel(c), ErrForeignTask)
}

func TestScheduler_Close(t *testing.T) {
	s := NewScheduler()
	c, err := s.Schedule(int64(time.Hour), func() { t.Error("shouldn't execute") })
	require.Nil(t, err)
	s.Close()
	<-c.Done()
	assert.ErrorIs(t, c.Err(), ErrTaskCanceled)

	_, err = s.Schedule(0, func() {})
	assert.ErrorIs(t, err, ErrSchedulerClosed)
	s.Close()
}

func TestScheduler_Now(t *testing.T) {
	s := NewScheduler()
	defer s.Close()
	a := s.Now()
	time.Sleep(time.Millisecond)
	assert.Greater(t, s.Now(), a)
}
