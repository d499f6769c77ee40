package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DrainIsFIFO(t *testing.T) {
	q := New[string](0)
	assert.Nil(t, q.Drain())

	for _, s := range []string{"PSEAC", "OIWPL", "PSEAR"} {
		require.NoError(t, q.Push(s))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"PSEAC", "OIWPL", "PSEAR"}, q.Drain())
	assert.Zero(t, q.Len())
	assert.Nil(t, q.Drain())
}

func TestQueue_Limit(t *testing.T) {
	assert.Zero(t, New[int](-5).Limit())

	q := New[int](2)
	assert.Equal(t, 2, q.Limit())
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	assert.ErrorIs(t, q.Push(3), ErrFull)
	assert.Equal(t, []int{1, 2}, q.Drain())

	require.NoError(t, q.Push(3), "room again after a drain")
}

func TestQueue_DrainedSliceIsDetached(t *testing.T) {
	q := New[int](0)
	require.NoError(t, q.Push(1))
	got := q.Drain()

	require.NoError(t, q.Push(2))
	assert.Equal(t, []int{1}, got)
	assert.Equal(t, []int{2}, q.Drain())
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	const producers, each = 8, 200
	q := New[int](0)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Push(p*each + i)
			}
		}(p)
	}

	var got []int
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		got = append(got, q.Drain()...)
		select {
		case <-done:
			got = append(got, q.Drain()...)
			assert.Len(t, got, producers*each)
			return
		default:
		}
	}
}

func TestQueue_ConcurrentBounded(t *testing.T) {
	q := New[int](50)
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if q.Push(i) == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, accepted)
	assert.Equal(t, 50, q.Len())
}
