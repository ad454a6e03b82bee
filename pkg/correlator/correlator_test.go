package correlator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyResolvesListener(t *testing.T) {
	tbl := New[string, int]()
	listener := NewListener(tbl, "a")

	count := tbl.Notify("a", 42)
	assert.Equal(t, 1, count)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := listener.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestNotifyWithNoListenersReturnsZero(t *testing.T) {
	tbl := New[string, int]()
	assert.NotPanics(t, func() {
		count := tbl.Notify("missing", 1)
		assert.Equal(t, 0, count)
	})
}

func TestNotifyFansOutToAllListeners(t *testing.T) {
	tbl := New[string, int]()
	l1 := NewListener(tbl, "k")
	l2 := NewListener(tbl, "k")

	count := tbl.Notify("k", 7)
	assert.Equal(t, 2, count)

	ctx := context.Background()
	v1, _ := l1.Wait(ctx)
	v2, _ := l2.Wait(ctx)
	assert.Equal(t, 7, v1)
	assert.Equal(t, 7, v2)
}

func TestCancelRemovesListener(t *testing.T) {
	tbl := New[string, int]()
	listener := NewListener(tbl, "k")
	assert.Equal(t, 1, tbl.PendingCount("k"))

	listener.Cancel()
	assert.Equal(t, 0, tbl.PendingCount("k"))

	count := tbl.Notify("k", 1)
	assert.Equal(t, 0, count)
}

func TestWaitCanceledByContext(t *testing.T) {
	tbl := New[string, int]()
	listener := NewListener(tbl, "k")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := listener.Wait(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, tbl.PendingCount("k"))
}

func TestConcurrentNotifyAndListen(t *testing.T) {
	tbl := New[int, int]()
	var wg sync.WaitGroup
	results := make([]int, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			listener := NewListener(tbl, i)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			v, err := listener.Wait(ctx)
			if err == nil {
				results[i] = v
			}
		}(i)
	}

	for i := 0; i < 100; i++ {
		go tbl.Notify(i, i*2)
	}

	wg.Wait()
	for i, v := range results {
		assert.Equal(t, i*2, v)
	}
}
