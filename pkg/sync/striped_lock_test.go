package sync

import (
	"fmt"
	base "sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripedLock_SameKeySameLock(t *testing.T) {
	l := NewStripedLock(16)
	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("market%d", i))
		assert.Same(t, l.Get(key), l.Get(key))
	}
}

func TestStripedLock_HappyPath(t *testing.T) {
	workers := 64
	operations := 2000

	l := NewStripedLock(4)

	var wg base.WaitGroup
	start := make(chan struct{})
	counts := make([]int, workers)

	for worker := 0; worker < workers; worker++ {
		key := []byte(fmt.Sprintf("worker%d", worker))
		for j := 0; j < operations; j++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				<-start

				mu := l.Get(key)
				mu.Lock()
				counts[worker]++
				mu.Unlock()
			}(worker)
		}
	}

	close(start)
	wg.Wait()

	for _, count := range counts {
		assert.Equal(t, operations, count)
	}
}
