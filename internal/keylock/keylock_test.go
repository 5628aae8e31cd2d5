package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameKey(t *testing.T) {
	km := New()

	const workers = 20
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("user:1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestLockDifferentKeysDoNotBlock(t *testing.T) {
	km := New()

	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	<-done
}

func TestEntriesEvictedWhenIdle(t *testing.T) {
	km := New()

	unlock := km.Lock("a")
	assert.Equal(t, 1, km.Len())
	unlock()
	assert.Equal(t, 0, km.Len())
}
