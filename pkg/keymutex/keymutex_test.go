package keymutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyMutex_SerializesSameKey(t *testing.T) {
	km := New(16)

	const goroutines = 50
	const increments = 100

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				km.Lock("learner-1")
				counter++
				km.Unlock("learner-1")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*increments, counter)
}

func TestKeyMutex_WithLock(t *testing.T) {
	km := New(0) // falls back to DefaultShards

	called := false
	err := km.WithLock("learner-1", func() error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)

	// The lock is released after WithLock, even when fn errors.
	err = km.WithLock("learner-1", func() error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	km.Lock("learner-1")
	km.Unlock("learner-1")
}

func TestKeyMutex_DistinctKeysDoNotBlock(t *testing.T) {
	km := New(1024)

	km.Lock("learner-1")
	defer km.Unlock("learner-1")

	done := make(chan struct{})
	go func() {
		km.Lock("learner-2")
		km.Unlock("learner-2")
		close(done)
	}()

	// With 1024 shards these two keys land on different shards, so the
	// second goroutine finishes while the first lock is still held.
	<-done
}
