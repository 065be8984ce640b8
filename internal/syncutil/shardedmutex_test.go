package syncutil

import (
	"fmt"
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	var sm ShardedMutex

	const n = 100
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := sm.Lock("user_1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != n {
		t.Errorf("lost increments: %d of %d", counter, n)
	}
}

func TestLockDifferentKeysDoNotDeadlock(t *testing.T) {
	var sm ShardedMutex

	var wg sync.WaitGroup
	for i := 0; i < 512; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := sm.Lock(fmt.Sprintf("user_%d", i))
			unlock()
		}(i)
	}
	wg.Wait()
}

func TestShardStableForKey(t *testing.T) {
	var sm ShardedMutex

	a := sm.shard("user_42")
	b := sm.shard("user_42")
	if a != b {
		t.Error("same key must map to same shard")
	}
}
