package service

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locks := NewKeyedMutex()
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("dispute-1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 64 {
		t.Fatalf("counter = %d, want 64", counter)
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	locks := NewKeyedMutex()

	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	unlockA()
	unlockB()

	locks.mu.Lock()
	n := len(locks.entries)
	locks.mu.Unlock()
	if n != 0 {
		t.Fatalf("entries left = %d, want 0", n)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	locks := NewKeyedMutex()

	unlockA := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	unlockA()
}
