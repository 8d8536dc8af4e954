package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestOwnerLocksExcludePerOwner(t *testing.T) {
	locks := NewOwnerLocks()

	var inside atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(context.Background(), 7)
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			defer unlock()
			if n := inside.Add(1); n != 1 {
				t.Errorf("%d goroutines inside the same owner lock", n)
			}
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if n := locks.size(); n != 0 {
		t.Fatalf("%d lock entries leaked", n)
	}
}

func TestOwnerLocksIndependentOwners(t *testing.T) {
	locks := NewOwnerLocks()

	unlockA, err := locks.Lock(context.Background(), 1)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	done := make(chan struct{})
	go func() {
		unlock, err := locks.Lock(context.Background(), 2)
		if err == nil {
			unlock()
		}
		close(done)
	}()
	<-done
	unlockA()
}

func TestOwnerLocksWaitHonoursContext(t *testing.T) {
	locks := NewOwnerLocks()

	unlock, err := locks.Lock(context.Background(), 1)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locks.Lock(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}

	unlock()
	if n := locks.size(); n != 0 {
		t.Fatalf("%d lock entries leaked after an abandoned wait", n)
	}

	again, err := locks.Lock(context.Background(), 1)
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()
}
