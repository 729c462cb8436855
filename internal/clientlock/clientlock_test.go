package clientlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"deltasync/internal/baseline"
)

func TestInProcessLockExcludesConcurrentCallers(t *testing.T) {
	l := &InProcess{}
	client := baseline.ClientID("acme")

	unlock, err := l.Lock(context.Background(), client)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(context.Background(), client)
		if err != nil {
			t.Errorf("second lock: %v", err)
			return
		}
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatalf("second lock acquired while first was still held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second lock never acquired after first released")
	}
}

func TestInProcessLockDifferentClientsDoNotBlock(t *testing.T) {
	l := &InProcess{}

	unlockA, err := l.Lock(context.Background(), baseline.ClientID("a"))
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := l.Lock(context.Background(), baseline.ClientID("b"))
		if err != nil {
			t.Errorf("lock b: %v", err)
			return
		}
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock for a different client should not have blocked")
	}
}

func TestInProcessLockRespectsCancellation(t *testing.T) {
	l := &InProcess{}
	client := baseline.ClientID("acme")

	unlock, err := l.Lock(context.Background(), client)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, client)
	if err == nil {
		t.Fatalf("expected cancellation error while lock is held")
	}

	unlock()
}

func TestInProcessLockIsSafeForConcurrentClients(t *testing.T) {
	l := &InProcess{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			client := baseline.ClientID("client")
			unlock, err := l.Lock(context.Background(), client)
			if err != nil {
				t.Errorf("lock %d: %v", n, err)
				return
			}
			unlock()
		}(i)
	}
	wg.Wait()
}
