// Package clientlock provides advisory per-client mutual exclusion around a
// cycle's push-and-commit steps, grounded on notes' internal/service
// runningJobsGuard, a map of in-flight IDs guarding against concurrent
// runs of the same job, generalized here to block-and-wait rather than
// fail-fast, since two cycles for the same client should queue, not skip.
package clientlock

import (
	"context"
	"sync"

	"deltasync/internal/baseline"
	"deltasync/internal/deltaerr"
)

// Locker acquires exclusive access to a client's cycle. The returned
// unlock releases it; callers must invoke it exactly once after Lock
// succeeds.
type Locker interface {
	Lock(ctx context.Context, client baseline.ClientID) (unlock func(), err error)
}

// InProcess is a Locker scoped to this process's memory: one *sync.Mutex
// per client, created lazily and kept for the process lifetime.
type InProcess struct {
	mu    sync.Mutex
	locks map[baseline.ClientID]*sync.Mutex
}

var _ Locker = (*InProcess)(nil)

func (l *InProcess) clientMutex(client baseline.ClientID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[baseline.ClientID]*sync.Mutex)
	}
	m, ok := l.locks[client]
	if !ok {
		m = &sync.Mutex{}
		l.locks[client] = m
	}
	return m
}

// Lock blocks until client's mutex is free or ctx is cancelled.
func (l *InProcess) Lock(ctx context.Context, client baseline.ClientID) (func(), error) {
	m := l.clientMutex(client)

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return m.Unlock, nil
	case <-ctx.Done():
		// The goroutine above may still acquire m later; that's fine, its
		// eventual Unlock caller (whoever is waiting next) simply won't be
		// us. We never return an unlock func for a lock we don't hold.
		go func() {
			<-acquired
			m.Unlock()
		}()
		return nil, deltaerr.Wrap(deltaerr.Cancelled, "acquire client lock", ctx.Err())
	}
}
