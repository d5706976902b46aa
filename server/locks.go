package server

import "sync"

// threadLocks serializes invocations per thread ID.
//
// The engine does not queue concurrent same-thread calls; keeping at most
// one invocation in flight per thread is the hosting layer's job, which is
// this package. Locks are created on first use and kept for the life of the
// process; a lock is a few words, so churn-heavy deployments should front
// this with their own session management.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the thread and returns the unlock func.
func (t *threadLocks) acquire(threadID string) func() {
	t.mu.Lock()
	lock, ok := t.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[threadID] = lock
	}
	t.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
