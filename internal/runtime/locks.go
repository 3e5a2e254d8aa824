package runtime

import (
	"context"
	"sort"
	"sync"

	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// lockTable hands out exclusive per-account locks. Entries exist only while
// some request holds or waits for them.
type lockTable struct {
	mu    sync.Mutex
	locks map[types.Address]*accountLock
}

type accountLock struct {
	ch   chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[types.Address]*accountLock)}
}

// acquire locks every address in ascending order, so two requests can never
// wait on each other in a cycle. On cancellation nothing stays held.
func (t *lockTable) acquire(ctx context.Context, addrs []types.Address) (func(), error) {
	sorted := append([]types.Address(nil), addrs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	held := make([]types.Address, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			t.unlock(held[i])
		}
	}

	for i, addr := range sorted {
		if i > 0 && addr == sorted[i-1] {
			continue
		}
		l := t.ref(addr)
		select {
		case l.ch <- struct{}{}:
			held = append(held, addr)
		case <-ctx.Done():
			t.unref(addr)
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

func (t *lockTable) ref(addr types.Address) *accountLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[addr]
	if !ok {
		l = &accountLock{ch: make(chan struct{}, 1)}
		t.locks[addr] = l
	}
	l.refs++
	return l
}

func (t *lockTable) unref(addr types.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.locks[addr]
	l.refs--
	if l.refs == 0 {
		delete(t.locks, addr)
	}
}

func (t *lockTable) unlock(addr types.Address) {
	t.mu.Lock()
	l := t.locks[addr]
	t.mu.Unlock()
	<-l.ch
	t.unref(addr)
}

// size returns the number of live lock entries.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
