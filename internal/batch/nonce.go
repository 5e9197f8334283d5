package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NonceAllocator serializes nonce assignment per sender address across
// concurrent batch runs within one process. The first allocation for an
// address performs one authoritative pending-count query; later allocations
// hand out consecutive values without touching the network.
type NonceAllocator struct {
	source     NonceSource
	quiescence time.Duration

	mu     sync.Mutex
	leases map[common.Address]*nonceLease
}

type nonceLease struct {
	mu      sync.Mutex
	queried bool
	next    uint64

	// Guarded by the allocator mutex.
	active bool
	expiry *time.Timer
}

// NewNonceAllocator constructs an allocator backed by the given source.
func NewNonceAllocator(source NonceSource) *NonceAllocator {
	return &NonceAllocator{
		source:     source,
		quiescence: defaultNonceQuiescence,
		leases:     make(map[common.Address]*nonceLease),
	}
}

// Allocate returns the next nonce for the address. Concurrent callers for the
// same address are serialized by a per-address lock; different addresses never
// block each other. A network error from the initial pending-count query is
// returned to the caller that triggered it, leaving the lease unqueried so the
// next caller retries the query.
func (a *NonceAllocator) Allocate(ctx context.Context, address common.Address) (uint64, error) {
	lease := a.acquire(address)

	lease.mu.Lock()
	defer lease.mu.Unlock()

	if !lease.queried {
		pending, err := a.source.PendingNonceAt(ctx, address)
		if err != nil {
			return 0, fmt.Errorf("query pending nonce for %s: %w", address, err)
		}
		lease.next = pending
		lease.queried = true
	}

	nonce := lease.next
	lease.next++
	return nonce, nil
}

// Release schedules removal of the address's lease after the quiescence
// window, so a burst of later sends still avoids re-querying the network.
// Dropping a lease is always safe, only slower.
func (a *NonceAllocator) Release(address common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	lease, ok := a.leases[address]
	if !ok {
		return
	}
	lease.active = false
	if lease.expiry != nil {
		lease.expiry.Stop()
	}
	lease.expiry = time.AfterFunc(a.quiescence, func() {
		a.expire(address, lease)
	})
}

// Forget drops the lease immediately so the next allocation re-queries the
// network. Called after a failed broadcast, where the handed-out nonce may
// never reach the mempool.
func (a *NonceAllocator) Forget(address common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if lease, ok := a.leases[address]; ok {
		if lease.expiry != nil {
			lease.expiry.Stop()
		}
		delete(a.leases, address)
	}
}

func (a *NonceAllocator) acquire(address common.Address) *nonceLease {
	a.mu.Lock()
	defer a.mu.Unlock()

	lease, ok := a.leases[address]
	if !ok {
		lease = &nonceLease{}
		a.leases[address] = lease
	}
	lease.active = true
	if lease.expiry != nil {
		lease.expiry.Stop()
		lease.expiry = nil
	}
	return lease
}

func (a *NonceAllocator) expire(address common.Address, lease *nonceLease) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if current, ok := a.leases[address]; ok && current == lease && !lease.active {
		delete(a.leases, address)
	}
}
