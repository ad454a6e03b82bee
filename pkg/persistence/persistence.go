// Package persistence implements the single-process lease index described
// by spec.md §4.3: an in-memory table keyed by (peer_id, nonce), guarded by
// a mutex that is never held across a blocking wait.
package persistence

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/p2pim/node/pkg/nodeerrors"
	"github.com/p2pim/node/pkg/types"
)

// Store is the in-memory rent index. The zero value is not usable;
// construct with New.
type Store struct {
	mu    sync.Mutex
	bykey map[types.LeaseKey]types.Lease
}

// New returns an empty Store.
func New() *Store {
	return &Store{bykey: make(map[types.LeaseKey]types.Lease)}
}

// RentStore inserts lease, overwriting any prior entry with the same
// (peer_id, nonce) key. Duplicate-nonce rejection is the caller's
// responsibility; this store applies last-write-wins semantics.
func (s *Store) RentStore(lease types.Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bykey[lease.Key()] = lease
}

// RentUpdateChain finds the single lease with matching (peer_address,
// nonce) and sets or clears its chain confirmation. The lookup is by
// on-chain address rather than peer ID because chain events carry
// addresses, not peer IDs. Returns a nodeerrors.Invariant error if no
// lease matches.
func (s *Store) RentUpdateChain(peerAddress common.Address, nonce uint64, confirmation *types.ChainConfirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, lease := range s.bykey {
		if lease.PeerAddress == peerAddress && lease.Nonce == nonce {
			lease.ChainConfirmation = confirmation
			s.bykey[key] = lease
			return nil
		}
	}

	return nodeerrors.Invariant("lease not found", "no lease matches peer_address and nonce")
}

// RentGet returns the lease stored under (peerID, nonce), if any.
func (s *Store) RentGet(key types.LeaseKey) (types.Lease, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lease, found := s.bykey[key]
	return lease, found
}

// RentList returns a snapshot of all stored leases, in no particular order.
func (s *Store) RentList() []types.Lease {
	s.mu.Lock()
	defer s.mu.Unlock()

	leases := make([]types.Lease, 0, len(s.bykey))
	for _, lease := range s.bykey {
		leases = append(leases, lease)
	}
	return leases
}
