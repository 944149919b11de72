package storage

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pegpool/internal/model"
)

// EventSink receives committed pool events.
type EventSink interface {
	PutEvents(events []model.Event) error
}

type balanceKey struct {
	owner common.Address
	asset model.Asset
}

// MemoryStore keeps pool state and bank balances in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	loaded   bool
	snapshot model.Snapshot
	balances map[balanceKey]uint256.Int
	commits  int
	failNext error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshot: model.Snapshot{Accounts: make(map[common.Address]model.Account)}}
}

// NewMemoryStoreFrom starts from an existing snapshot, e.g. one read from a durable store.
func NewMemoryStoreFrom(snap model.Snapshot) *MemoryStore {
	return &MemoryStore{snapshot: cloneSnapshot(snap), loaded: true}
}

func (s *MemoryStore) Load(ctx context.Context) (model.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return model.Snapshot{}, false, nil
	}
	return cloneSnapshot(s.snapshot), true, nil
}

func (s *MemoryStore) Commit(ctx context.Context, change model.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	applyChangeset(&s.snapshot, change)
	s.loaded = true
	s.commits++
	return nil
}

func (s *MemoryStore) LoadBalances(ctx context.Context) ([]model.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return balanceList(s.balances), nil
}

func (s *MemoryStore) SaveBalances(ctx context.Context, balances []model.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances == nil {
		s.balances = make(map[balanceKey]uint256.Int, len(balances))
	}
	applyBalances(s.balances, balances)
	return nil
}

// FailNextCommit makes the next Commit return err without applying it.
func (s *MemoryStore) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Commits counts successful commits.
func (s *MemoryStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func applyChangeset(snap *model.Snapshot, change model.Changeset) {
	snap.Pool = change.Pool
	snap.Unclaimed = change.Unclaimed
	if snap.Accounts == nil {
		snap.Accounts = make(map[common.Address]model.Account, len(change.Accounts))
	}
	for addr, acct := range change.Accounts {
		snap.Accounts[addr] = acct
	}
}

func cloneSnapshot(snap model.Snapshot) model.Snapshot {
	out := model.Snapshot{
		Pool:      snap.Pool,
		Unclaimed: snap.Unclaimed,
		Accounts:  make(map[common.Address]model.Account, len(snap.Accounts)),
	}
	for addr, acct := range snap.Accounts {
		out.Accounts[addr] = acct
	}
	return out
}

func applyBalances(dst map[balanceKey]uint256.Int, balances []model.Balance) {
	for _, bal := range balances {
		dst[balanceKey{owner: bal.Owner, asset: bal.Asset}] = bal.Amount
	}
}

func balanceList(balances map[balanceKey]uint256.Int) []model.Balance {
	out := make([]model.Balance, 0, len(balances))
	for key, amount := range balances {
		out = append(out, model.Balance{Owner: key.owner, Asset: key.asset, Amount: amount})
	}
	return out
}
