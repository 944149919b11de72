package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pegpool/internal/model"
)

// FileStore persists the pool snapshot and the bank balances as one JSON
// document, replaced atomically on every write.
type FileStore struct {
	path string

	mu       sync.Mutex
	loaded   bool
	snap     *model.Snapshot // nil until the pool is seeded
	balances map[balanceKey]uint256.Int
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (model.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return model.Snapshot{}, false, err
	}
	if s.snap == nil {
		return model.Snapshot{}, false, nil
	}
	return cloneSnapshot(*s.snap), true, nil
}

func (s *FileStore) Commit(ctx context.Context, change model.Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return err
	}
	next := model.Snapshot{Accounts: make(map[common.Address]model.Account)}
	if s.snap != nil {
		next = cloneSnapshot(*s.snap)
	}
	applyChangeset(&next, change)

	if err := s.write(&next, s.balances); err != nil {
		return err
	}
	s.snap = &next
	return nil
}

func (s *FileStore) LoadBalances(ctx context.Context) ([]model.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return balanceList(s.balances), nil
}

func (s *FileStore) SaveBalances(ctx context.Context, balances []model.Balance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return err
	}
	next := make(map[balanceKey]uint256.Int, len(s.balances)+len(balances))
	for key, amount := range s.balances {
		next[key] = amount
	}
	applyBalances(next, balances)

	if err := s.write(s.snap, next); err != nil {
		return err
	}
	s.balances = next
	return nil
}

func (s *FileStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	snap, balances, err := s.read()
	if err != nil {
		return err
	}
	s.snap = snap
	s.balances = balances
	s.loaded = true
	return nil
}

func (s *FileStore) read() (*model.Snapshot, map[balanceKey]uint256.Int, error) {
	empty := make(map[balanceKey]uint256.Int)
	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, empty, nil
		}
		return nil, nil, fmt.Errorf("stat state file: %w", err)
	}
	if stat.IsDir() {
		return nil, nil, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("read state file: %w", err)
	}
	var stored storedSnapshot
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, nil, fmt.Errorf("parse state file: %w", err)
	}
	if stored.Version != snapshotVersion {
		return nil, nil, fmt.Errorf("unsupported snapshot version %d", stored.Version)
	}
	balances, err := fromStoredBalances(stored.Balances)
	if err != nil {
		return nil, nil, err
	}
	if stored.Pool == nil {
		return nil, balances, nil
	}
	snap, err := fromStored(stored)
	if err != nil {
		return nil, nil, err
	}
	return &snap, balances, nil
}

func (s *FileStore) write(snap *model.Snapshot, balances map[balanceKey]uint256.Int) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	stored := storedSnapshot{Version: snapshotVersion}
	if snap != nil {
		stored = toStored(*snap)
	}
	stored.Balances = toStoredBalances(balances)
	stored.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
