package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PriceSource reports prices in collateral units with 18 decimals.
type PriceSource interface {
	// SeigniorageSpot is the seigniorage token's spot value.
	SeigniorageSpot(ctx context.Context) (*uint256.Int, error)
	// StablePrice is the stable unit's market price, used to steer the collateral ratio.
	StablePrice(ctx context.Context) (*uint256.Int, error)
}

// Binder resolves an oracle address into a PriceSource.
type Binder interface {
	Bind(address common.Address) (PriceSource, error)
}

// Static serves configured prices. It is safe for concurrent use.
type Static struct {
	mu          sync.RWMutex
	seigniorage uint256.Int
	stable      uint256.Int
}

// NewStatic builds a static source; nil prices read as zero.
func NewStatic(seigniorage, stable *uint256.Int) *Static {
	s := &Static{}
	s.Set(seigniorage, stable)
	return s
}

// Set replaces both prices. A nil argument leaves that price unchanged.
func (s *Static) Set(seigniorage, stable *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seigniorage != nil {
		s.seigniorage.Set(seigniorage)
	}
	if stable != nil {
		s.stable.Set(stable)
	}
}

func (s *Static) SeigniorageSpot(context.Context) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(uint256.Int).Set(&s.seigniorage), nil
}

func (s *Static) StablePrice(context.Context) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(uint256.Int).Set(&s.stable), nil
}

// StaticBinder binds every address to the same static source.
type StaticBinder struct {
	Source *Static
}

func (b StaticBinder) Bind(address common.Address) (PriceSource, error) {
	if b.Source == nil {
		return nil, fmt.Errorf("static source not configured")
	}
	return b.Source, nil
}
