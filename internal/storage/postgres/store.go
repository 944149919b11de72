package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pegpool/internal/model"
)

// Store persists pool state in Postgres. Each Commit is one transaction.
type Store struct {
	pool *pgxpool.Pool
	name string
}

// NewStore connects to dsn. name keys the pool_state row so several pools can share a database.
func NewStore(ctx context.Context, dsn, name string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if name == "" {
		name = "default"
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, name: name}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Load reads the pool row and every account row.
func (s *Store) Load(ctx context.Context) (model.Snapshot, bool, error) {
	var (
		row      poolRow
		oracle   string
		treasury string
		strategy string
		lastRefr int64
		snap     model.Snapshot
	)
	err := s.pool.QueryRow(ctx, `
		SELECT collateral_ratio::text, min_collateral_ratio::text, collateral_ratio_paused,
			minting_fee_rate::text, redemption_fee_rate::text, minting_paused, redemption_paused,
			last_refresh_ts, max_stable_supply::text, oracle, treasury, swap_strategy,
			collateral_held::text, stable_supply::text, accrued_fees::text,
			unclaimed_stable::text, unclaimed_collateral::text, unclaimed_seigniorage::text
		FROM pool_state WHERE name=$1
	`, s.name).Scan(
		&row.collateralRatio, &row.minCollateralRatio, &snap.Pool.CollateralRatioPaused,
		&row.mintingFeeRate, &row.redemptionFeeRate, &snap.Pool.MintingPaused, &snap.Pool.RedemptionPaused,
		&lastRefr, &row.maxStableSupply, &oracle, &treasury, &strategy,
		&row.collateralHeld, &row.stableSupply, &row.accruedFees,
		&row.unclaimedStable, &row.unclaimedCollateral, &row.unclaimedSeigniorage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, fmt.Errorf("load pool_state: %w", err)
	}

	var p parser
	snap.Pool.CollateralRatio = p.int(row.collateralRatio)
	snap.Pool.MinCollateralRatio = p.int(row.minCollateralRatio)
	snap.Pool.MintingFeeRate = p.int(row.mintingFeeRate)
	snap.Pool.RedemptionFeeRate = p.int(row.redemptionFeeRate)
	snap.Pool.LastRefreshTimestamp = uint64(lastRefr)
	snap.Pool.MaxStableSupply = p.int(row.maxStableSupply)
	snap.Pool.Oracle = common.HexToAddress(oracle)
	snap.Pool.Treasury = common.HexToAddress(treasury)
	snap.Pool.SwapStrategy = common.HexToAddress(strategy)
	snap.Pool.CollateralHeld = p.int(row.collateralHeld)
	snap.Pool.StableSupply = p.int(row.stableSupply)
	snap.Pool.AccruedFees = p.int(row.accruedFees)
	snap.Unclaimed.Stable = p.int(row.unclaimedStable)
	snap.Unclaimed.Collateral = p.int(row.unclaimedCollateral)
	snap.Unclaimed.Seigniorage = p.int(row.unclaimedSeigniorage)
	if p.err != nil {
		return model.Snapshot{}, false, fmt.Errorf("decode pool_state: %w", p.err)
	}

	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return model.Snapshot{}, false, err
	}
	snap.Accounts = accounts
	return snap, true, nil
}

func (s *Store) loadAccounts(ctx context.Context) (map[common.Address]model.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account, pending_stable::text, pending_collateral::text, pending_seigniorage::text, last_action_ts
		FROM pool_accounts WHERE pool_name=$1
	`, s.name)
	if err != nil {
		return nil, fmt.Errorf("load pool_accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[common.Address]model.Account)
	var p parser
	for rows.Next() {
		var (
			addr                         string
			stable, collateral, seignior string
			lastAction                   int64
		)
		if err := rows.Scan(&addr, &stable, &collateral, &seignior, &lastAction); err != nil {
			return nil, fmt.Errorf("scan pool_accounts: %w", err)
		}
		out[common.HexToAddress(addr)] = model.Account{
			PendingStable:       p.int(stable),
			PendingCollateral:   p.int(collateral),
			PendingSeigniorage:  p.int(seignior),
			LastActionTimestamp: uint64(lastAction),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool_accounts: %w", err)
	}
	if p.err != nil {
		return nil, fmt.Errorf("decode pool_accounts: %w", p.err)
	}
	return out, nil
}

// Commit upserts the pool row and the touched accounts in one transaction.
func (s *Store) Commit(ctx context.Context, change model.Changeset) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	p := change.Pool
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO pool_state (
			name, collateral_ratio, min_collateral_ratio, collateral_ratio_paused,
			minting_fee_rate, redemption_fee_rate, minting_paused, redemption_paused,
			last_refresh_ts, max_stable_supply, oracle, treasury, swap_strategy,
			collateral_held, stable_supply, accrued_fees,
			unclaimed_stable, unclaimed_collateral, unclaimed_seigniorage, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,now())
		ON CONFLICT (name)
		DO UPDATE SET
			collateral_ratio = EXCLUDED.collateral_ratio,
			min_collateral_ratio = EXCLUDED.min_collateral_ratio,
			collateral_ratio_paused = EXCLUDED.collateral_ratio_paused,
			minting_fee_rate = EXCLUDED.minting_fee_rate,
			redemption_fee_rate = EXCLUDED.redemption_fee_rate,
			minting_paused = EXCLUDED.minting_paused,
			redemption_paused = EXCLUDED.redemption_paused,
			last_refresh_ts = EXCLUDED.last_refresh_ts,
			max_stable_supply = EXCLUDED.max_stable_supply,
			oracle = EXCLUDED.oracle,
			treasury = EXCLUDED.treasury,
			swap_strategy = EXCLUDED.swap_strategy,
			collateral_held = EXCLUDED.collateral_held,
			stable_supply = EXCLUDED.stable_supply,
			accrued_fees = EXCLUDED.accrued_fees,
			unclaimed_stable = EXCLUDED.unclaimed_stable,
			unclaimed_collateral = EXCLUDED.unclaimed_collateral,
			unclaimed_seigniorage = EXCLUDED.unclaimed_seigniorage,
			updated_at = now()
	`,
		s.name,
		p.CollateralRatio.Dec(),
		p.MinCollateralRatio.Dec(),
		p.CollateralRatioPaused,
		p.MintingFeeRate.Dec(),
		p.RedemptionFeeRate.Dec(),
		p.MintingPaused,
		p.RedemptionPaused,
		int64(p.LastRefreshTimestamp),
		p.MaxStableSupply.Dec(),
		p.Oracle.Hex(),
		p.Treasury.Hex(),
		p.SwapStrategy.Hex(),
		p.CollateralHeld.Dec(),
		p.StableSupply.Dec(),
		p.AccruedFees.Dec(),
		change.Unclaimed.Stable.Dec(),
		change.Unclaimed.Collateral.Dec(),
		change.Unclaimed.Seigniorage.Dec(),
	)
	for addr, acct := range change.Accounts {
		batch.Queue(`
			INSERT INTO pool_accounts (
				pool_name, account, pending_stable, pending_collateral, pending_seigniorage, last_action_ts, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,now())
			ON CONFLICT (pool_name, account)
			DO UPDATE SET
				pending_stable = EXCLUDED.pending_stable,
				pending_collateral = EXCLUDED.pending_collateral,
				pending_seigniorage = EXCLUDED.pending_seigniorage,
				last_action_ts = EXCLUDED.last_action_ts,
				updated_at = now()
		`,
			s.name,
			addr.Hex(),
			acct.PendingStable.Dec(),
			acct.PendingCollateral.Dec(),
			acct.PendingSeigniorage.Dec(),
			int64(acct.LastActionTimestamp),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("commit statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	return tx.Commit(ctx)
}

// LoadBalances reads every bank balance stored under the pool name.
func (s *Store) LoadBalances(ctx context.Context) ([]model.Balance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT owner, asset, amount::text FROM bank_balances WHERE pool_name=$1
	`, s.name)
	if err != nil {
		return nil, fmt.Errorf("load bank_balances: %w", err)
	}
	defer rows.Close()

	var (
		out []model.Balance
		p   parser
	)
	for rows.Next() {
		var owner, asset, amount string
		if err := rows.Scan(&owner, &asset, &amount); err != nil {
			return nil, fmt.Errorf("scan bank_balances: %w", err)
		}
		out = append(out, model.Balance{
			Owner:  common.HexToAddress(owner),
			Asset:  model.Asset(asset),
			Amount: p.int(amount),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bank_balances: %w", err)
	}
	if p.err != nil {
		return nil, fmt.Errorf("decode bank_balances: %w", p.err)
	}
	return out, nil
}

// SaveBalances upserts balances in one transaction.
func (s *Store) SaveBalances(ctx context.Context, balances []model.Balance) error {
	if len(balances) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save balances: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, bal := range balances {
		batch.Queue(`
			INSERT INTO bank_balances (pool_name, owner, asset, amount, updated_at)
			VALUES ($1,$2,$3,$4,now())
			ON CONFLICT (pool_name, owner, asset)
			DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()
		`, s.name, bal.Owner.Hex(), string(bal.Asset), bal.Amount.Dec())
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("save balance %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	return tx.Commit(ctx)
}

type poolRow struct {
	collateralRatio      string
	minCollateralRatio   string
	mintingFeeRate       string
	redemptionFeeRate    string
	maxStableSupply      string
	collateralHeld       string
	stableSupply         string
	accruedFees          string
	unclaimedStable      string
	unclaimedCollateral  string
	unclaimedSeigniorage string
}

type parser struct {
	err error
}

func (p *parser) int(value string) uint256.Int {
	if p.err != nil {
		return uint256.Int{}
	}
	out, err := uint256.FromDecimal(value)
	if err != nil {
		p.err = fmt.Errorf("numeric %q: %w", value, err)
		return uint256.Int{}
	}
	return *out
}
