package postgres

// NUMERIC(78,0) holds any uint256.
const schema = `
CREATE TABLE IF NOT EXISTS pool_state (
	name                    TEXT PRIMARY KEY,
	collateral_ratio        NUMERIC(78,0) NOT NULL,
	min_collateral_ratio    NUMERIC(78,0) NOT NULL,
	collateral_ratio_paused BOOLEAN NOT NULL,
	minting_fee_rate        NUMERIC(78,0) NOT NULL,
	redemption_fee_rate     NUMERIC(78,0) NOT NULL,
	minting_paused          BOOLEAN NOT NULL,
	redemption_paused       BOOLEAN NOT NULL,
	last_refresh_ts         BIGINT NOT NULL,
	max_stable_supply       NUMERIC(78,0) NOT NULL,
	oracle                  TEXT NOT NULL,
	treasury                TEXT NOT NULL,
	swap_strategy           TEXT NOT NULL,
	collateral_held         NUMERIC(78,0) NOT NULL,
	stable_supply           NUMERIC(78,0) NOT NULL,
	accrued_fees            NUMERIC(78,0) NOT NULL,
	unclaimed_stable        NUMERIC(78,0) NOT NULL,
	unclaimed_collateral    NUMERIC(78,0) NOT NULL,
	unclaimed_seigniorage   NUMERIC(78,0) NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pool_accounts (
	pool_name           TEXT NOT NULL REFERENCES pool_state(name),
	account             TEXT NOT NULL,
	pending_stable      NUMERIC(78,0) NOT NULL,
	pending_collateral  NUMERIC(78,0) NOT NULL,
	pending_seigniorage NUMERIC(78,0) NOT NULL,
	last_action_ts      BIGINT NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (pool_name, account)
);

CREATE TABLE IF NOT EXISTS bank_balances (
	pool_name  TEXT NOT NULL,
	owner      TEXT NOT NULL,
	asset      TEXT NOT NULL,
	amount     NUMERIC(78,0) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (pool_name, owner, asset)
);
`
