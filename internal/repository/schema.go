package repository

// Schema definitions for the Merlin database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    merchant TEXT NOT NULL,
    lat REAL NOT NULL,
    lng REAL NOT NULL,
    city TEXT,
    country TEXT,
    device_id TEXT NOT NULL,
    device_type TEXT,
    device_os TEXT,
    device_ip TEXT,
    ts BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_user_ts ON transactions(user_id, ts);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    decision TEXT NOT NULL,
    flags TEXT NOT NULL,
    rule_output INTEGER NOT NULL,
    ml_output INTEGER NOT NULL,
    processing_time_ms REAL NOT NULL,
    is_fallback INTEGER NOT NULL DEFAULT 0,
    ts BIGINT NOT NULL,
    strategy_name TEXT NOT NULL,
    ambiguity_signal TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_tx ON analyses(transaction_id);
CREATE INDEX IF NOT EXISTS idx_analyses_user ON analyses(user_id);
CREATE INDEX IF NOT EXISTS idx_analyses_decision ON analyses(decision);
CREATE INDEX IF NOT EXISTS idx_analyses_ts ON analyses(ts);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT,
    expression TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 0,
    flag TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id)
);
`

// AllSchemas returns all schema statements in creation order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAnalyses,
		schemaRuleConfigs,
	}
}
