// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, user_id, amount, currency, merchant,
			lat, lng, city, country,
			device_id, device_type, device_os, device_ip,
			ts, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.UserID, tx.Amount, tx.Currency, tx.Merchant,
		tx.Location.Lat, tx.Location.Lng, tx.Location.City, tx.Location.Country,
		tx.Device.ID, tx.Device.Type, tx.Device.OS, tx.Device.IP,
		tx.Timestamp, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	return nil
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	if txID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, amount, currency, merchant,
		       lat, lng, city, country,
		       device_id, device_type, device_os, device_ip, ts
		FROM transactions WHERE id = ?
	`

	var tx domain.Transaction
	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.UserID, &tx.Amount, &tx.Currency, &tx.Merchant,
		&tx.Location.Lat, &tx.Location.Lng, &tx.Location.City, &tx.Location.Country,
		&tx.Device.ID, &tx.Device.Type, &tx.Device.OS, &tx.Device.IP,
		&tx.Timestamp,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &tx, nil
}

// CountRecentByUser returns the number of stored transactions for a user
// since the given time. Supports windowed velocity counting.
func (r *SQLRepository) CountRecentByUser(ctx context.Context, userID string, since time.Time) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	query := `SELECT COUNT(*) FROM transactions WHERE user_id = ? AND ts >= ?`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, since.UnixMilli()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}

// SaveAnalysis stores a risk analysis.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, a *domain.RiskAnalysis) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: analysis id is required", ErrInvalidInput)
	}

	flags, _ := json.Marshal(a.Flags)

	query := `
		INSERT INTO analyses (
			id, transaction_id, user_id, score, decision, flags,
			rule_output, ml_output, processing_time_ms, is_fallback,
			ts, strategy_name, ambiguity_signal, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.TransactionID, a.UserID, a.Score, string(a.Decision), string(flags),
		a.RuleOutput, a.MLOutput, a.ProcessingTimeMs, boolToInt(a.IsFallback),
		a.Timestamp, a.StrategyName, a.AmbiguitySignal, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	return nil
}

// GetAnalysis retrieves a risk analysis by ID.
func (r *SQLRepository) GetAnalysis(ctx context.Context, analysisID string) (*domain.RiskAnalysis, error) {
	if analysisID == "" {
		return nil, fmt.Errorf("%w: analysis id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, transaction_id, user_id, score, decision, flags,
		       rule_output, ml_output, processing_time_ms, is_fallback,
		       ts, strategy_name, ambiguity_signal
		FROM analyses WHERE id = ?
	`

	return r.scanAnalysis(r.db.QueryRowContext(ctx, r.rebind(query), analysisID))
}

// ListRecentAnalyses returns the most recent analyses, newest first.
func (r *SQLRepository) ListRecentAnalyses(ctx context.Context, limit int) ([]*domain.RiskAnalysis, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, transaction_id, user_id, score, decision, flags,
		       rule_output, ml_output, processing_time_ms, is_fallback,
		       ts, strategy_name, ambiguity_signal
		FROM analyses ORDER BY ts DESC LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*domain.RiskAnalysis
	for rows.Next() {
		a, err := r.scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}

	return analyses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanAnalysis(row rowScanner) (*domain.RiskAnalysis, error) {
	var a domain.RiskAnalysis
	var flags string
	var decision string
	var fallback int
	var signal sql.NullString

	err := row.Scan(
		&a.ID, &a.TransactionID, &a.UserID, &a.Score, &decision, &flags,
		&a.RuleOutput, &a.MLOutput, &a.ProcessingTimeMs, &fallback,
		&a.Timestamp, &a.StrategyName, &signal,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan analysis: %w", err)
	}

	a.Decision = domain.Decision(decision)
	a.IsFallback = fallback != 0
	a.AmbiguitySignal = signal.String
	if err := json.Unmarshal([]byte(flags), &a.Flags); err != nil {
		return nil, fmt.Errorf("failed to decode flags: %w", err)
	}

	return &a, nil
}

// SaveRuleConfig stores or replaces an extension rule configuration.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	// Upsert keyed on id; updated_at tracks replacements.
	query := `
		INSERT INTO rule_configs (
			id, name, description, version, expression, weight, flag, enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			weight = excluded.weight,
			flag = excluded.flag,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Version,
		rule.Expression, rule.Weight, string(rule.Flag), boolToInt(rule.Enabled),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule config: %w", err)
	}

	return nil
}

// GetRuleConfig retrieves a rule configuration by ID.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, version, expression, weight, flag, enabled
		FROM rule_configs WHERE id = ?
	`

	var rule domain.RuleConfig
	var flag sql.NullString
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Version,
		&rule.Expression, &rule.Weight, &flag, &enabled,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule config: %w", err)
	}

	rule.Flag = domain.RiskFlag(flag.String)
	rule.Enabled = enabled != 0

	return &rule, nil
}

// ListRuleConfigs returns all stored rule configurations.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, weight, flag, enabled
		FROM rule_configs ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, fmt.Errorf("failed to list rule configs: %w", err)
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var rule domain.RuleConfig
		var flag sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Version,
			&rule.Expression, &rule.Weight, &flag, &enabled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rule config: %w", err)
		}

		rule.Flag = domain.RiskFlag(flag.String)
		rule.Enabled = enabled != 0
		configs = append(configs, &rule)
	}

	return configs, rows.Err()
}

// Ping checks database health.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
