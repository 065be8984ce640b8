package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. The scoring core
// keeps its working state in the history store; persistence records the
// transaction and analysis trail for retrieval and windowed velocity.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	CountRecentByUser(ctx context.Context, userID string, since time.Time) (int64, error)

	// Analysis operations
	SaveAnalysis(ctx context.Context, analysis *RiskAnalysis) error
	GetAnalysis(ctx context.Context, analysisID string) (*RiskAnalysis, error)
	ListRecentAnalyses(ctx context.Context, limit int) ([]*RiskAnalysis, error)

	// Extension rule configuration operations
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
