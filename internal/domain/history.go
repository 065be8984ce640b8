// Package domain defines the core interfaces and types for Merlin.
package domain

import "context"

// MaxTrackedDevices is the number of distinct device ids remembered per user.
const MaxTrackedDevices = 5

// DefaultAvgTransactionValue is the baseline used for users with no history.
const DefaultAvgTransactionValue = 50

// LastLocation is the most recently observed location for a user.
// Timestamp is epoch milliseconds; the zero value means never seen.
type LastLocation struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

// UserHistory is the behavioral baseline for one user. One entry per user;
// only the scoring engine mutates it, immediately after scoring the
// transaction that triggered the read.
type UserHistory struct {
	UserID                 string       `json:"userId"`
	LastLocation           LastLocation `json:"lastLocation"`
	LastDeviceIDs          []string     `json:"lastDeviceIds"`
	AvgTransactionValue    float64      `json:"avgTransactionValue"`
	RecentTransactionCount int          `json:"recentTransactionCount"`
}

// KnowsDevice reports whether the device id has been seen recently.
func (h *UserHistory) KnowsDevice(deviceID string) bool {
	for _, id := range h.LastDeviceIDs {
		if id == deviceID {
			return true
		}
	}
	return false
}

// DefaultHistory returns the zero-valued baseline for an unseen user.
// It is never inserted into a store; insertion only happens via Update.
func DefaultHistory(userID string) *UserHistory {
	return &UserHistory{
		UserID:              userID,
		LastLocation:        LastLocation{},
		LastDeviceIDs:       nil,
		AvgTransactionValue: DefaultAvgTransactionValue,
	}
}

// HistoryStore holds the latest known behavioral baseline per user.
// Implementations must serve lookups and apply exactly one update per
// analyzed transaction. A missing key is a valid steady state, not an error.
type HistoryStore interface {
	// Get returns the history for a user, or nil if never seen.
	Get(ctx context.Context, userID string) (*UserHistory, error)

	// GetOrDefault returns the stored history or a fresh default,
	// without inserting the default.
	GetOrDefault(ctx context.Context, userID string) (*UserHistory, error)

	// Update overwrites the entry from the analyzed transaction and the
	// history that was read before scoring it.
	Update(ctx context.Context, userID string, tx *Transaction, prior *UserHistory) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// HistoryConfig holds configuration for history store initialization.
type HistoryConfig struct {
	// Driver is the store type: "memory" or "redis"
	Driver string

	// SeedUsers pre-populates N demo users (0 disables seeding).
	SeedUsers int

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}
