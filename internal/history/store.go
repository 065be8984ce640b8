// Package history provides per-user behavioral baseline stores.
package history

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

// New creates a history store based on configuration.
func New(cfg domain.HistoryConfig) (domain.HistoryStore, error) {
	switch cfg.Driver {
	case "", "memory":
		store := NewMemoryStore()
		if cfg.SeedUsers > 0 {
			store.Seed(cfg.SeedUsers, rand.New(rand.NewSource(time.Now().UnixNano())))
		}
		return store, nil

	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported history driver: %s", cfg.Driver)
	}
}

// appendDevice returns the device list after observing deviceID.
// Already-known ids keep their position; new ids are appended and the
// oldest entries are evicted past domain.MaxTrackedDevices.
func appendDevice(devices []string, deviceID string) []string {
	for _, id := range devices {
		if id == deviceID {
			out := make([]string, len(devices))
			copy(out, devices)
			return out
		}
	}
	out := make([]string, 0, len(devices)+1)
	out = append(out, devices...)
	out = append(out, deviceID)
	if len(out) > domain.MaxTrackedDevices {
		out = out[len(out)-domain.MaxTrackedDevices:]
	}
	return out
}

// applyUpdate builds the successor history entry from the analyzed
// transaction and the history read before scoring it. AvgTransactionValue
// is carried over unchanged: the baseline is static post-seed.
func applyUpdate(tx *domain.Transaction, prior *domain.UserHistory) *domain.UserHistory {
	return &domain.UserHistory{
		UserID: prior.UserID,
		LastLocation: domain.LastLocation{
			Lat:       tx.Location.Lat,
			Lng:       tx.Location.Lng,
			Timestamp: tx.Timestamp,
		},
		LastDeviceIDs:          appendDevice(prior.LastDeviceIDs, tx.Device.ID),
		AvgTransactionValue:    prior.AvgTransactionValue,
		RecentTransactionCount: prior.RecentTransactionCount + 1,
	}
}

// ensure both implementations satisfy the interface
var (
	_ domain.HistoryStore = (*MemoryStore)(nil)
	_ domain.HistoryStore = (*RedisStore)(nil)
)

var errUserIDRequired = fmt.Errorf("userID is required")

func checkUpdateArgs(userID string, tx *domain.Transaction, prior *domain.UserHistory) error {
	if userID == "" {
		return errUserIDRequired
	}
	if tx == nil || prior == nil {
		return fmt.Errorf("transaction and prior history are required")
	}
	return nil
}
