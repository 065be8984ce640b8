// Package simulator generates a synthetic transaction stream with a
// configurable fraud bias, used by the load generator and integration
// tests to exercise the scoring pipeline end to end.
package simulator

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/opensource-finance/merlin/internal/domain"
)

var merchants = []string{
	"Amazon", "Apple Store", "Starbucks", "Walmart", "Steam", "Uber",
	"Airbnb", "Nike", "Netflix", "Best Buy", "Zelle Transfer", "Binance",
}

type city struct {
	name    string
	country string
	lat     float64
	lng     float64
}

var cities = []city{
	{"New York", "USA", 40.7128, -74.0060},
	{"London", "UK", 51.5074, -0.1278},
	{"Tokyo", "Japan", 35.6895, 139.6917},
	{"Berlin", "Germany", 52.5200, 13.4050},
	{"San Francisco", "USA", 37.7749, -122.4194},
	{"Lagos", "Nigeria", 6.5244, 3.3792},
	{"Moscow", "Russia", 55.7558, 37.6173},
	{"Dubai", "UAE", 25.2048, 55.2708},
}

// Config controls the generated stream.
type Config struct {
	// FraudBias is the fraction of transactions generated with
	// fraud-shaped features. Defaults to 0.15.
	FraudBias float64
	// UserPool is how many distinct user ids the stream draws from.
	// Defaults to 50.
	UserPool int
	// Now returns the timestamp stamped on generated transactions,
	// as epoch milliseconds. Optional.
	Now func() int64
}

// Generator produces synthetic transactions.
type Generator struct {
	cfg Config

	mu  sync.Mutex
	rnd *rand.Rand
}

// New creates a generator. A nil source seeds from the default rand source.
func New(cfg Config, src rand.Source) *Generator {
	if cfg.FraudBias == 0 {
		cfg.FraudBias = 0.15
	}
	if cfg.UserPool <= 0 {
		cfg.UserPool = 50
	}
	if src == nil {
		src = rand.NewSource(rand.Int63())
	}
	return &Generator{cfg: cfg, rnd: rand.New(src)}
}

// Next generates one transaction. Roughly FraudBias of the output has
// displaced coordinates, an unrecognized device, and inflated amounts,
// which is enough to trip the geo, device, and value checks.
func (g *Generator) Next() *domain.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()

	fraudulent := g.rnd.Float64() < g.cfg.FraudBias
	loc := cities[g.rnd.Intn(len(cities))]

	var latOffset, lngOffset float64
	if fraudulent {
		latOffset = g.rnd.Float64()*40 - 20
		lngOffset = g.rnd.Float64()*40 - 20
	}

	amountCap := 500.0
	deviceID := fmt.Sprintf("dev_%d", g.rnd.Intn(100))
	if fraudulent {
		amountCap = 5000.0
		deviceID = "dev_unknown"
	}

	deviceType := "Desktop"
	if g.rnd.Float64() > 0.5 {
		deviceType = "Mobile"
	}
	deviceOS := "Android"
	if g.rnd.Float64() > 0.5 {
		deviceOS = "iOS"
	}

	ts := int64(0)
	if g.cfg.Now != nil {
		ts = g.cfg.Now()
	}

	return &domain.Transaction{
		ID:        uuid.New().String(),
		Timestamp: ts,
		UserID:    fmt.Sprintf("user_%d", g.rnd.Intn(g.cfg.UserPool)+1),
		Amount:    g.rnd.Float64()*amountCap + 5,
		Currency:  "USD",
		Merchant:  merchants[g.rnd.Intn(len(merchants))],
		Location: domain.Location{
			Lat:     loc.lat + latOffset,
			Lng:     loc.lng + lngOffset,
			City:    loc.name,
			Country: loc.country,
		},
		Device: domain.Device{
			ID:   deviceID,
			Type: deviceType,
			OS:   deviceOS,
			IP:   fmt.Sprintf("%d.%d.0.1", g.rnd.Intn(255), g.rnd.Intn(255)),
		},
	}
}
