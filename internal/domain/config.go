package domain

import "time"

// Config holds the complete Merlin configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backing services are used
	Tier Tier `json:"tier"`

	// Scoring engine settings
	Engine EngineConfig `json:"engine"`

	// Strategy rotation
	Strategies     []Strategy `json:"strategies"`
	RotationEvery  int        `json:"rotationEvery"`
	ReviewQueueCap int        `json:"reviewQueueCap"`

	// Component configurations
	History    HistoryConfig    `json:"history"`
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// VelocityMode determines how the velocity-spike rule counts activity.
type VelocityMode string

const (
	// VelocityModeHistory counts every transaction ever seen for the user.
	// Matches the reference behavior: the counter only increments.
	VelocityModeHistory VelocityMode = "history"

	// VelocityModeWindow counts transactions inside a sliding time window
	// backed by the cache counter.
	VelocityModeWindow VelocityMode = "window"
)

// EngineConfig holds the scoring engine thresholds and rule weights.
type EngineConfig struct {
	// Decision thresholds on the blended score
	BlockThreshold  float64 `json:"blockThreshold"`
	ReviewThreshold float64 `json:"reviewThreshold"`

	// Impossible travel: both conditions must hold
	ImpossibleSpeedKmh  float64 `json:"impossibleSpeedKmh"`
	MinTravelDistanceKm float64 `json:"minTravelDistanceKm"`

	// Rule weights (points added when a check fires)
	ImpossibleTravelWeight float64 `json:"impossibleTravelWeight"`
	VelocitySpikeWeight    float64 `json:"velocitySpikeWeight"`
	NewDeviceWeight        float64 `json:"newDeviceWeight"`
	HighValueWeight        float64 `json:"highValueWeight"`

	// Velocity spike fires when the counter exceeds this value
	VelocityThreshold int `json:"velocityThreshold"`

	// High value fires when amount exceeds this multiple of the baseline
	HighValueMultiplier float64 `json:"highValueMultiplier"`

	// Velocity counting mode and window
	VelocityMode   VelocityMode  `json:"velocityMode"`
	VelocityWindow time.Duration `json:"velocityWindow"`

	// Simulated inference settings
	FallbackProbability float64  `json:"fallbackProbability"`
	MLBaseScore         float64  `json:"mlBaseScore"`
	CryptoMerchantBonus float64  `json:"cryptoMerchantBonus"`
	RiskyCityBonus      float64  `json:"riskyCityBonus"`
	LargeAmountBonus    float64  `json:"largeAmountBonus"`
	LargeAmountFloor    float64  `json:"largeAmountFloor"`
	MaxJitter           float64  `json:"maxJitter"`
	HighRiskCities      []string `json:"highRiskCities"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels + in-memory history
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultEngineConfig returns the reference scoring constants.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BlockThreshold:         85,
		ReviewThreshold:        60,
		ImpossibleSpeedKmh:     1000,
		MinTravelDistanceKm:    50,
		ImpossibleTravelWeight: 45,
		VelocitySpikeWeight:    25,
		NewDeviceWeight:        20,
		HighValueWeight:        30,
		VelocityThreshold:      5,
		HighValueMultiplier:    10,
		VelocityMode:           VelocityModeHistory,
		VelocityWindow:         time.Minute,
		FallbackProbability:    0.01,
		MLBaseScore:            30,
		CryptoMerchantBonus:    35,
		RiskyCityBonus:         15,
		LargeAmountBonus:       10,
		LargeAmountFloor:       1000,
		MaxJitter:              25,
		HighRiskCities:         []string{"Lagos", "Moscow", "Dubai"},
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:           TierCommunity,
		Engine:         DefaultEngineConfig(),
		Strategies:     DefaultStrategies(),
		RotationEvery:  100,
		ReviewQueueCap: 500,
		History: HistoryConfig{
			Driver:    "memory",
			SeedUsers: 100,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./merlin.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "merlin",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.History = HistoryConfig{
		Driver:    "redis",
		RedisAddr: "localhost:6379",
	}
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "merlin",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
