package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config for the whole application
type Config struct {
	App    AppConfig
	API    APIConfig
	Kafka  KafkaConfig
	Risk   RiskConfig
	Limits LimitsConfig
	Feed   FeedConfig
}

// General application configuration
type AppConfig struct {
	Name        string
	Environment string
	LogLevel    string
}

// Configuration for the API server
type APIConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       float64
	RateBurst       int
}

// Configuration for Kafka
type KafkaConfig struct {
	Brokers  []string
	Consumer KafkaConsumerConfig
	Producer KafkaProducerConfig
	Topics   KafkaTopicsConfig
}

// Kafka consumer configuration
type KafkaConsumerConfig struct {
	GroupID string
	MaxWait time.Duration
}

// Kafka producer configuration
type KafkaProducerConfig struct {
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// Kafka topics configuration
type KafkaTopicsConfig struct {
	MarketData    string
	Conditions    string
	PortfolioRisk string
	Alerts        string
	Liquidations  string
}

// Configuration for risk evaluation. Fixed-point fields are decimal
// strings at the 18-decimal scale.
type RiskConfig struct {
	DefaultImpliedVol   string
	DefaultRiskFreeRate string
	EmergencyMultiplier int64
	DailyVolatility     string
	VolOfVol            string
	RefreshInterval     time.Duration
	RefreshWorkers      int
	PriceStalenessBound time.Duration
}

// Configuration for the default risk limits
type LimitsConfig struct {
	MaxPositionSize    string
	MaxPortfolioSize   string
	MaxDelta           string
	MaxGamma           string
	MaxVega            string
	MaxVaR             string
	ConcentrationLimit int64
}

// Configuration for the market data feed
type FeedConfig struct {
	Enabled bool
}

// Loads the configuration from a file and environment variables
func Load() (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and environment cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.SetEnvPrefix("ALPHA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "alphaoptions-risk-engine")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.log_level", "info")

	// API defaults
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.read_timeout", "10s")
	viper.SetDefault("api.write_timeout", "10s")
	viper.SetDefault("api.shutdown_timeout", "30s")
	viper.SetDefault("api.rate_limit", 100)
	viper.SetDefault("api.rate_burst", 200)

	// Kafka defaults
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.consumer.group_id", "alphaoptions-risk")
	viper.SetDefault("kafka.consumer.max_wait", "500ms")
	viper.SetDefault("kafka.producer.batch_timeout", "10ms")
	viper.SetDefault("kafka.producer.write_timeout", "5s")
	viper.SetDefault("kafka.topics.market_data", "market.ticks")
	viper.SetDefault("kafka.topics.conditions", "market.conditions")
	viper.SetDefault("kafka.topics.portfolio_risk", "risk.portfolio")
	viper.SetDefault("kafka.topics.alerts", "risk.alerts")
	viper.SetDefault("kafka.topics.liquidations", "risk.liquidations")

	// Risk defaults
	viper.SetDefault("risk.default_implied_vol", "500000000000000000")    // 50%
	viper.SetDefault("risk.default_risk_free_rate", "50000000000000000") // 5%
	viper.SetDefault("risk.emergency_multiplier", 2)
	viper.SetDefault("risk.daily_volatility", "20000000000000000") // 2%
	viper.SetDefault("risk.vol_of_vol", "200000000000000000")      // 20%
	viper.SetDefault("risk.refresh_interval", "30s")
	viper.SetDefault("risk.refresh_workers", 4)
	viper.SetDefault("risk.price_staleness_bound", "1m")

	// Limits defaults: $500K per position, $5M per portfolio, VaR $250K,
	// concentration 50% of the book in one underlying.
	viper.SetDefault("limits.max_position_size", "500000000000000000000000")
	viper.SetDefault("limits.max_portfolio_size", "5000000000000000000000000")
	viper.SetDefault("limits.max_delta", "0")
	viper.SetDefault("limits.max_gamma", "0")
	viper.SetDefault("limits.max_vega", "0")
	viper.SetDefault("limits.max_var", "250000000000000000000000")
	viper.SetDefault("limits.concentration_limit", 5000)

	// Feed defaults
	viper.SetDefault("feed.enabled", true)
}
