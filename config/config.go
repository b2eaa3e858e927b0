// Package config loads server settings from an optional YAML file with
// CLOB_* environment overrides.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"clob/domain/market"
)

const EnvPrefix = "CLOB"

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Journal JournalConfig `mapstructure:"journal"`
	Market  MarketConfig  `mapstructure:"market"`
	Book    BookConfig    `mapstructure:"book"`
	GRPC    GRPCConfig    `mapstructure:"grpc"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Events  EventsConfig  `mapstructure:"events"`
	// Maintenance drives the periodic prune, fee expiry, snapshot and
	// journal truncation job.
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	// ProgramID derives open-orders account addresses.
	ProgramID string `mapstructure:"program_id"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type StoreConfig struct {
	Dir string `mapstructure:"dir"`
}

type JournalConfig struct {
	Dir             string        `mapstructure:"dir"`
	SegmentSize     int64         `mapstructure:"segment_size"`
	SegmentDuration time.Duration `mapstructure:"segment_duration"`
}

type MarketConfig struct {
	Name         string `mapstructure:"name"`
	BaseLotSize  int64  `mapstructure:"base_lot_size"`
	QuoteLotSize int64  `mapstructure:"quote_lot_size"`
	// Fees are in millionths of notional.
	MakerFee           int64  `mapstructure:"maker_fee"`
	TakerFee           int64  `mapstructure:"taker_fee"`
	FeePenalty         uint64 `mapstructure:"fee_penalty"`
	FeesExpiryInterval uint64 `mapstructure:"fees_expiry_interval"`
	TimeExpiry         int64  `mapstructure:"time_expiry"`
}

type BookConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type KafkaConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Client is "sarama" or "kafka-go".
	Client    string        `mapstructure:"client"`
	Brokers   []string      `mapstructure:"brokers"`
	Topic     string        `mapstructure:"topic"`
	ClientID  string        `mapstructure:"client_id"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

type EventsConfig struct {
	// Encoding is "proto" or "json".
	Encoding string `mapstructure:"encoding"`
}

type MaintenanceConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	PruneLimit       int           `mapstructure:"prune_limit"`
	SnapshotDir      string        `mapstructure:"snapshot_dir"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("store.dir", "data/store")
	v.SetDefault("journal.dir", "data/journal")
	v.SetDefault("journal.segment_size", 64<<20)
	v.SetDefault("journal.segment_duration", time.Duration(0))
	v.SetDefault("market.name", "SOL-USDC")
	v.SetDefault("market.base_lot_size", 1)
	v.SetDefault("market.quote_lot_size", 1)
	v.SetDefault("market.maker_fee", 0)
	v.SetDefault("market.taker_fee", 0)
	v.SetDefault("market.fee_penalty", 0)
	v.SetDefault("market.fees_expiry_interval", 0)
	v.SetDefault("market.time_expiry", 0)
	v.SetDefault("book.capacity", 1024)
	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.client", "sarama")
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "clob.events")
	v.SetDefault("kafka.client_id", "clob")
	v.SetDefault("kafka.interval", 250*time.Millisecond)
	v.SetDefault("kafka.batch_size", 256)
	v.SetDefault("events.encoding", "proto")
	v.SetDefault("maintenance.interval", 5*time.Second)
	v.SetDefault("maintenance.prune_limit", 64)
	v.SetDefault("maintenance.snapshot_dir", "data/snapshots")
	v.SetDefault("maintenance.snapshot_interval", time.Minute)
	v.SetDefault("program_id", "opnb2LAfJYbRMAHHvqjCwQxanZn7ReEHp1k81EohpZb")
}

// Load reads path if it is not empty, then applies CLOB_* environment
// variables (CLOB_MARKET_TAKER_FEE overrides market.taker_fee).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Book.Capacity < 3 {
		return errors.Newf("config: book.capacity %d too small", c.Book.Capacity)
	}
	switch c.Kafka.Client {
	case "sarama", "kafka-go":
	default:
		return errors.Newf("config: unknown kafka.client %q", c.Kafka.Client)
	}
	switch c.Events.Encoding {
	case "proto", "json":
	default:
		return errors.Newf("config: unknown events.encoding %q", c.Events.Encoding)
	}
	if c.Maintenance.Interval <= 0 {
		return errors.Newf("config: maintenance.interval %s must be positive", c.Maintenance.Interval)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("config: kafka enabled without brokers")
	}
	m := c.Market.Market()
	return m.Validate()
}

// Market builds a fresh market from the configured parameters.
func (c MarketConfig) Market() *market.Market {
	return &market.Market{
		Name:               c.Name,
		BaseLotSize:        c.BaseLotSize,
		QuoteLotSize:       c.QuoteLotSize,
		MakerFee:           c.MakerFee,
		TakerFee:           c.TakerFee,
		FeePenalty:         c.FeePenalty,
		FeesExpiryInterval: c.FeesExpiryInterval,
		TimeExpiry:         c.TimeExpiry,
	}
}
