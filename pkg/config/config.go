package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"AdaptiveEnsemble/pkg/logger"
	"AdaptiveEnsemble/pkg/util"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Logger      logger.Config    `yaml:"logger"`
	Engine      EngineConfig     `yaml:"engine"`
	Models      ModelsConfig     `yaml:"models"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Metrics     MetricsConfig    `yaml:"metrics"`
}

// EngineConfig holds the learning core and backtest options.
type EngineConfig struct {
	InitialCapital        float64       `yaml:"initial_capital" default:"10000" validate:"gt=0"`
	TradingFee            float64       `yaml:"trading_fee" default:"0.001" validate:"gte=0,lt=1"`
	Slippage              float64       `yaml:"slippage" default:"0.0005" validate:"gte=0,lt=1"`
	MinConfidence         float64       `yaml:"min_confidence" default:"60" validate:"gte=0,lte=100"`
	PositionFraction      float64       `yaml:"position_fraction" default:"0.1" validate:"gt=0,lte=1"`
	HorizonMinutes        int           `yaml:"horizon_minutes" default:"30" validate:"gte=1"`
	OnlineBufferSize      int           `yaml:"online_buffer_size" default:"1000" validate:"gte=10"`
	RegimeLookback        int           `yaml:"regime_lookback" default:"50" validate:"gte=2"`
	RegimeMinSamples      int           `yaml:"regime_min_samples" default:"3" validate:"gte=1"`
	RetrainTradeThreshold int           `yaml:"retrain_trade_threshold" default:"100" validate:"gte=0"`
	RetrainTimeThreshold  time.Duration `yaml:"retrain_time_threshold" default:"72h" validate:"gte=0"`
	TrainWindow           int           `yaml:"train_window" default:"100" validate:"gte=1"`
	TestWindow            int           `yaml:"test_window" default:"20" validate:"gte=1"`
	DefaultTPPct          float64       `yaml:"default_tp_pct" default:"0.02" validate:"gte=0"`
	DefaultSLPct          float64       `yaml:"default_sl_pct" default:"0.01" validate:"gte=0,lt=1"`
	CVFolds               int           `yaml:"cv_folds" default:"3" validate:"gte=2"`
	TopN                  int           `yaml:"top_n" default:"3" validate:"gte=1"`
	MinRows               int           `yaml:"min_rows" default:"30" validate:"gte=1"`
	PenaltyLossThreshold  float64       `yaml:"penalty_loss_threshold" default:"-1"`
	PenaltyLookback       int           `yaml:"penalty_lookback" default:"50" validate:"gte=1"`
	AugmentMinRows        int           `yaml:"augment_min_rows" default:"50" validate:"gte=0"`
	Concurrency           int           `yaml:"concurrency" validate:"gte=0"` // 0 = GOMAXPROCS
}

// ModelsConfig overrides the stock hyperparameters of the model families.
type ModelsConfig struct {
	EnableXGBoost       bool    `yaml:"enable_xgboost" default:"true"`
	EnableLightGBM      bool    `yaml:"enable_lightgbm" default:"true"`
	EnableCatBoost      bool    `yaml:"enable_catboost" default:"true"`
	ForestTrees         int     `yaml:"forest_trees" default:"100" validate:"gte=1"`
	ForestMaxDepth      int     `yaml:"forest_max_depth" default:"8" validate:"gte=1"`
	BoosterRounds       int     `yaml:"booster_rounds" default:"100" validate:"gte=1"`
	BoosterLearningRate float64 `yaml:"booster_learning_rate" default:"0.1" validate:"gt=0,lte=1"`
	Seed                int64   `yaml:"seed" default:"42"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"aelc"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	PoolSize     int           `yaml:"pool_size" default:"10" validate:"gte=1"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
	Prefix       string        `yaml:"prefix" default:"aelc"`
	L1Size       int           `yaml:"l1_size" default:"8" validate:"gte=0"` // 0 disables the in-process layer
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]" validate:"required_if=Enabled true"`
	IntentTopic  string   `yaml:"intent_topic" default:"aelc.intents"`
	TradeTopic   string   `yaml:"trade_topic" default:"aelc.trades"`
	OutcomeTopic string   `yaml:"outcome_topic" default:"aelc.outcomes"`
	RequiredAcks int      `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"1s"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"aelc-core"`
		Workers    int           `yaml:"workers" default:"4" validate:"gte=1"`
		RetryMax   int           `yaml:"retry_max" default:"3" validate:"gte=0"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"aelc.outcomes.dlq"`
	} `yaml:"consumer"`
}

type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr" default:":9090"`
	Path            string        `yaml:"path" default:"/metrics"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
}

var validate = validator.New()

// Default returns a fully defaulted configuration.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// An empty path starts from the defaults.
func LoadWithEnv(path string) (*Config, error) {
	c := Default()
	if path != "" {
		var err error
		if c, err = Load(path); err != nil {
			return nil, err
		}
	}
	applyEnv(c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("AELC_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.ClickHouse.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.IntentTopic = v
	}
}

// Validate checks struct rules and the cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s: %s", verrs[0].Namespace(), describe(verrs[0]))
		}
		return err
	}
	if c.Kafka.Consumer.BackoffMin > c.Kafka.Consumer.BackoffMax {
		return fmt.Errorf("kafka.consumer.backoff_min must not exceed backoff_max")
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	default:
		return "failed validation: " + fe.Tag()
	}
}
