package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"IgniteX/pkg/util"
)

type Config struct {
	Environment string   `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Symbols     []string `yaml:"symbols" validate:"required,min=1,dive,required"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
		Digest struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"digest"`
	} `yaml:"log"`

	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`

	Metrics struct {
		Path string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" validate:"required_if=Enabled true"`
		TicksTopic   string   `yaml:"ticks_topic" default:"market.ticks"`
		HealthTopic  string   `yaml:"health_topic" default:"market.source-health"`
		EventsTopic  string   `yaml:"events_topic" default:"ignitex.events"`
		LogsTopic    string   `yaml:"logs_topic" default:"ignitex.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"5ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"5s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"ignitex-core"`
			Workers    int           `yaml:"workers" default:"4" validate:"min=1"`
			BufferSize int           `yaml:"buffer_size" default:"1024"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"ignitex"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`

	Redis struct {
		Enabled   bool   `yaml:"enabled"`
		Addr      string `yaml:"addr" default:"localhost:6379"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		PoolSize  int    `yaml:"pool_size" default:"10"`
		KeyPrefix string `yaml:"key_prefix" default:"ignitex:"`
	} `yaml:"redis"`

	Feed struct {
		Enabled        bool          `yaml:"enabled"`
		URL            string        `yaml:"url" validate:"required_if=Enabled true"`
		SourceID       string        `yaml:"source_id" default:"ws-aggregator"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"feed"`

	Ingest struct {
		MaxRPS       float64       `yaml:"max_rps" default:"50" validate:"gt=0"`
		BufferSize   int           `yaml:"buffer_size" default:"1024" validate:"min=1"`
		ArchiveBatch int           `yaml:"archive_batch" default:"500" validate:"min=1"`
		ArchiveFlush time.Duration `yaml:"archive_flush" default:"2s" validate:"gt=0"`
	} `yaml:"ingest"`

	Market struct {
		WindowSize       int           `yaml:"window_size" default:"120" validate:"min=2"`
		MaxAge           time.Duration `yaml:"max_age" default:"15m" validate:"gt=0"`
		SourceStaleAfter time.Duration `yaml:"source_stale_after" default:"30s" validate:"gt=0"`
		LatencyBudget    time.Duration `yaml:"latency_budget" default:"2s" validate:"gt=0"`
		ExpectedSources  int           `yaml:"expected_sources" default:"2" validate:"min=1"`
		VolumeWindow     time.Duration `yaml:"volume_window" default:"5m" validate:"gt=0"`
	} `yaml:"market"`

	Ensemble struct {
		Interval         time.Duration `yaml:"interval" default:"10s" validate:"gt=0"`
		Budget           time.Duration `yaml:"budget" default:"3s" validate:"gt=0"`
		Concurrency      int           `yaml:"concurrency" default:"8" validate:"min=1"`
		MajorityFraction float64       `yaml:"majority_fraction" default:"0.6"`
		MinParticipation int           `yaml:"min_participation" default:"2" validate:"min=1"`
		ErrorThreshold   int           `yaml:"error_threshold" default:"3" validate:"min=1"`
		MinWindow        int           `yaml:"min_window" default:"20" validate:"min=2"`
		HealthPersist    time.Duration `yaml:"health_persist" default:"1m"`
	} `yaml:"ensemble"`

	Strategies struct {
		Enabled  []string `yaml:"enabled" default:"[\"momentum\",\"mean_reversion\",\"volume_breakout\",\"ma_crossover\",\"volatility_breakout\"]" validate:"min=1,dive,oneof=momentum mean_reversion volume_breakout ma_crossover volatility_breakout remote"`
		Momentum struct {
			Lookback   int     `yaml:"lookback" default:"20" validate:"min=2"`
			MinMovePct float64 `yaml:"min_move_pct" default:"0.3"`
		} `yaml:"momentum"`
		MeanReversion struct {
			Lookback int     `yaml:"lookback" default:"40" validate:"min=3"`
			ZEntry   float64 `yaml:"z_entry" default:"2" validate:"gt=0"`
		} `yaml:"mean_reversion"`
		VolumeBreakout struct {
			Lookback   int     `yaml:"lookback" default:"30" validate:"min=3"`
			Multiplier float64 `yaml:"multiplier" default:"2" validate:"gt=1"`
		} `yaml:"volume_breakout"`
		MACrossover struct {
			Fast int `yaml:"fast" default:"5" validate:"min=1"`
			Slow int `yaml:"slow" default:"20" validate:"gtfield=Fast"`
		} `yaml:"ma_crossover"`
		VolatilityBreakout struct {
			Lookback int     `yaml:"lookback" default:"30" validate:"min=3"`
			K        float64 `yaml:"k" default:"1.5" validate:"gt=0"`
		} `yaml:"volatility_breakout"`
		Remote struct {
			URL     string        `yaml:"url"`
			Timeout time.Duration `yaml:"timeout" default:"2s"`
		} `yaml:"remote"`
	} `yaml:"strategies"`

	Threshold struct {
		Initial        float64       `yaml:"initial" default:"1.0" validate:"gt=0"`
		Min            float64       `yaml:"min" default:"0.2" validate:"gt=0"`
		Max            float64       `yaml:"max" default:"6" validate:"gtfield=Min"`
		Step           float64       `yaml:"step" default:"1.15" validate:"gt=1"`
		TargetInterval time.Duration `yaml:"target_interval" default:"5m" validate:"gt=0"`
		Tolerance      float64       `yaml:"tolerance" default:"0.5" validate:"gt=0,lt=1"`
		Recalibrate    time.Duration `yaml:"recalibrate" default:"1m" validate:"gt=0"`
		MaxSilence     time.Duration `yaml:"max_silence" default:"30m" validate:"gt=0"`
	} `yaml:"threshold"`

	Gate struct {
		MinConfidence  float64            `yaml:"min_confidence" default:"50" validate:"min=0,max=100"`
		MinAgreeing    int                `yaml:"min_agreeing" default:"2" validate:"min=1"`
		MinRiskReward  float64            `yaml:"min_risk_reward" default:"1.5" validate:"gt=0"`
		MinVolume      float64            `yaml:"min_volume" validate:"min=0"`
		SymbolVolume   map[string]float64 `yaml:"symbol_volume"`
		MinDataQuality float64            `yaml:"min_data_quality" default:"60" validate:"min=0,max=100"`
		MinSources     int                `yaml:"min_sources" default:"1" validate:"min=1"`
		Cooldown       time.Duration      `yaml:"cooldown" default:"30m" validate:"gt=0"`
		LockTTL        time.Duration      `yaml:"lock_ttl" default:"5s"`
		Weights        struct {
			Pattern     float64 `yaml:"pattern" default:"0.3"`
			Consensus   float64 `yaml:"consensus" default:"0.2"`
			RiskReward  float64 `yaml:"risk_reward" default:"0.2"`
			Liquidity   float64 `yaml:"liquidity" default:"0.1"`
			DataQuality float64 `yaml:"data_quality" default:"0.15"`
			Uniqueness  float64 `yaml:"uniqueness" default:"0.05"`
		} `yaml:"weights"`
	} `yaml:"gate"`

	Levels struct {
		StopMultiplier  float64       `yaml:"stop_multiplier" default:"3" validate:"gt=0"`
		MinRiskPct      float64       `yaml:"min_risk_pct" default:"0.3" validate:"gt=0"`
		MaxRiskPct      float64       `yaml:"max_risk_pct" default:"5" validate:"gtfield=MinRiskPct"`
		TargetMultiples []float64     `yaml:"target_multiples" default:"[2,3,4.5]" validate:"min=1,dive,gt=0"`
		TTL             time.Duration `yaml:"ttl" default:"4h" validate:"gt=0"`
	} `yaml:"levels"`

	Lifecycle struct {
		Interval     time.Duration `yaml:"interval" default:"5s" validate:"gt=0"`
		TargetPolicy string        `yaml:"target_policy" default:"final" validate:"oneof=final first"`
		SkipRestore  bool          `yaml:"skip_restore"`
		HistoryLimit int           `yaml:"history_limit" default:"500" validate:"min=1"`
	} `yaml:"lifecycle"`

	Distribution struct {
		Interval       time.Duration `yaml:"interval" default:"5s" validate:"gt=0"`
		ResetHour      int           `yaml:"reset_hour"`
		FreeMinQuality float64       `yaml:"free_min_quality" default:"75" validate:"min=0,max=100"`
		FeedSize       int           `yaml:"feed_size" default:"200" validate:"min=1"`
		Free           struct {
			DailyLimit int      `yaml:"daily_limit" default:"2" validate:"min=0"`
			Windows    []string `yaml:"windows" default:"[\"08:00\",\"20:00\"]" validate:"min=1"`
		} `yaml:"free"`
		Pro struct {
			DailyLimit int           `yaml:"daily_limit" default:"20" validate:"min=0"`
			Delay      time.Duration `yaml:"delay" default:"2m"`
		} `yaml:"pro"`
		Max struct {
			DailyLimit int           `yaml:"daily_limit" default:"100" validate:"min=0"`
			Delay      time.Duration `yaml:"delay"`
		} `yaml:"max"`
	} `yaml:"distribution"`

	Performance struct {
		RollingWindow int     `yaml:"rolling_window" default:"20" validate:"min=1"`
		MinSamples    int     `yaml:"min_samples" default:"5" validate:"min=1"`
		MinWeight     float64 `yaml:"min_weight" default:"0.25" validate:"gt=0,lte=1"`
		WinRateFloor  float64 `yaml:"win_rate_floor" default:"0.35" validate:"min=0,max=1"`
		WinRateCeil   float64 `yaml:"win_rate_ceil" default:"0.65" validate:"gtfield=WinRateFloor,lte=1"`
	} `yaml:"performance"`

	Notify struct {
		Buffer         int           `yaml:"buffer" default:"64" validate:"min=1"`
		WebhookURL     string        `yaml:"webhook_url"`
		WebhookTimeout time.Duration `yaml:"webhook_timeout" default:"3s"`
		// Queue settings apply when Redis is enabled and webhooks go through
		// the retrying delivery queue.
		Queue struct {
			Workers    int           `yaml:"workers" default:"2" validate:"min=1"`
			RetryLimit int           `yaml:"retry_limit" default:"5" validate:"min=0"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"5s" validate:"gt=0"`
		} `yaml:"queue"`
	} `yaml:"notify"`

	Cache struct {
		HistoryTTL time.Duration `yaml:"history_ttl" default:"5s"`
		MemorySize int           `yaml:"memory_size" default:"10000" validate:"min=1"`
		MemoryTTL  time.Duration `yaml:"memory_ttl" default:"30s" validate:"gt=0"`
	} `yaml:"cache"`
}

var validate = validator.New()

// Load reads a YAML configuration file, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = splitList(strings.ToUpper(v))
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse decodes YAML bytes and fills defaults without validating.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	for i, s := range c.Symbols {
		c.Symbols[i] = util.NormalizeSymbol(s)
	}
	return &c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Validate checks tag rules and the constraints that span several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if f := c.Ensemble.MajorityFraction; f < 0.5 || f >= 1 {
		return fmt.Errorf("ensemble.majority_fraction must be in [0.5, 1), got %v", f)
	}
	if c.Ensemble.Budget >= c.Ensemble.Interval {
		return fmt.Errorf("ensemble.budget (%s) must be shorter than ensemble.interval (%s)", c.Ensemble.Budget, c.Ensemble.Interval)
	}
	for i := 1; i < len(c.Levels.TargetMultiples); i++ {
		if c.Levels.TargetMultiples[i] <= c.Levels.TargetMultiples[i-1] {
			return fmt.Errorf("levels.target_multiples must be strictly ascending")
		}
	}
	if c.Distribution.ResetHour < 0 || c.Distribution.ResetHour > 23 {
		return fmt.Errorf("distribution.reset_hour must be in [0, 23], got %d", c.Distribution.ResetHour)
	}
	for _, w := range c.Distribution.Free.Windows {
		if _, err := time.Parse("15:04", w); err != nil {
			return fmt.Errorf("distribution.free.windows: %q is not HH:MM", w)
		}
	}
	if c.Distribution.Max.Delay > c.Distribution.Pro.Delay {
		return fmt.Errorf("distribution.max.delay must not exceed distribution.pro.delay")
	}
	if c.Distribution.Max.DailyLimit < c.Distribution.Pro.DailyLimit {
		return fmt.Errorf("distribution.max.daily_limit must be at least distribution.pro.daily_limit")
	}
	for _, s := range c.Strategies.Enabled {
		if s == "remote" && c.Strategies.Remote.URL == "" {
			return fmt.Errorf("strategies.remote.url is required when the remote strategy is enabled")
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
