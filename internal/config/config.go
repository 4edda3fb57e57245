// Package config defines the top-level configuration for the futures trading
// agent and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by FUTURESBOT_* environment variables.
type Config struct {
	Exchange   ExchangeConfig   `toml:"exchange"`
	Oracle     OracleConfig     `toml:"oracle"`
	Trading    TradingConfig    `toml:"trading"`
	Risk       RiskConfig       `toml:"risk"`
	Execution  ExecutionConfig  `toml:"execution"`
	Exit       ExitConfig       `toml:"exit"`
	Feed       FeedConfig       `toml:"feed"`
	Paper      PaperConfig      `toml:"paper"`
	Postgres   PostgresConfig   `toml:"postgres"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ExchangeConfig holds Binance USDⓈ-M futures credentials and client limits.
type ExchangeConfig struct {
	APIKey        string   `toml:"api_key"`
	APISecret     string   `toml:"api_secret"`
	APISecretFile string   `toml:"api_secret_file"`
	Testnet       bool     `toml:"testnet"`
	BaseURL       string   `toml:"base_url"`
	RecvWindow    int64    `toml:"recv_window"`
	HTTPTimeout   duration `toml:"http_timeout"`
	RateLimitRPS  float64  `toml:"rate_limit_rps"`
	RateBurst     int      `toml:"rate_burst"`
	MaxRetries    int      `toml:"max_retries"`
	BackoffBase   duration `toml:"backoff_base"`
	BackoffFactor float64  `toml:"backoff_factor"`
}

// OracleConfig holds the chat-completions endpoint used for decisions.
type OracleConfig struct {
	APIURL            string   `toml:"api_url"`
	APIKey            string   `toml:"api_key"`
	APIKeyFile        string   `toml:"api_key_file"`
	Model             string   `toml:"model"`
	Temperature       float64  `toml:"temperature"`
	MaxTokens         int      `toml:"max_tokens"`
	Timeout           duration `toml:"timeout"`
	MaxRetries        int      `toml:"max_retries"`
	BackoffBase       duration `toml:"backoff_base"`
	BackoffFactor     float64  `toml:"backoff_factor"`
	FallbackMode      string   `toml:"fallback_mode"`
	FallbackLossPct   float64  `toml:"fallback_loss_percent"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
	MaxLeverage       int      `toml:"max_leverage"`
}

// TradingConfig holds the cycle loop parameters.
type TradingConfig struct {
	Assets            []string `toml:"assets"`
	CheckInterval     duration `toml:"check_interval"`
	InitialCapital    float64  `toml:"initial_capital"`
	CompetitionStart  string   `toml:"competition_start"`
	DurationDays      int      `toml:"duration_days"`
	TimeFilterEnabled bool     `toml:"time_filter_enabled"`
	AvoidHoursUTC     []int    `toml:"avoid_hours_utc"`
	CloseOnShutdown   bool     `toml:"close_on_shutdown"`
	ShutdownTimeout   duration `toml:"shutdown_timeout"`
	LoopStuckAfter    duration `toml:"loop_stuck_after"`
	MaxConsecutiveErr int      `toml:"max_consecutive_errors"`
	LosingCloseAtL2   float64  `toml:"losing_close_at_l2_percent"`
	InstanceLockTTL   duration `toml:"instance_lock_ttl"`
}

// RiskConfig holds RiskGate limits, sizing tiers and circuit-breaker levels.
type RiskConfig struct {
	MaxPositionSizeFraction float64    `toml:"max_position_size_fraction"`
	MaxLeverage             int        `toml:"max_leverage"`
	MaxOpenPositions        int        `toml:"max_open_positions"`
	MaxPositionsPerSymbol   int        `toml:"max_positions_per_symbol"`
	MaxCorrelatedPositions  int        `toml:"max_correlated_positions"`
	CorrelationGroups       [][]string `toml:"correlation_groups"`
	MaxPortfolioRisk        float64    `toml:"max_portfolio_risk"`
	MinConfidence           float64    `toml:"min_confidence"`
	VolatileMinConfidence   float64    `toml:"volatile_min_confidence"`
	BalanceBuffer           float64    `toml:"balance_buffer"`
	MinStopLossPercent      float64    `toml:"min_stop_loss_percent"`
	MaxStopLossPercent      float64    `toml:"max_stop_loss_percent"`
	MinTakeProfitPercent    float64    `toml:"min_take_profit_percent"`

	HighConfidence     float64 `toml:"high_confidence"`
	MediumConfidence   float64 `toml:"medium_confidence"`
	HighTierFraction   float64 `toml:"high_tier_fraction"`
	MediumTierFraction float64 `toml:"medium_tier_fraction"`
	LowTierFraction    float64 `toml:"low_tier_fraction"`
	HighLeverageAt     float64 `toml:"high_leverage_confidence"`
	HighTierLeverage   int     `toml:"high_tier_leverage"`
	BaseTierLeverage   int     `toml:"base_tier_leverage"`

	PyramidMinConfidence float64 `toml:"pyramid_min_confidence"`

	DailyLossLimit float64       `toml:"daily_loss_limit"`
	Breaker        BreakerConfig `toml:"breaker"`
}

// BreakerConfig holds drawdown thresholds and the per-level overrides.
type BreakerConfig struct {
	L1Threshold   float64  `toml:"l1_threshold"`
	L2Threshold   float64  `toml:"l2_threshold"`
	L3Threshold   float64  `toml:"l3_threshold"`
	L4Threshold   float64  `toml:"l4_threshold"`
	L2Pause       duration `toml:"l2_pause"`
	L3Pause       duration `toml:"l3_pause"`
	L1SizeCap     float64  `toml:"l1_size_cap"`
	L2SizeCap     float64  `toml:"l2_size_cap"`
	L3SizeCap     float64  `toml:"l3_size_cap"`
	ReducedMaxLev int      `toml:"reduced_max_leverage"`
}

// TPTierConfig is one rung of the take-profit ladder.
type TPTierConfig struct {
	TargetPercent    float64 `toml:"target_percent"`
	QuantityFraction float64 `toml:"quantity_fraction"`
}

// ExecutionConfig holds order-management parameters.
type ExecutionConfig struct {
	TPLadder           []TPTierConfig `toml:"tp_ladder"`
	TrailActivationPct float64        `toml:"trail_activation_percent"`
	TrailTightPct      float64        `toml:"trail_tight_percent"`
	TrailWidePct       float64        `toml:"trail_wide_percent"`
	TrailAggressivePct float64        `toml:"trail_aggressive_percent"`
	HighVolatilityATR  float64        `toml:"high_volatility_atr_percent"`
	Partial40TrailPct  float64        `toml:"partial40_trail_percent"`
	BreakevenBufferPct float64        `toml:"breakeven_buffer_percent"`
	QuickLockPnLPct    float64        `toml:"quick_lock_pnl_percent"`
	QuickLockMaxConf   float64        `toml:"quick_lock_max_confidence"`
	StaleAfter         duration       `toml:"stale_after"`
	StaleBandPct       float64        `toml:"stale_band_percent"`
	DedupWindow        duration       `toml:"dedup_window"`
	ConvertAfterTier   int            `toml:"convert_after_tier"`
}

// ExitConfig holds ExitPolicy weights and thresholds.
type ExitConfig struct {
	ActionThreshold     float64 `toml:"action_threshold"`
	FullThreshold       float64 `toml:"full_threshold"`
	EmergencyLossPct    float64 `toml:"emergency_loss_percent"`
	ProfitProtectPnLPct float64 `toml:"profit_protect_pnl_percent"`
	ProfitProtectWeight float64 `toml:"profit_protect_weight"`
	ReversalWeight      float64 `toml:"reversal_weight"`
	RegimeWeight        float64 `toml:"regime_weight"`
	ExhaustionWeight    float64 `toml:"exhaustion_weight"`
	LossWeight          float64 `toml:"loss_weight"`
	LossThresholdPct    float64 `toml:"loss_threshold_percent"`
	OverboughtRSI       float64 `toml:"overbought_rsi"`
	OversoldRSI         float64 `toml:"oversold_rsi"`
	ExhaustionHighRSI   float64 `toml:"exhaustion_high_rsi"`
	ExhaustionLowRSI    float64 `toml:"exhaustion_low_rsi"`
}

// FeedConfig holds indicator feed parameters.
type FeedConfig struct {
	Interval string   `toml:"interval"`
	Limit    int      `toml:"limit"`
	CacheTTL duration `toml:"cache_ttl"`
}

// PaperConfig holds paper-trading parameters.
type PaperConfig struct {
	StartingBalance float64 `toml:"starting_balance"`
	FeeRate         float64 `toml:"fee_rate"`
	SlippageBps     float64 `toml:"slippage_bps"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ClickHouseConfig holds the time-series store connection.
type ClickHouseConfig struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	CreateBucket   bool   `toml:"create_bucket"`
}

// LogConfig holds the JSONL trade-log location. ArchiveCron is a 5-field
// cron expression for uploading the log directory to S3; empty disables it.
type LogConfig struct {
	Dir         string `toml:"dir"`
	ArchiveCron string `toml:"archive_cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimitPerMin int      `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			Testnet:       true,
			RecvWindow:    5000,
			HTTPTimeout:   duration{10 * time.Second},
			RateLimitRPS:  10,
			RateBurst:     20,
			MaxRetries:    3,
			BackoffBase:   duration{100 * time.Millisecond},
			BackoffFactor: 2,
		},
		Oracle: OracleConfig{
			APIURL:            "https://api.groq.com/openai/v1/chat/completions",
			Model:             "llama-3.1-8b-instant",
			Temperature:       0.3,
			MaxTokens:         500,
			Timeout:           duration{30 * time.Second},
			MaxRetries:        3,
			BackoffBase:       duration{time.Second},
			BackoffFactor:     2,
			FallbackMode:      "hold",
			FallbackLossPct:   5,
			RequestsPerMinute: 30,
			MaxLeverage:       5,
		},
		Trading: TradingConfig{
			Assets:            []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"},
			CheckInterval:     duration{30 * time.Second},
			InitialCapital:    100000,
			DurationDays:      14,
			AvoidHoursUTC:     []int{2, 3, 4, 5},
			CloseOnShutdown:   true,
			ShutdownTimeout:   duration{60 * time.Second},
			LoopStuckAfter:    duration{600 * time.Second},
			MaxConsecutiveErr: 5,
			LosingCloseAtL2:   -3,
			InstanceLockTTL:   duration{2 * time.Minute},
		},
		Risk: RiskConfig{
			MaxPositionSizeFraction: 0.20,
			MaxLeverage:             5,
			MaxOpenPositions:        3,
			MaxPositionsPerSymbol:   2,
			MaxCorrelatedPositions:  2,
			CorrelationGroups:       [][]string{{"BTCUSDT", "ETHUSDT"}, {"SOLUSDT", "BNBUSDT"}},
			MaxPortfolioRisk:        0.60,
			MinConfidence:           60,
			VolatileMinConfidence:   55,
			BalanceBuffer:           0.95,
			MinStopLossPercent:      2,
			MaxStopLossPercent:      8,
			MinTakeProfitPercent:    5,
			HighConfidence:          75,
			MediumConfidence:        70,
			HighTierFraction:        0.15,
			MediumTierFraction:      0.10,
			LowTierFraction:         0.05,
			HighLeverageAt:          75,
			HighTierLeverage:        5,
			BaseTierLeverage:        3,
			PyramidMinConfidence:    70,
			DailyLossLimit:          0.15,
			Breaker: BreakerConfig{
				L1Threshold:   0.25,
				L2Threshold:   0.30,
				L3Threshold:   0.35,
				L4Threshold:   0.40,
				L2Pause:       duration{12 * time.Hour},
				L3Pause:       duration{24 * time.Hour},
				L1SizeCap:     0.05,
				L2SizeCap:     0.03,
				L3SizeCap:     0.02,
				ReducedMaxLev: 2,
			},
		},
		Execution: ExecutionConfig{
			TPLadder: []TPTierConfig{
				{TargetPercent: 6, QuantityFraction: 0.30},
				{TargetPercent: 12, QuantityFraction: 0.40},
				{TargetPercent: 20, QuantityFraction: 0.30},
			},
			TrailActivationPct: 3,
			TrailTightPct:      1.5,
			TrailWidePct:       3.0,
			TrailAggressivePct: 0.8,
			HighVolatilityATR:  3.0,
			Partial40TrailPct:  1.0,
			BreakevenBufferPct: 0.1,
			QuickLockPnLPct:    2,
			QuickLockMaxConf:   75,
			StaleAfter:         duration{20 * time.Minute},
			StaleBandPct:       0.3,
			DedupWindow:        duration{2 * time.Minute},
			ConvertAfterTier:   2,
		},
		Exit: ExitConfig{
			ActionThreshold:     50,
			FullThreshold:       80,
			EmergencyLossPct:    -5,
			ProfitProtectPnLPct: 8,
			ProfitProtectWeight: 40,
			ReversalWeight:      30,
			RegimeWeight:        25,
			ExhaustionWeight:    20,
			LossWeight:          15,
			LossThresholdPct:    -2,
			OverboughtRSI:       75,
			OversoldRSI:         25,
			ExhaustionHighRSI:   80,
			ExhaustionLowRSI:    20,
		},
		Feed: FeedConfig{
			Interval: "1h",
			Limit:    100,
			CacheTTL: duration{5 * time.Minute},
		},
		Paper: PaperConfig{
			StartingBalance: 100000,
			FeeRate:         0.0004,
			SlippageBps:     2,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "futuresbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		ClickHouse: ClickHouseConfig{
			DSN: "clickhouse://default:@localhost:9000/default",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "futuresbot",
			ForcePathStyle: true,
			Prefix:         "logs",
		},
		Log: LogConfig{
			Dir:         "logs",
			ArchiveCron: "0 * * * *",
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			CORSOrigins:     []string{"*"},
			RateLimitPerMin: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"trade", "circuit_breaker", "error", "lifecycle"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"live":   true,
	"paper":  true,
	"server": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for logical errors and returns a combined
// error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, paper, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Mode == "live" {
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			errs = append(errs, "exchange: api_key and api_secret are required for mode live")
		}
	}
	if c.Exchange.RateLimitRPS <= 0 {
		errs = append(errs, "exchange: rate_limit_rps must be > 0")
	}
	if c.Exchange.MaxRetries < 1 {
		errs = append(errs, "exchange: max_retries must be >= 1")
	}

	if c.Mode != "server" {
		if c.Oracle.APIURL == "" {
			errs = append(errs, "oracle: api_url must not be empty")
		}
		switch c.Oracle.FallbackMode {
		case "hold", "rules":
		default:
			errs = append(errs, fmt.Sprintf("oracle: fallback_mode must be hold or rules, got %q", c.Oracle.FallbackMode))
		}
		if c.Oracle.MaxRetries < 1 {
			errs = append(errs, "oracle: max_retries must be >= 1")
		}
	}

	if len(c.Trading.Assets) == 0 {
		errs = append(errs, "trading: assets must not be empty")
	}
	if c.Trading.CheckInterval.Duration <= 0 {
		errs = append(errs, "trading: check_interval must be > 0")
	}
	if c.Trading.CompetitionStart != "" {
		if _, err := time.Parse(time.RFC3339, c.Trading.CompetitionStart); err != nil {
			errs = append(errs, fmt.Sprintf("trading: competition_start must be RFC3339: %v", err))
		}
	}
	for _, h := range c.Trading.AvoidHoursUTC {
		if h < 0 || h > 23 {
			errs = append(errs, fmt.Sprintf("trading: avoid_hours_utc entry %d out of range 0-23", h))
		}
	}

	r := c.Risk
	if r.MaxPositionSizeFraction <= 0 || r.MaxPositionSizeFraction > 1 {
		errs = append(errs, "risk: max_position_size_fraction must be in (0, 1]")
	}
	if r.MaxLeverage < 1 {
		errs = append(errs, "risk: max_leverage must be >= 1")
	}
	if r.MaxOpenPositions < 1 {
		errs = append(errs, "risk: max_open_positions must be >= 1")
	}
	if r.MaxPositionsPerSymbol < 1 {
		errs = append(errs, "risk: max_positions_per_symbol must be >= 1")
	}
	if r.HighConfidence < r.MediumConfidence {
		errs = append(errs, "risk: high_confidence must be >= medium_confidence")
	}
	if r.MinStopLossPercent > r.MaxStopLossPercent {
		errs = append(errs, "risk: min_stop_loss_percent must not exceed max_stop_loss_percent")
	}
	b := r.Breaker
	if !(b.L1Threshold < b.L2Threshold && b.L2Threshold < b.L3Threshold && b.L3Threshold < b.L4Threshold) {
		errs = append(errs, "risk.breaker: thresholds must be strictly increasing l1 < l2 < l3 < l4")
	}
	if b.L4Threshold >= 1 {
		errs = append(errs, "risk.breaker: l4_threshold must be < 1")
	}

	if len(c.Execution.TPLadder) == 0 {
		errs = append(errs, "execution: tp_ladder must not be empty")
	} else {
		var sum float64
		prev := 0.0
		for i, t := range c.Execution.TPLadder {
			sum += t.QuantityFraction
			if t.TargetPercent <= prev {
				errs = append(errs, fmt.Sprintf("execution: tp_ladder[%d] target must increase", i))
			}
			prev = t.TargetPercent
		}
		if sum < 0.999 || sum > 1.001 {
			errs = append(errs, fmt.Sprintf("execution: tp_ladder fractions must sum to 1, got %.3f", sum))
		}
		if c.Execution.ConvertAfterTier < 1 || c.Execution.ConvertAfterTier > len(c.Execution.TPLadder) {
			errs = append(errs, "execution: convert_after_tier must reference a ladder tier")
		}
	}
	if c.Execution.TrailTightPct <= 0 || c.Execution.TrailWidePct <= 0 || c.Execution.TrailAggressivePct <= 0 {
		errs = append(errs, "execution: trail distances must be > 0")
	}

	if c.Exit.ActionThreshold >= c.Exit.FullThreshold {
		errs = append(errs, "exit: action_threshold must be < full_threshold")
	}
	if c.Exit.EmergencyLossPct >= 0 {
		errs = append(errs, "exit: emergency_loss_percent must be negative")
	}

	if c.Postgres.Enabled {
		if c.Postgres.DSN == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.ClickHouse.Enabled && c.ClickHouse.DSN == "" {
		errs = append(errs, "clickhouse: dsn must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.Mode == "server" && !c.Postgres.Enabled {
		errs = append(errs, "server: mode server reads persisted state and requires postgres.enabled")
	}
	if c.Server.Enabled || c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// CompetitionStart returns the parsed competition start, or zero when unset.
func (c *Config) CompetitionStart() time.Time {
	t, err := time.Parse(time.RFC3339, c.Trading.CompetitionStart)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
