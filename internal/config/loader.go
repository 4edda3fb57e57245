package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/alanyoungcy/futuresbot/internal/crypto"
)

// SecretsPasswordEnv holds the password for api_secret_file and
// api_key_file. It is only read from the environment.
const SecretsPasswordEnv = "FUTURESBOT_SECRETS_PASSWORD"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FUTURESBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := resolveSecrets(&cfg, os.Getenv(SecretsPasswordEnv)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveSecrets decrypts file-backed credentials. A plaintext value from
// the file or the environment takes precedence.
func resolveSecrets(cfg *Config, password string) error {
	secret, err := crypto.Load(crypto.SecretSource{
		Raw:      cfg.Exchange.APISecret,
		Path:     cfg.Exchange.APISecretFile,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("config: exchange api_secret_file: %w", err)
	}
	cfg.Exchange.APISecret = secret

	key, err := crypto.Load(crypto.SecretSource{
		Raw:      cfg.Oracle.APIKey,
		Path:     cfg.Oracle.APIKeyFile,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("config: oracle api_key_file: %w", err)
	}
	cfg.Oracle.APIKey = key
	return nil
}

// applyEnvOverrides reads well-known FUTURESBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). The unprefixed testnet and oracle key names used by older
// deployments are honoured first so the prefixed names win.
func applyEnvOverrides(cfg *Config) {
	// ── Legacy names ──
	setStr(&cfg.Exchange.APIKey, "BINANCE_TESTNET_API_KEY")
	setStr(&cfg.Exchange.APISecret, "BINANCE_TESTNET_API_SECRET")
	setStr(&cfg.Oracle.APIKey, "GROQ_API_KEY")

	// ── Exchange ──
	setStr(&cfg.Exchange.APIKey, "FUTURESBOT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.APISecret, "FUTURESBOT_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.APISecretFile, "FUTURESBOT_EXCHANGE_API_SECRET_FILE")
	setBool(&cfg.Exchange.Testnet, "FUTURESBOT_EXCHANGE_TESTNET")
	setStr(&cfg.Exchange.BaseURL, "FUTURESBOT_EXCHANGE_BASE_URL")
	setInt64(&cfg.Exchange.RecvWindow, "FUTURESBOT_EXCHANGE_RECV_WINDOW")
	setDuration(&cfg.Exchange.HTTPTimeout, "FUTURESBOT_EXCHANGE_HTTP_TIMEOUT")
	setFloat64(&cfg.Exchange.RateLimitRPS, "FUTURESBOT_EXCHANGE_RATE_LIMIT_RPS")
	setInt(&cfg.Exchange.RateBurst, "FUTURESBOT_EXCHANGE_RATE_BURST")
	setInt(&cfg.Exchange.MaxRetries, "FUTURESBOT_EXCHANGE_MAX_RETRIES")

	// ── Oracle ──
	setStr(&cfg.Oracle.APIURL, "FUTURESBOT_ORACLE_API_URL")
	setStr(&cfg.Oracle.APIKey, "FUTURESBOT_ORACLE_API_KEY")
	setStr(&cfg.Oracle.APIKeyFile, "FUTURESBOT_ORACLE_API_KEY_FILE")
	setStr(&cfg.Oracle.Model, "FUTURESBOT_ORACLE_MODEL")
	setFloat64(&cfg.Oracle.Temperature, "FUTURESBOT_ORACLE_TEMPERATURE")
	setInt(&cfg.Oracle.MaxTokens, "FUTURESBOT_ORACLE_MAX_TOKENS")
	setDuration(&cfg.Oracle.Timeout, "FUTURESBOT_ORACLE_TIMEOUT")
	setInt(&cfg.Oracle.MaxRetries, "FUTURESBOT_ORACLE_MAX_RETRIES")
	setStr(&cfg.Oracle.FallbackMode, "FUTURESBOT_ORACLE_FALLBACK_MODE")
	setInt(&cfg.Oracle.RequestsPerMinute, "FUTURESBOT_ORACLE_REQUESTS_PER_MINUTE")

	// ── Trading ──
	setStringSlice(&cfg.Trading.Assets, "FUTURESBOT_TRADING_ASSETS")
	setDuration(&cfg.Trading.CheckInterval, "FUTURESBOT_TRADING_CHECK_INTERVAL")
	setFloat64(&cfg.Trading.InitialCapital, "FUTURESBOT_TRADING_INITIAL_CAPITAL")
	setStr(&cfg.Trading.CompetitionStart, "FUTURESBOT_TRADING_COMPETITION_START")
	setInt(&cfg.Trading.DurationDays, "FUTURESBOT_TRADING_DURATION_DAYS")
	setBool(&cfg.Trading.TimeFilterEnabled, "FUTURESBOT_TRADING_TIME_FILTER_ENABLED")
	setBool(&cfg.Trading.CloseOnShutdown, "FUTURESBOT_TRADING_CLOSE_ON_SHUTDOWN")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxPositionSizeFraction, "FUTURESBOT_RISK_MAX_POSITION_SIZE_FRACTION")
	setInt(&cfg.Risk.MaxLeverage, "FUTURESBOT_RISK_MAX_LEVERAGE")
	setInt(&cfg.Risk.MaxOpenPositions, "FUTURESBOT_RISK_MAX_OPEN_POSITIONS")
	setInt(&cfg.Risk.MaxPositionsPerSymbol, "FUTURESBOT_RISK_MAX_POSITIONS_PER_SYMBOL")
	setFloat64(&cfg.Risk.MinConfidence, "FUTURESBOT_RISK_MIN_CONFIDENCE")
	setFloat64(&cfg.Risk.DailyLossLimit, "FUTURESBOT_RISK_DAILY_LOSS_LIMIT")
	setFloat64(&cfg.Risk.Breaker.L4Threshold, "FUTURESBOT_RISK_BREAKER_L4_THRESHOLD")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "FUTURESBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "FUTURESBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "FUTURESBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FUTURESBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FUTURESBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FUTURESBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FUTURESBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FUTURESBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FUTURESBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FUTURESBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FUTURESBOT_POSTGRES_RUN_MIGRATIONS")

	// ── ClickHouse ──
	setBool(&cfg.ClickHouse.Enabled, "FUTURESBOT_CLICKHOUSE_ENABLED")
	setStr(&cfg.ClickHouse.DSN, "FUTURESBOT_CLICKHOUSE_DSN")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FUTURESBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FUTURESBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUTURESBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUTURESBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FUTURESBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FUTURESBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FUTURESBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FUTURESBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FUTURESBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FUTURESBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "FUTURESBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FUTURESBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FUTURESBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FUTURESBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FUTURESBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "FUTURESBOT_S3_PREFIX")
	setBool(&cfg.S3.CreateBucket, "FUTURESBOT_S3_CREATE_BUCKET")

	// ── Logs ──
	setStr(&cfg.Log.Dir, "FUTURESBOT_LOG_DIR")
	setStr(&cfg.Log.ArchiveCron, "FUTURESBOT_LOG_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FUTURESBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FUTURESBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "FUTURESBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "FUTURESBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "FUTURESBOT_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FUTURESBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FUTURESBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FUTURESBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FUTURESBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FUTURESBOT_MODE")
	setStr(&cfg.LogLevel, "FUTURESBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
