package config

import "slices"

const redacted = "***"

// secrets lists every credential field of c.
func (c *Config) secrets() []*string {
	return []*string{
		&c.Exchange.APIKey,
		&c.Exchange.APISecret,
		&c.Oracle.APIKey,
		&c.Postgres.DSN,
		&c.Postgres.Password,
		&c.ClickHouse.DSN,
		&c.Redis.Password,
		&c.S3.AccessKey,
		&c.S3.SecretKey,
		&c.Server.APIKey,
		&c.Notify.TelegramToken,
		&c.Notify.DiscordWebhookURL,
	}
}

// RedactedConfig returns a copy of cfg that is safe to log or serve: every
// non-empty credential reads "***" and no slice is shared with cfg.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	for _, s := range out.secrets() {
		if *s != "" {
			*s = redacted
		}
	}

	out.Trading.Assets = slices.Clone(cfg.Trading.Assets)
	out.Trading.AvoidHoursUTC = slices.Clone(cfg.Trading.AvoidHoursUTC)
	out.Execution.TPLadder = slices.Clone(cfg.Execution.TPLadder)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	if cfg.Risk.CorrelationGroups != nil {
		out.Risk.CorrelationGroups = make([][]string, len(cfg.Risk.CorrelationGroups))
		for i, g := range cfg.Risk.CorrelationGroups {
			out.Risk.CorrelationGroups[i] = slices.Clone(g)
		}
	}
	return out
}
