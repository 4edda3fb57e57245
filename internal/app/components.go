package app

import (
	"time"

	"github.com/alanyoungcy/futuresbot/internal/config"
	"github.com/alanyoungcy/futuresbot/internal/executor"
	"github.com/alanyoungcy/futuresbot/internal/exitpolicy"
	"github.com/alanyoungcy/futuresbot/internal/indicator"
	"github.com/alanyoungcy/futuresbot/internal/oracle"
	"github.com/alanyoungcy/futuresbot/internal/orchestrator"
	"github.com/alanyoungcy/futuresbot/internal/platform/binance"
	"github.com/alanyoungcy/futuresbot/internal/platform/paper"
	"github.com/alanyoungcy/futuresbot/internal/retry"
	"github.com/alanyoungcy/futuresbot/internal/risk"
	"github.com/alanyoungcy/futuresbot/internal/tradelog"
)

// The functions below translate the TOML config into each package's own
// Config so the packages never import internal/config.

func binanceConfig(c *config.Config) binance.Config {
	e := c.Exchange
	return binance.Config{
		APIKey:      e.APIKey,
		APISecret:   e.APISecret,
		Testnet:     e.Testnet,
		BaseURL:     e.BaseURL,
		RecvWindow:  e.RecvWindow,
		HTTPTimeout: e.HTTPTimeout.Duration,
		RateRPS:     e.RateLimitRPS,
		RateBurst:   e.RateBurst,
		Retry: retry.Policy{
			Attempts: e.MaxRetries,
			Base:     e.BackoffBase.Duration,
			Factor:   e.BackoffFactor,
		},
	}
}

func paperConfig(c *config.Config) paper.Config {
	return paper.Config{
		StartingBalance: c.Paper.StartingBalance,
		FeeRate:         c.Paper.FeeRate,
		SlippageBps:     c.Paper.SlippageBps,
	}
}

func oracleConfig(c *config.Config) oracle.Config {
	o := c.Oracle
	return oracle.Config{
		URL:         o.APIURL,
		APIKey:      o.APIKey,
		Model:       o.Model,
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
		Timeout:     o.Timeout.Duration,
		Retry: retry.Policy{
			Attempts: o.MaxRetries,
			Base:     o.BackoffBase.Duration,
			Factor:   o.BackoffFactor,
		},
		RequestsPerMinute: o.RequestsPerMinute,
		Limits:            oracle.DefaultLimits(o.MaxLeverage),
	}
}

func feedConfig(c *config.Config) indicator.Config {
	return indicator.Config{
		Interval: c.Feed.Interval,
		Limit:    c.Feed.Limit,
		CacheTTL: c.Feed.CacheTTL.Duration,
	}
}

func gateConfig(c *config.Config) risk.GateConfig {
	r := c.Risk
	return risk.GateConfig{
		Sizing: risk.SizingConfig{
			HighConfidence:     r.HighConfidence,
			MediumConfidence:   r.MediumConfidence,
			HighTierFraction:   r.HighTierFraction,
			MediumTierFraction: r.MediumTierFraction,
			LowTierFraction:    r.LowTierFraction,
			HighLeverageAt:     r.HighLeverageAt,
			HighTierLeverage:   r.HighTierLeverage,
			BaseTierLeverage:   r.BaseTierLeverage,
			BalanceBuffer:      r.BalanceBuffer,
			MaxFraction:        r.MaxPositionSizeFraction,
			MaxLeverage:        r.MaxLeverage,
		},
		MaxOpenPositions:       r.MaxOpenPositions,
		MaxPositionsPerSymbol:  r.MaxPositionsPerSymbol,
		MaxCorrelatedPositions: r.MaxCorrelatedPositions,
		CorrelationGroups:      r.CorrelationGroups,
		MaxPortfolioRisk:       r.MaxPortfolioRisk,
		MinConfidence:          r.MinConfidence,
		VolatileMinConfidence:  r.VolatileMinConfidence,
		PyramidMinConfidence:   r.PyramidMinConfidence,
		MinStopLossPercent:     r.MinStopLossPercent,
		MaxStopLossPercent:     r.MaxStopLossPercent,
		MinTakeProfitPercent:   r.MinTakeProfitPercent,
	}
}

func breakerConfig(c *config.Config) risk.BreakerConfig {
	b := c.Risk.Breaker
	return risk.BreakerConfig{
		L1Threshold:        b.L1Threshold,
		L2Threshold:        b.L2Threshold,
		L3Threshold:        b.L3Threshold,
		L4Threshold:        b.L4Threshold,
		L2Pause:            b.L2Pause.Duration,
		L3Pause:            b.L3Pause.Duration,
		L1SizeCap:          b.L1SizeCap,
		L2SizeCap:          b.L2SizeCap,
		L3SizeCap:          b.L3SizeCap,
		ReducedMaxLeverage: b.ReducedMaxLev,
		DailyLossLimit:     c.Risk.DailyLossLimit,
	}
}

func executorConfig(c *config.Config) executor.Config {
	e := c.Execution
	ladder := make([]executor.TierSpec, 0, len(e.TPLadder))
	for _, t := range e.TPLadder {
		ladder = append(ladder, executor.TierSpec{TargetPercent: t.TargetPercent, QuantityFraction: t.QuantityFraction})
	}
	return executor.Config{
		TPLadder:           ladder,
		TrailActivationPct: e.TrailActivationPct,
		TrailTightPct:      e.TrailTightPct,
		TrailWidePct:       e.TrailWidePct,
		TrailAggressivePct: e.TrailAggressivePct,
		HighVolatilityATR:  e.HighVolatilityATR,
		Partial40TrailPct:  e.Partial40TrailPct,
		BreakevenBufferPct: e.BreakevenBufferPct,
		QuickLockPnLPct:    e.QuickLockPnLPct,
		QuickLockMaxConf:   e.QuickLockMaxConf,
		ConvertAfterTier:   e.ConvertAfterTier,
		DedupWindow:        e.DedupWindow.Duration,
	}
}

func exitConfig(c *config.Config) exitpolicy.Config {
	x := c.Exit
	return exitpolicy.Config{
		ActionThreshold:     x.ActionThreshold,
		FullThreshold:       x.FullThreshold,
		EmergencyLossPct:    x.EmergencyLossPct,
		ProfitProtectPnLPct: x.ProfitProtectPnLPct,
		ProfitProtectWeight: x.ProfitProtectWeight,
		ReversalWeight:      x.ReversalWeight,
		RegimeWeight:        x.RegimeWeight,
		ExhaustionWeight:    x.ExhaustionWeight,
		LossWeight:          x.LossWeight,
		LossThresholdPct:    x.LossThresholdPct,
		OverboughtRSI:       x.OverboughtRSI,
		OversoldRSI:         x.OversoldRSI,
		ExhaustionHighRSI:   x.ExhaustionHighRSI,
		ExhaustionLowRSI:    x.ExhaustionLowRSI,
	}
}

func journalConfig(c *config.Config) tradelog.Config {
	return tradelog.Config{
		Dir:            c.Log.Dir,
		InitialCapital: c.Trading.InitialCapital,
		PeriodsPerYear: periodsPerYear(c.Trading.CheckInterval.Duration),
	}
}

// periodsPerYear is the number of snapshots a year at one per interval,
// used to annualize the Sharpe ratio.
func periodsPerYear(interval time.Duration) float64 {
	if interval <= 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(interval)
}

func orchestratorConfig(c *config.Config) orchestrator.Config {
	t := c.Trading
	return orchestrator.Config{
		Assets:               t.Assets,
		Interval:             t.CheckInterval.Duration,
		Start:                c.CompetitionStart(),
		DurationDays:         t.DurationDays,
		TimeFilter:           risk.NewTimeFilter(t.TimeFilterEnabled, t.AvoidHoursUTC),
		MaxOpenPositions:     c.Risk.MaxOpenPositions,
		CloseOnShutdown:      t.CloseOnShutdown,
		ShutdownTimeout:      t.ShutdownTimeout.Duration,
		StuckAfter:           t.LoopStuckAfter.Duration,
		MaxConsecutiveErrors: t.MaxConsecutiveErr,
		LosingClosePct:       t.LosingCloseAtL2,
		StaleAfter:           c.Execution.StaleAfter.Duration,
		StaleBandPct:         c.Execution.StaleBandPct,
	}
}
