package domain

import "time"

// BreakerLevel is the drawdown circuit-breaker severity.
type BreakerLevel int

const (
	BreakerNone BreakerLevel = iota
	BreakerL1
	BreakerL2
	BreakerL3
	BreakerL4
)

func (l BreakerLevel) String() string {
	switch l {
	case BreakerL1:
		return "L1"
	case BreakerL2:
		return "L2"
	case BreakerL3:
		return "L3"
	case BreakerL4:
		return "L4"
	default:
		return "NONE"
	}
}

func (l BreakerLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// RiskState is the process-wide drawdown and daily accounting state.
type RiskState struct {
	PeakValue       float64      `json:"peak_value"`
	CurrentValue    float64      `json:"current_value"`
	Level           BreakerLevel `json:"level"`
	PausedUntil     *time.Time   `json:"paused_until,omitempty"`
	PausedLevel     BreakerLevel `json:"paused_level"`
	Halted          bool         `json:"halted"`
	DailyStartValue float64      `json:"daily_start_value"`
	TradesToday     int          `json:"trades_today"`
	LastResetDate   string       `json:"last_reset_date"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Drawdown returns (peak-current)/peak, or 0 without a peak.
func (s RiskState) Drawdown() float64 {
	if s.PeakValue <= 0 {
		return 0
	}
	dd := (s.PeakValue - s.CurrentValue) / s.PeakValue
	if dd < 0 {
		return 0
	}
	return dd
}

// DailyLoss returns the fractional loss since the start of the UTC day.
func (s RiskState) DailyLoss() float64 {
	if s.DailyStartValue <= 0 {
		return 0
	}
	loss := (s.DailyStartValue - s.CurrentValue) / s.DailyStartValue
	if loss < 0 {
		return 0
	}
	return loss
}

// BreakerStatus is the result of one circuit-breaker evaluation.
type BreakerStatus struct {
	Level       BreakerLevel `json:"level"`
	CanTrade    bool         `json:"can_trade"`
	Reason      string       `json:"reason"`
	ResumeAt    *time.Time   `json:"resume_at,omitempty"`
	Terminal    bool         `json:"terminal"`
	Drawdown    float64      `json:"drawdown"`
	MaxLeverage int          `json:"max_leverage,omitempty"`
	SizeCap     float64      `json:"size_cap,omitempty"`
}

// Halt converts a blocking status into a CircuitBreakerHalt error. It returns
// nil when trading is allowed.
func (s BreakerStatus) Halt() error {
	if s.CanTrade {
		return nil
	}
	return &CircuitBreakerHalt{
		Level:    s.Level,
		Reason:   s.Reason,
		ResumeAt: s.ResumeAt,
		Terminal: s.Terminal,
	}
}

// Portfolio is the account snapshot RiskGate sizes against.
type Portfolio struct {
	TotalValue       float64   `json:"total_value"`
	AvailableBalance float64   `json:"available_balance"`
	UnrealizedPnL    float64   `json:"unrealized_pnl"`
	At               time.Time `json:"at"`
}
