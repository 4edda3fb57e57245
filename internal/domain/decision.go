package domain

import "time"

// Action is the directional instruction carried by a Decision.
type Action string

const (
	ActionLong  Action = "LONG"
	ActionShort Action = "SHORT"
	ActionClose Action = "CLOSE"
	ActionHold  Action = "HOLD"
)

// Side maps an entry action to a position side.
func (a Action) Side() (Side, bool) {
	switch a {
	case ActionLong:
		return SideLong, true
	case ActionShort:
		return SideShort, true
	default:
		return "", false
	}
}

// Urgency is the oracle's hint about execution priority.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// DecisionSource records where a Decision came from.
type DecisionSource string

const (
	SourceOracle   DecisionSource = "oracle"
	SourceFallback DecisionSource = "fallback"
	SourceDefault  DecisionSource = "default"
)

// Decision is a validated trading instruction for one symbol.
type Decision struct {
	Symbol              string         `json:"symbol"`
	Action              Action         `json:"action"`
	Confidence          float64        `json:"confidence"`
	PositionSizePercent float64        `json:"position_size_percent"`
	Leverage            int            `json:"leverage"`
	EntryReason         string         `json:"entry_reason"`
	StopLossPercent     float64        `json:"stop_loss_percent"`
	TakeProfitPercent   float64        `json:"take_profit_percent"`
	Urgency             Urgency        `json:"urgency"`
	Strategy            StrategyType   `json:"strategy"`
	Source              DecisionSource `json:"source"`
	DecidedAt           time.Time      `json:"decided_at"`
}

// HoldDecision returns the safe default used whenever the oracle output
// cannot be trusted.
func HoldDecision(symbol, reason string) Decision {
	return Decision{
		Symbol:            symbol,
		Action:            ActionHold,
		Confidence:        0,
		Leverage:          1,
		EntryReason:       reason,
		StopLossPercent:   3,
		TakeProfitPercent: 10,
		Urgency:           UrgencyLow,
		Source:            SourceDefault,
		DecidedAt:         time.Now().UTC(),
	}
}
