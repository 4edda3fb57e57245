package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

var errNoJSON = errors.New("oracle: no JSON object in response")

// ExtractJSON pulls the decision object out of a model reply. It accepts raw
// JSON, a ```json fenced block, a bare ``` fenced block or, failing those, the
// text between the first '{' and the last '}'.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if json.Valid([]byte(s)) {
		return s, nil
	}
	if body, ok := fenced(s, "```json"); ok && json.Valid([]byte(body)) {
		return body, nil
	}
	if body, ok := fenced(s, "```"); ok && json.Valid([]byte(body)) {
		return body, nil
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		body := s[start : end+1]
		if json.Valid([]byte(body)) {
			return body, nil
		}
	}
	return "", errNoJSON
}

func fenced(s, open string) (string, bool) {
	i := strings.Index(s, open)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(open):]
	j := strings.Index(rest, "```")
	if j < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:j]), true
}

var fieldAliases = map[string]string{
	"position_size":  "position_size_percent",
	"size_percent":   "position_size_percent",
	"stop_loss":      "stop_loss_percent",
	"take_profit":    "take_profit_percent",
	"reason":         "entry_reason",
	"reasoning":      "entry_reason",
	"setup":          "strategy",
	"setup_type":     "strategy",
	"strategy_type":  "strategy",
	"decision":       "action",
	"confidence_pct": "confidence",
}

var actionAliases = map[string]domain.Action{
	"LONG":  domain.ActionLong,
	"BUY":   domain.ActionLong,
	"SHORT": domain.ActionShort,
	"SELL":  domain.ActionShort,
	"CLOSE": domain.ActionClose,
	"EXIT":  domain.ActionClose,
	"HOLD":  domain.ActionHold,
	"WAIT":  domain.ActionHold,
}

// Normalize lowercases keys and maps alias field names onto the canonical
// ones. A canonical key already present wins over its alias.
func Normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for alias, canonical := range fieldAliases {
		v, ok := out[alias]
		if !ok {
			continue
		}
		if _, exists := out[canonical]; !exists {
			out[canonical] = v
		}
		delete(out, alias)
	}
	return out
}

// Limits bounds the numeric fields of a decision.
type Limits struct {
	MaxLeverage   int
	MinStopLoss   float64
	MaxStopLoss   float64
	MinTakeProfit float64
	MaxTakeProfit float64
	MaxSize       float64
}

// DefaultLimits returns the accepted ranges for oracle output.
func DefaultLimits(maxLeverage int) Limits {
	return Limits{
		MaxLeverage:   maxLeverage,
		MinStopLoss:   2,
		MaxStopLoss:   8,
		MinTakeProfit: 5,
		MaxTakeProfit: 30,
		MaxSize:       100,
	}
}

var requiredFields = []string{
	"action",
	"confidence",
	"position_size_percent",
	"leverage",
	"entry_reason",
	"stop_loss_percent",
	"take_profit_percent",
	"urgency",
}

// Validate converts a normalized field map into a Decision or returns a
// *domain.ValidationError naming the first offending field.
func Validate(symbol string, m map[string]any, lim Limits) (domain.Decision, error) {
	for _, f := range requiredFields {
		if _, ok := m[f]; !ok {
			return domain.Decision{}, &domain.ValidationError{Field: f, Reason: "missing"}
		}
	}

	d := domain.Decision{
		Symbol:    symbol,
		Source:    domain.SourceOracle,
		DecidedAt: time.Now().UTC(),
	}

	action, ok := actionAliases[strings.ToUpper(strings.TrimSpace(fmt.Sprint(m["action"])))]
	if !ok {
		return domain.Decision{}, &domain.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %v", m["action"])}
	}
	d.Action = action

	var err error
	if d.Confidence, err = rangeField(m, "confidence", 0, 100); err != nil {
		return domain.Decision{}, err
	}
	if d.PositionSizePercent, err = rangeField(m, "position_size_percent", 0, lim.MaxSize); err != nil {
		return domain.Decision{}, err
	}
	lev, err := rangeField(m, "leverage", 1, float64(lim.MaxLeverage))
	if err != nil {
		return domain.Decision{}, err
	}
	d.Leverage = int(math.Round(lev))
	if d.StopLossPercent, err = rangeField(m, "stop_loss_percent", lim.MinStopLoss, lim.MaxStopLoss); err != nil {
		return domain.Decision{}, err
	}
	if d.TakeProfitPercent, err = rangeField(m, "take_profit_percent", lim.MinTakeProfit, lim.MaxTakeProfit); err != nil {
		return domain.Decision{}, err
	}

	switch u := domain.Urgency(strings.ToUpper(strings.TrimSpace(fmt.Sprint(m["urgency"])))); u {
	case domain.UrgencyLow, domain.UrgencyMedium, domain.UrgencyHigh:
		d.Urgency = u
	default:
		return domain.Decision{}, &domain.ValidationError{Field: "urgency", Reason: fmt.Sprintf("unknown urgency %v", m["urgency"])}
	}

	d.EntryReason = strings.TrimSpace(fmt.Sprint(m["entry_reason"]))
	if s, ok := m["strategy"]; ok {
		d.Strategy = domain.ParseStrategy(fmt.Sprint(s))
	}
	return d, nil
}

// ParseDecision runs extraction, normalization and validation on a reply.
func ParseDecision(symbol, reply string, lim Limits) (domain.Decision, error) {
	body, err := ExtractJSON(reply)
	if err != nil {
		return domain.Decision{}, &domain.ValidationError{Field: "response", Reason: err.Error()}
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return domain.Decision{}, &domain.ValidationError{Field: "response", Reason: "not a JSON object"}
	}
	return Validate(symbol, Normalize(raw), lim)
}

func rangeField(m map[string]any, field string, lo, hi float64) (float64, error) {
	v, err := number(m[field])
	if err != nil {
		return 0, &domain.ValidationError{Field: field, Reason: err.Error()}
	}
	if v < lo || v > hi {
		return 0, &domain.ValidationError{Field: field, Reason: fmt.Sprintf("%g outside [%g, %g]", v, lo, hi)}
	}
	return v, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
