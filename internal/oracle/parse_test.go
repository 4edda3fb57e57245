package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

const validReply = `{"action":"LONG","confidence":78,"position_size_percent":10,"leverage":4,
"entry_reason":"trend continuation","stop_loss_percent":3,"take_profit_percent":15,"urgency":"HIGH","strategy":"TREND_FOLLOWING"}`

func TestExtractJSON_Formats(t *testing.T) {
	cases := map[string]string{
		"raw":        validReply,
		"json fence": "Here you go:\n```json\n" + validReply + "\n```\nGood luck",
		"bare fence": "```\n" + validReply + "\n```",
		"embedded":   "My decision is " + validReply + " based on the data.",
		"padded":     "\n\n  " + validReply + "  \n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := ExtractJSON(in)
			require.NoError(t, err)
			assert.JSONEq(t, validReply, out)
		})
	}

	_, err := ExtractJSON("no decision today")
	assert.Error(t, err)
}

func TestParseDecision_Valid(t *testing.T) {
	d, err := ParseDecision("BTCUSDT", validReply, DefaultLimits(5))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", d.Symbol)
	assert.Equal(t, domain.ActionLong, d.Action)
	assert.Equal(t, 78.0, d.Confidence)
	assert.Equal(t, 10.0, d.PositionSizePercent)
	assert.Equal(t, 4, d.Leverage)
	assert.Equal(t, 3.0, d.StopLossPercent)
	assert.Equal(t, 15.0, d.TakeProfitPercent)
	assert.Equal(t, domain.UrgencyHigh, d.Urgency)
	assert.Equal(t, domain.StrategyTrendFollowing, d.Strategy)
	assert.Equal(t, domain.SourceOracle, d.Source)
}

func TestParseDecision_Aliases(t *testing.T) {
	reply := `{"Action":"sell","confidence":"72","position_size":"8%","leverage":3,
"reason":"breakdown","stop_loss":4,"take_profit":12,"urgency":"medium"}`
	d, err := ParseDecision("ETHUSDT", reply, DefaultLimits(5))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionShort, d.Action)
	assert.Equal(t, 72.0, d.Confidence)
	assert.Equal(t, 8.0, d.PositionSizePercent)
	assert.Equal(t, "breakdown", d.EntryReason)
	assert.Equal(t, 4.0, d.StopLossPercent)
	assert.Equal(t, 12.0, d.TakeProfitPercent)
	assert.Equal(t, domain.UrgencyMedium, d.Urgency)
	assert.Equal(t, domain.StrategyNone, d.Strategy)
}

func TestParseDecision_CanonicalBeatsAlias(t *testing.T) {
	reply := `{"action":"BUY","confidence":70,"position_size_percent":5,"position_size":50,"leverage":2,
"entry_reason":"x","stop_loss_percent":3,"take_profit_percent":10,"urgency":"LOW"}`
	d, err := ParseDecision("BTCUSDT", reply, DefaultLimits(5))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionLong, d.Action)
	assert.Equal(t, 5.0, d.PositionSizePercent)
}

func TestParseDecision_Rejections(t *testing.T) {
	base := func(field, value string) string {
		fields := map[string]string{
			"action":                `"LONG"`,
			"confidence":            `80`,
			"position_size_percent": `10`,
			"leverage":              `3`,
			"entry_reason":          `"x"`,
			"stop_loss_percent":     `3`,
			"take_profit_percent":   `10`,
			"urgency":               `"LOW"`,
		}
		if value == "" {
			delete(fields, field)
		} else {
			fields[field] = value
		}
		out := "{"
		first := true
		for k, v := range fields {
			if !first {
				out += ","
			}
			first = false
			out += `"` + k + `":` + v
		}
		return out + "}"
	}

	cases := []struct {
		field string
		value string
	}{
		{"action", `"MOON"`},
		{"confidence", `101`},
		{"confidence", `-1`},
		{"position_size_percent", `120`},
		{"leverage", `0`},
		{"leverage", `6`},
		{"stop_loss_percent", `1`},
		{"stop_loss_percent", `9`},
		{"take_profit_percent", `4`},
		{"take_profit_percent", `31`},
		{"urgency", `"NOW"`},
		{"confidence", `"high"`},
		{"urgency", ""},
		{"entry_reason", ""},
	}
	for _, tc := range cases {
		t.Run(tc.field+"="+tc.value, func(t *testing.T) {
			_, err := ParseDecision("BTCUSDT", base(tc.field, tc.value), DefaultLimits(5))
			require.Error(t, err)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestParseDecision_Garbage(t *testing.T) {
	_, err := ParseDecision("BTCUSDT", "I think you should buy", DefaultLimits(5))
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	_, err = ParseDecision("BTCUSDT", `["LONG"]`, DefaultLimits(5))
	assert.True(t, domain.IsValidation(err))
}
