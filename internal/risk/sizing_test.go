package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

func TestRegimeTables_CoverEveryRegime(t *testing.T) {
	for _, r := range domain.AllRegimes() {
		m := RegimeSizeMultiplier(r)
		assert.Greater(t, m, 0.0, r.String())
		assert.LessOrEqual(t, m, 1.0, r.String())
		assert.LessOrEqual(t, RegimeLeverageAdjustment(r), 0, r.String())
	}
	assert.Equal(t, 0.7, RegimeSizeMultiplier(domain.RegimeRanging))
	assert.Equal(t, -3, RegimeLeverageAdjustment(domain.RegimeUnknown))
}

func TestStrategyTable_CoverEveryStrategy(t *testing.T) {
	for _, s := range domain.AllStrategies() {
		m := StrategySizeMultiplier(s)
		assert.Greater(t, m, 0.0, s.String())
		assert.LessOrEqual(t, m, 1.0, s.String())
	}
}

func TestSizingConfig_Size(t *testing.T) {
	c := testSizing()
	assert.InDelta(t, 750, c.Size(80, 5000, domain.RegimeStrongTrendUp, domain.StrategyNone, 0), 1e-9)
	assert.InDelta(t, 525, c.Size(80, 5000, domain.RegimeRanging, domain.StrategyNone, 0), 1e-9)
	assert.InDelta(t, 600, c.Size(80, 5000, domain.RegimeStrongTrendUp, domain.StrategyReversal, 0), 1e-9)
	assert.Equal(t, 0.0, c.Size(80, 0, domain.RegimeStrongTrendUp, domain.StrategyNone, 0))
}

func TestSizingConfig_Leverage(t *testing.T) {
	c := testSizing()
	assert.Equal(t, 5, c.Leverage(80, domain.RegimeBreakoutUp, 0))
	assert.Equal(t, 3, c.Leverage(80, domain.RegimeRanging, 0))
	assert.Equal(t, 1, c.Leverage(60, domain.RegimeUnknown, 0))
	assert.Equal(t, 2, c.Leverage(80, domain.RegimeStrongTrendUp, 2))
}

func TestTimeFilter_Allow(t *testing.T) {
	f := NewTimeFilter(true, []int{2, 3, 4, 5})
	ok, reason := f.Allow(time.Date(2026, 10, 1, 3, 30, 0, 0, time.UTC))
	assert.False(t, ok)
	assert.Contains(t, reason, "03:00")

	ok, _ = f.Allow(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))
	assert.True(t, ok)

	ok, _ = NewTimeFilter(false, []int{3}).Allow(time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC))
	assert.True(t, ok)
}
