package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumitrade/aiquorum/internal/signal"
)

func testRequest(nBars int) *signal.SignalRequest {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]signal.Candle, nBars)
	for i := range bars {
		bars[i] = signal.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      42000.123456, High: 42500.5, Low: 41800.25, Close: 42350.75,
			Volume: 1234.5,
		}
	}
	return &signal.SignalRequest{
		Pair:      "btc/usdt",
		Timeframe: signal.Timeframe1h,
		AsOf:      bars[nBars-1].Timestamp,
		Bars:      bars,
		Indicators: map[string]float64{
			"RSI_14": 61.234,
			"ATR_14": 350.5,
		},
	}
}

func TestRenderDeterministic(t *testing.T) {
	a, err := NewAssembler(50)
	require.NoError(t, err)
	req := testRequest(60)

	first, err := a.Render(RoleTechnical, req)
	require.NoError(t, err)
	second, err := a.Render(RoleTechnical, req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRenderLookbackWindow(t *testing.T) {
	a, err := NewAssembler(50)
	require.NoError(t, err)

	out, err := a.Render(RoleTechnical, testRequest(60))
	require.NoError(t, err)

	// Only the 50 most recent bars are rendered, oldest first.
	assert.Equal(t, 50, strings.Count(out, " O:"))
	assert.NotContains(t, out, "2025-06-01T00:00:00Z")
	assert.Contains(t, out, "2025-06-01T10:00:00Z")
	first := strings.Index(out, "2025-06-01T10:00:00Z")
	last := strings.Index(out, "2025-06-03T11:00:00Z")
	require.Greater(t, last, 0)
	assert.Less(t, first, last)
}

func TestRenderFixedPrecision(t *testing.T) {
	a, err := NewAssembler(50)
	require.NoError(t, err)

	out, err := a.Render(RoleTechnical, testRequest(50))
	require.NoError(t, err)

	// Prices carry 6 significant digits, indicators 2 decimals.
	assert.Contains(t, out, "O:42000.1")
	assert.Contains(t, out, "RSI_14: 61.23")
	assert.Contains(t, out, "ATR_14: 350.50")
	// Normalized pair.
	assert.Contains(t, out, "BTC/USDT")
}

func TestRenderSchemaBlock(t *testing.T) {
	a, err := NewAssembler(50)
	require.NoError(t, err)
	req := testRequest(50)

	for _, role := range a.Roles() {
		out, err := a.Render(role, req)
		require.NoError(t, err, role)
		assert.Contains(t, out, "DIRECTION: <LONG|SHORT|NEUTRAL>", role)
		assert.Contains(t, out, "CONFIDENCE: <number from 0 to 100>", role)
		assert.Contains(t, out, "RATIONALE:", role)
		assert.Contains(t, out, "KEY_FACTORS:", role)
	}
}

func TestRenderRoles(t *testing.T) {
	a, err := NewAssembler(50)
	require.NoError(t, err)

	assert.Equal(t, []string{RoleRisk, RoleSentiment, RoleTechnical}, a.Roles())

	_, err = a.Render("astrology", testRequest(50))
	assert.Error(t, err)
}
