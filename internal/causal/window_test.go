package causal

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tremor/internal/marketdata"
)

func day(yearDay int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, yearDay)
}

// flatThenJump builds a daily series at level pre up to and including
// jumpDay, and level post afterwards, over [from, to].
func flatThenJump(node string, from, to, jumpDay time.Time, pre, post float64) marketdata.Series {
	var points []marketdata.PricePoint
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		price := pre
		if d.After(jumpDay) {
			price = post
		}
		points = append(points, marketdata.PricePoint{Date: d, Price: price})
	}
	return marketdata.NewSeries(node, points)
}

func TestComputeWindowReturns(t *testing.T) {
	params := DefaultStudyParams() // pre 5, post 5, gap 1
	eventDay := day(30)

	t.Run("jump after the gap lands in the post return", func(t *testing.T) {
		series := flatThenJump("sp500_ret", day(10), day(50), eventDay.AddDate(0, 0, 1), 100, 110)

		ret, err := computeWindowReturns(eventDay, series, params)
		require.NoError(t, err)
		assert.InDelta(t, 0, ret.pre, 1e-12)
		assert.InDelta(t, math.Log(110.0/100.0), ret.post, 1e-12)
	})

	t.Run("drift before the event lands in the pre return", func(t *testing.T) {
		series := flatThenJump("sp500_ret", day(10), day(50), eventDay.AddDate(0, 0, -3), 100, 104)

		ret, err := computeWindowReturns(eventDay, series, params)
		require.NoError(t, err)
		assert.InDelta(t, math.Log(104.0/100.0), ret.pre, 1e-12)
		assert.InDelta(t, 0, ret.post, 1e-12)
	})

	t.Run("weekend boundaries snap to nearest trading day", func(t *testing.T) {
		// Weekday-only series with an event released on a Saturday: the
		// pre-start and gap-end boundaries land on weekends and must
		// resolve via the bounded search.
		saturdayEvent := day(33) // 2024-02-03
		jumpAfter := day(35)     // the following Monday
		var points []marketdata.PricePoint
		for d := day(10); !d.After(day(50)); d = d.AddDate(0, 0, 1) {
			if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			price := 100.0
			if d.After(jumpAfter) {
				price = 103
			}
			points = append(points, marketdata.PricePoint{Date: d, Price: price})
		}
		series := marketdata.NewSeries("sp500_ret", points)

		ret, err := computeWindowReturns(saturdayEvent, series, params)
		require.NoError(t, err)
		assert.InDelta(t, 0, ret.pre, 1e-12)
		assert.InDelta(t, math.Log(103.0/100.0), ret.post, 1e-12)
	})

	t.Run("zero gap collapses onto the event day", func(t *testing.T) {
		p := params
		p.GapDays = 0
		series := flatThenJump("sp500_ret", day(10), day(50), eventDay, 100, 108)

		ret, err := computeWindowReturns(eventDay, series, p)
		require.NoError(t, err)
		// Gap start and end both resolve to the event day itself.
		assert.InDelta(t, 0, ret.pre, 1e-12)
		assert.InDelta(t, math.Log(108.0/100.0), ret.post, 1e-12)
	})

	t.Run("no price within search bound excludes the event", func(t *testing.T) {
		// Series exists but ends long before the event's windows.
		series := flatThenJump("sp500_ret", day(0), day(5), day(3), 100, 101)

		_, err := computeWindowReturns(eventDay, series, params)
		require.Error(t, err)
		var excl *exclusionError
		require.ErrorAs(t, err, &excl)
		assert.Equal(t, ReasonNoTradablePrice, excl.reason)
	})

	t.Run("empty series reports insufficient market data", func(t *testing.T) {
		_, err := computeWindowReturns(eventDay, marketdata.Series{}, params)
		require.Error(t, err)
		var excl *exclusionError
		require.ErrorAs(t, err, &excl)
		assert.Equal(t, ReasonInsufficientMarketData, excl.reason)
	})
}

func TestNearestPrice_SearchBound(t *testing.T) {
	series := marketdata.NewSeries("d_vix", []marketdata.PricePoint{
		{Date: day(10), Price: 18.5},
	})

	t.Run("within bound backward", func(t *testing.T) {
		p, ok := nearestPrice(series, day(16), searchBackward)
		require.True(t, ok)
		assert.Equal(t, 18.5, p)
	})

	t.Run("within bound forward", func(t *testing.T) {
		p, ok := nearestPrice(series, day(4), searchForward)
		require.True(t, ok)
		assert.Equal(t, 18.5, p)
	})

	t.Run("exactly at bound", func(t *testing.T) {
		_, ok := nearestPrice(series, day(17), searchBackward)
		assert.True(t, ok, "seven days is still inside the bound")
	})

	t.Run("beyond bound", func(t *testing.T) {
		_, ok := nearestPrice(series, day(18), searchBackward)
		assert.False(t, ok)
	})

	t.Run("wrong direction", func(t *testing.T) {
		_, ok := nearestPrice(series, day(12), searchForward)
		assert.False(t, ok, "forward search must not look backward")
	})
}
