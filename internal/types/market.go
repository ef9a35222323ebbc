package types

import (
	"math"
	"time"

	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// Bar represents a single daily OHLCV bar.
type Bar struct {
	// Date is the trading day of the bar (midnight UTC).
	Date time.Time `json:"date" yaml:"date"`
	// Open is the opening price.
	Open float64 `json:"open" yaml:"open"`
	// High is the highest price of the day.
	High float64 `json:"high" yaml:"high"`
	// Low is the lowest price of the day.
	Low float64 `json:"low" yaml:"low"`
	// Close is the closing price.
	Close float64 `json:"close" yaml:"close"`
	// Volume is the traded volume.
	Volume float64 `json:"volume" yaml:"volume"`
}

// IsFinite reports whether every numeric field of the bar is a finite number.
func (b Bar) IsFinite() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

// PriceSeries is an ordered sequence of daily bars for one instrument.
type PriceSeries struct {
	// Instrument is the tradable symbol the bars belong to.
	Instrument string `json:"instrument" yaml:"instrument"`
	// Bars are ordered by strictly increasing date.
	Bars []Bar `json:"bars" yaml:"bars"`
}

// Len returns the number of bars in the series.
func (s PriceSeries) Len() int {
	return len(s.Bars)
}

// Validate checks the series invariants: strictly increasing unique dates and
// finite values on every bar.
func (s PriceSeries) Validate() error {
	for i, bar := range s.Bars {
		if !bar.IsFinite() {
			return errors.Newf(errors.ErrCodeNonFiniteData,
				"non-finite value in bar %d (%s) of %s", i, bar.Date.Format(time.DateOnly), s.Instrument)
		}

		if i == 0 {
			continue
		}

		prev := s.Bars[i-1].Date
		if !bar.Date.After(prev) {
			code := errors.ErrCodeUnorderedDates
			if bar.Date.Equal(prev) {
				code = errors.ErrCodeDuplicateDates
			}

			return errors.Newf(code,
				"bar %d (%s) does not advance past %s in %s",
				i, bar.Date.Format(time.DateOnly), prev.Format(time.DateOnly), s.Instrument)
		}
	}

	return nil
}

// Closes returns the close price of every bar, aligned with the series dates.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, bar := range s.Bars {
		closes[i] = bar.Close
	}

	return closes
}

// Volumes returns the volume of every bar, aligned with the series dates.
func (s PriceSeries) Volumes() []float64 {
	volumes := make([]float64, len(s.Bars))
	for i, bar := range s.Bars {
		volumes[i] = bar.Volume
	}

	return volumes
}

// LastBar returns the most recent bar. The boolean is false for an empty series.
func (s PriceSeries) LastBar() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}

	return s.Bars[len(s.Bars)-1], true
}

// TruncateAfter returns a copy of the series containing only bars dated on or
// before the given freeze date. Used for deterministic replay.
func (s PriceSeries) TruncateAfter(freeze time.Time) PriceSeries {
	out := PriceSeries{Instrument: s.Instrument, Bars: nil}

	for _, bar := range s.Bars {
		if bar.Date.After(freeze) {
			break
		}

		out.Bars = append(out.Bars, bar)
	}

	return out
}

// BarsAfter counts the bars dated strictly after the given date. It is the
// number of trading bars elapsed since the date, as carried by this series.
func (s PriceSeries) BarsAfter(date time.Time) int {
	count := 0

	for i := len(s.Bars) - 1; i >= 0; i-- {
		if !s.Bars[i].Date.After(date) {
			break
		}

		count++
	}

	return count
}

// ForwardFillTradingDays resamples the series to a regular weekday calendar
// between its first and last bar, filling every missing weekday with a
// synthetic bar carried from the previous close (zero volume). Missing values
// silently poison rolling-window indicators, so gaps must be filled before
// any windowed computation.
func (s PriceSeries) ForwardFillTradingDays() PriceSeries {
	if len(s.Bars) == 0 {
		return s
	}

	out := PriceSeries{Instrument: s.Instrument, Bars: make([]Bar, 0, len(s.Bars))}
	next := 0
	last := s.Bars[len(s.Bars)-1].Date

	for day := s.Bars[0].Date; !day.After(last); day = day.AddDate(0, 0, 1) {
		if next < len(s.Bars) && s.Bars[next].Date.Equal(day) {
			out.Bars = append(out.Bars, s.Bars[next])
			next++

			continue
		}

		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}

		prev := out.Bars[len(out.Bars)-1]
		out.Bars = append(out.Bars, Bar{
			Date:   day,
			Open:   prev.Close,
			High:   prev.Close,
			Low:    prev.Close,
			Close:  prev.Close,
			Volume: 0,
		})
	}

	return out
}
