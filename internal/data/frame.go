package data

import (
	"fmt"
	"math"
	"sort"
	"time"

	"barsim/internal/models"
)

// Frame is an in-memory Source: a dense table of per-instrument
// feature rows and bar prices over a shared time index.
type Frame struct {
	instruments []string
	times       []time.Time
	columns     []string
	timeIndex   map[time.Time]int
	// features: instrument -> [timeIdx][colIdx]
	features map[string][][]float64
	// prices: instrument -> [timeIdx]
	prices map[string][]float64
	kinds  map[string]models.InstrumentKind
}

// NewFrame builds a frame from parallel feature and price tables. Every
// instrument must cover the full time index.
func NewFrame(instruments []string, times []time.Time, columns []string, features map[string][][]float64, prices map[string][]float64) (*Frame, error) {
	f := &Frame{
		instruments: append([]string(nil), instruments...),
		times:       append([]time.Time(nil), times...),
		columns:     append([]string(nil), columns...),
		timeIndex:   make(map[time.Time]int, len(times)),
		features:    features,
		prices:      prices,
		kinds:       make(map[string]models.InstrumentKind, len(instruments)),
	}
	sort.Slice(f.times, func(i, j int) bool { return f.times[i].Before(f.times[j]) })
	for i, t := range f.times {
		f.timeIndex[t] = i
	}
	for _, id := range instruments {
		if len(features[id]) != len(times) {
			return nil, fmt.Errorf("frame: %s has %d feature rows, want %d", id, len(features[id]), len(times))
		}
		if len(prices[id]) != len(times) {
			return nil, fmt.Errorf("frame: %s has %d prices, want %d", id, len(prices[id]), len(times))
		}
		f.kinds[id] = models.KindCommonStock
	}
	return f, nil
}

// SetInstrumentKind overrides the default common-stock kind.
func (f *Frame) SetInstrumentKind(orderBookID string, k models.InstrumentKind) {
	f.kinds[orderBookID] = k
}

// LastPrice returns the bar price at dt, or NaN for unknown
// instruments or timestamps.
func (f *Frame) LastPrice(orderBookID string, dt time.Time) float64 {
	idx, ok := f.timeIndex[dt]
	if !ok {
		return math.NaN()
	}
	prices, ok := f.prices[orderBookID]
	if !ok {
		return math.NaN()
	}
	return prices[idx]
}

// PrevClose returns the price of the bar preceding dt, or NaN when dt
// is the first bar or unknown.
func (f *Frame) PrevClose(orderBookID string, dt time.Time) float64 {
	idx, ok := f.timeIndex[dt]
	if !ok || idx == 0 {
		return math.NaN()
	}
	prices, ok := f.prices[orderBookID]
	if !ok {
		return math.NaN()
	}
	return prices[idx-1]
}

// HistoryWindow returns the most recent barCount rows ending
// at-or-before dt.
func (f *Frame) HistoryWindow(dt time.Time, barCount int) Window {
	// rightmost index with time <= dt, exclusive bound
	end := sort.Search(len(f.times), func(i int) bool { return f.times[i].After(dt) })
	start := end - barCount
	if start < 0 {
		start = 0
	}
	w := Window{
		Times:   f.times[start:end],
		Columns: f.columns,
		Rows:    make(map[string][][]float64, len(f.instruments)),
	}
	for _, id := range f.instruments {
		w.Rows[id] = f.features[id][start:end]
	}
	return w
}

// AvailableTimes returns the full time index.
func (f *Frame) AvailableTimes() []time.Time { return f.times }

// AvailableInstruments returns the instrument codes.
func (f *Frame) AvailableInstruments() []string { return f.instruments }

// InstrumentKind returns the instrument's behavior class.
func (f *Frame) InstrumentKind(orderBookID string) models.InstrumentKind {
	return f.kinds[orderBookID]
}
