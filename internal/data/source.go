// Package data provides the historical price/feature source consumed
// by the simulation. The Source interface is the only contract the
// engine depends on; the in-memory Frame and the sqlite-backed loader
// are interchangeable implementations.
package data

import (
	"time"

	"barsim/internal/models"
)

// Source supplies prices and look-back feature windows to a
// simulation run.
type Source interface {
	// LastPrice returns the bar price of the instrument at dt, or NaN
	// when no observation exists.
	LastPrice(orderBookID string, dt time.Time) float64
	// PrevClose returns the close of the bar preceding dt.
	PrevClose(orderBookID string, dt time.Time) float64
	// HistoryWindow returns the most recent barCount feature rows
	// ending at-or-before dt, for every instrument.
	HistoryWindow(dt time.Time, barCount int) Window
	// AvailableTimes returns the increasing sequence of bar timestamps.
	AvailableTimes() []time.Time
	// AvailableInstruments returns the instrument codes of the source.
	AvailableInstruments() []string
	// InstrumentKind returns the behavior class of an instrument.
	InstrumentKind(orderBookID string) models.InstrumentKind
}

// Window is a look-back slice of feature rows, the observation shape
// returned to strategies.
type Window struct {
	Times   []time.Time
	Columns []string
	// Rows maps instrument -> one row per window timestamp, each row
	// holding one value per column.
	Rows map[string][][]float64
}
