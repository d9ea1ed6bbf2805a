package data

import (
	"fmt"
	"math/rand"
	"time"
)

// GenerateFrame builds a deterministic toy frame for tests and demo
// runs: random-walk prices and gaussian feature columns for the given
// number of instruments, one bar per day over [start, end].
func GenerateFrame(instrumentCount, featureCount int, start, end time.Time, seed int64) *Frame {
	rng := rand.New(rand.NewSource(seed))

	var times []time.Time
	for dt := start; !dt.After(end); dt = dt.AddDate(0, 0, 1) {
		times = append(times, dt)
	}

	instruments := make([]string, instrumentCount)
	for i := range instruments {
		instruments[i] = fmt.Sprintf("%06d.XSHE", i+1)
	}

	columns := make([]string, featureCount)
	for i := range columns {
		columns[i] = fmt.Sprintf("feature_%d", i+1)
	}

	features := make(map[string][][]float64, instrumentCount)
	prices := make(map[string][]float64, instrumentCount)
	for _, id := range instruments {
		rows := make([][]float64, len(times))
		series := make([]float64, len(times))
		base := float64(rng.Intn(100) + 1)
		for i := range times {
			row := make([]float64, featureCount)
			for j := range row {
				row[j] = rng.NormFloat64()
			}
			rows[i] = row
			series[i] = float64(int((base+rng.Float64()*30)*100)) / 100
		}
		features[id] = rows
		prices[id] = series
	}

	f, err := NewFrame(instruments, times, columns, features, prices)
	if err != nil {
		// tables above are dense by construction
		panic(err)
	}
	return f
}
