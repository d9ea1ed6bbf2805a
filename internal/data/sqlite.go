package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// OpenSQLite loads a Frame from a sqlite bar database produced by
// SaveFrame. The whole table is materialized up front: a simulation
// replays the full history anyway, and an in-memory frame keeps the
// hot path allocation-free.
func OpenSQLite(dbPath string) (*Frame, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open bar database: %w", err)
	}
	defer db.Close()

	var columnsJSON string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'feature_columns'`).Scan(&columnsJSON); err != nil {
		return nil, fmt.Errorf("reading feature columns: %w", err)
	}
	var columns []string
	if err := json.Unmarshal([]byte(columnsJSON), &columns); err != nil {
		return nil, fmt.Errorf("decoding feature columns: %w", err)
	}

	rows, err := db.Query(`SELECT instrument, ts, price, features FROM bars ORDER BY instrument, ts`)
	if err != nil {
		return nil, fmt.Errorf("querying bars: %w", err)
	}
	defer rows.Close()

	var (
		instruments []string
		timeSet     = make(map[time.Time]struct{})
		times       []time.Time
		features    = make(map[string][][]float64)
		prices      = make(map[string][]float64)
	)
	for rows.Next() {
		var (
			instrument   string
			ts           time.Time
			price        float64
			featuresJSON string
		)
		if err := rows.Scan(&instrument, &ts, &price, &featuresJSON); err != nil {
			return nil, fmt.Errorf("scanning bar: %w", err)
		}
		ts = ts.UTC()
		var row []float64
		if err := json.Unmarshal([]byte(featuresJSON), &row); err != nil {
			return nil, fmt.Errorf("decoding features for %s@%s: %w", instrument, ts, err)
		}
		if len(row) != len(columns) {
			return nil, fmt.Errorf("bar %s@%s has %d features, want %d", instrument, ts, len(row), len(columns))
		}
		if _, seen := features[instrument]; !seen {
			instruments = append(instruments, instrument)
		}
		if _, seen := timeSet[ts]; !seen {
			timeSet[ts] = struct{}{}
			times = append(times, ts)
		}
		features[instrument] = append(features[instrument], row)
		prices[instrument] = append(prices[instrument], price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bars: %w", err)
	}

	return NewFrame(instruments, times, columns, features, prices)
}

// SaveFrame writes a frame into a sqlite bar database, replacing any
// existing content.
func SaveFrame(f *Frame, dbPath string) error {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open bar database: %w", err)
	}
	defer db.Close()

	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS bars (
		instrument TEXT NOT NULL,
		ts         DATETIME NOT NULL,
		price      REAL NOT NULL,
		features   TEXT NOT NULL,
		PRIMARY KEY (instrument, ts)
	);
	DELETE FROM bars;
	DELETE FROM meta;
	`
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("initializing bar schema: %w", err)
		}
	}

	columnsJSON, err := json.Marshal(f.columns)
	if err != nil {
		return fmt.Errorf("encoding feature columns: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO meta (key, value) VALUES ('feature_columns', ?)`, string(columnsJSON)); err != nil {
		return fmt.Errorf("writing feature columns: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting bar insert: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO bars (instrument, ts, price, features) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing bar insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range f.instruments {
		for i, ts := range f.times {
			featuresJSON, err := json.Marshal(f.features[id][i])
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("encoding features for %s@%s: %w", id, ts, err)
			}
			if _, err := stmt.Exec(id, ts.UTC(), f.prices[id][i], string(featuresJSON)); err != nil {
				tx.Rollback()
				return fmt.Errorf("inserting bar %s@%s: %w", id, ts, err)
			}
		}
	}
	return tx.Commit()
}
