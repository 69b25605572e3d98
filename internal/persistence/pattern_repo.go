package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hivecore/hivecore/internal/types"
)

// PatternRepository implements internal/learning.Repository.
type PatternRepository struct {
	db *sql.DB
}

// Upsert inserts or replaces the pattern row keyed by p.Key.
func (r *PatternRepository) Upsert(p types.Pattern) error {
	_, err := r.db.Exec(
		`INSERT INTO patterns (key, expected_output, confidence, frequency, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   expected_output = excluded.expected_output,
		   confidence      = excluded.confidence,
		   frequency       = excluded.frequency,
		   last_seen       = excluded.last_seen`,
		int64(p.Key), p.ExpectedOutput, p.Confidence, p.Frequency, p.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pattern %d: %w", p.Key, err)
	}
	return nil
}

// Delete removes the pattern row for key.
func (r *PatternRepository) Delete(key uint64) error {
	if _, err := r.db.Exec(`DELETE FROM patterns WHERE key = ?`, int64(key)); err != nil {
		return fmt.Errorf("failed to delete pattern %d: %w", key, err)
	}
	return nil
}

// LoadAll returns every persisted pattern, used to warm a fresh Store.
func (r *PatternRepository) LoadAll() ([]types.Pattern, error) {
	rows, err := r.db.Query(`SELECT key, expected_output, confidence, frequency, last_seen FROM patterns`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var out []types.Pattern
	for rows.Next() {
		var p types.Pattern
		var key int64
		var lastSeen time.Time
		if err := rows.Scan(&key, &p.ExpectedOutput, &p.Confidence, &p.Frequency, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan pattern row: %w", err)
		}
		p.Key = uint64(key)
		p.LastSeen = lastSeen
		out = append(out, p)
	}
	return out, rows.Err()
}
