package store

import (
	"database/sql"
	"time"
)

// AddSurvivalEntry appends one signed economic event to the ledger.
func (s *Store) AddSurvivalEntry(amount float64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO survival_ledger (amount, reason, created_at) VALUES (?, ?, ?)`,
		amount, reason, time.Now())
	return err
}

// SurvivalBalance is the sum of all ledger amounts.
func (s *Store) SurvivalBalance() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var balance sql.NullFloat64
	if err := s.db.QueryRow(`SELECT SUM(amount) FROM survival_ledger`).Scan(&balance); err != nil {
		return 0, err
	}
	return balance.Float64, nil
}

// RecentSurvivalEntries returns the last n entries, newest first.
func (s *Store) RecentSurvivalEntries(n int) ([]SurvivalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, amount, reason, created_at
		FROM survival_ledger ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SurvivalEntry
	for rows.Next() {
		var e SurvivalEntry
		if err := rows.Scan(&e.ID, &e.Amount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const debtReason = "hourly operating debt"

// ApplyHourlyDebt appends a negative entry covering every full hour elapsed
// since the last debt entry (or since the oldest ledger entry when no debt
// was ever charged). Returns the amount charged, zero when no hour elapsed.
func (s *Store) ApplyHourlyDebt(hourlyDebt float64) (float64, error) {
	s.mu.Lock()
	var last sql.NullTime
	err := s.db.QueryRow(`SELECT MAX(created_at) FROM survival_ledger WHERE reason = ?`, debtReason).Scan(&last)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	if !last.Valid {
		err = s.db.QueryRow(`SELECT MIN(created_at) FROM survival_ledger`).Scan(&last)
		if err != nil {
			s.mu.Unlock()
			return 0, err
		}
	}
	s.mu.Unlock()

	if !last.Valid {
		// Empty ledger: start the clock with a zero-hour marker.
		return 0, s.AddSurvivalEntry(0, debtReason)
	}

	hours := time.Since(last.Time).Hours()
	if hours < 1 {
		return 0, nil
	}
	charge := -hours * hourlyDebt
	return charge, s.AddSurvivalEntry(charge, debtReason)
}
