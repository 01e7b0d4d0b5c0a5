package store

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
)

// UpsertMemory inserts or replaces the value stored under key. Importance is
// clamped into 1..10.
func (s *Store) UpsertMemory(key, value, category string, importance int) error {
	if key == "" {
		return fmt.Errorf("memory key must not be empty")
	}
	if importance < 1 {
		importance = 1
	}
	if importance > 10 {
		importance = 10
	}
	if category == "" {
		category = "general"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	query := `INSERT INTO memories (key, value, category, importance, access_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, category = excluded.category,
			importance = excluded.importance, updated_at = excluded.updated_at`
	_, err := s.db.Exec(query, key, value, category, importance, now, now)
	return err
}

// GetMemory returns the memory under key and increments its access count.
func (s *Store) GetMemory(key string) (*Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT key, value, category, importance, access_count, created_at, updated_at
		FROM memories WHERE key = ?`, key)
	var m Memory
	if err := row.Scan(&m.Key, &m.Value, &m.Category, &m.Importance, &m.AccessCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("memory not found: %s", key)
		}
		return nil, err
	}

	if _, err := s.db.Exec(`UPDATE memories SET access_count = access_count + 1 WHERE key = ?`, key); err != nil {
		return nil, err
	}
	m.AccessCount++
	return &m, nil
}

// DeleteMemory removes the memory under key if present.
func (s *Store) DeleteMemory(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM memories WHERE key = ?`, key)
	return err
}

// SearchMemory scores all memories against the query by keyword overlap:
// one point per query token found in each of (key, value, category), plus
// 0.1*importance plus 0.2*log(1+access_count). Ties break by importance,
// then by updated_at, newest first.
func (s *Store) SearchMemory(query string, limit int) ([]Memory, error) {
	tokens := tokenizeQuery(query)

	s.mu.Lock()
	rows, err := s.db.Query(`SELECT key, value, category, importance, access_count, created_at, updated_at FROM memories`)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var all []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.Key, &m.Value, &m.Category, &m.Importance, &m.AccessCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
			rows.Close()
			s.mu.Unlock()
			return nil, err
		}
		all = append(all, m)
	}
	rows.Close()
	s.mu.Unlock()

	var scored []Memory
	for _, m := range all {
		keyLower := strings.ToLower(m.Key)
		valLower := strings.ToLower(m.Value)
		catLower := strings.ToLower(m.Category)

		matches := 0
		for _, tok := range tokens {
			if strings.Contains(keyLower, tok) {
				matches++
			}
			if strings.Contains(valLower, tok) {
				matches++
			}
			if strings.Contains(catLower, tok) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		m.Score = float64(matches) + 0.1*float64(m.Importance) + 0.2*math.Log(1+float64(m.AccessCount))
		scored = append(scored, m)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Importance != scored[j].Importance {
			return scored[i].Importance > scored[j].Importance
		}
		return scored[i].UpdatedAt.After(scored[j].UpdatedAt)
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// PruneMemories deletes the least valuable rows until at most max remain.
// Victims are chosen by ascending (importance, access_count, updated_at).
func (s *Store) PruneMemories(max int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&count); err != nil {
		return 0, err
	}
	if count <= max {
		return 0, nil
	}

	excess := count - max
	res, err := s.db.Exec(`DELETE FROM memories WHERE key IN (
		SELECT key FROM memories ORDER BY importance ASC, access_count ASC, updated_at ASC LIMIT ?)`, excess)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountMemories returns the number of stored memories.
func (s *Store) CountMemories() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&count)
	return count, err
}

func tokenizeQuery(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-' && r != '_'
	})
	seen := make(map[string]bool, len(fields))
	var tokens []string
	for _, f := range fields {
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}
