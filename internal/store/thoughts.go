package store

import (
	"time"

	"github.com/google/uuid"
)

// StreamThoughts is the bus stream name for new thoughts.
const StreamThoughts = "thoughts"

// AddThought stores a reflection and returns it.
func (s *Store) AddThought(content, summary, category string) (*Thought, error) {
	if category == "" {
		category = "reflection"
	}
	th := &Thought{
		ID:        uuid.NewString(),
		Content:   content,
		Summary:   summary,
		Category:  category,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	_, err := s.db.Exec(`INSERT INTO thoughts (id, content, summary, category, created_at) VALUES (?, ?, ?, ?, ?)`,
		th.ID, th.Content, th.Summary, th.Category, th.CreatedAt)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.publish(StreamThoughts, th)
	return th, nil
}

// RecentThoughts returns the last n thoughts, newest first.
func (s *Store) RecentThoughts(n int) ([]Thought, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, content, summary, category, created_at
		FROM thoughts ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var thoughts []Thought
	for rows.Next() {
		var th Thought
		if err := rows.Scan(&th.ID, &th.Content, &th.Summary, &th.Category, &th.CreatedAt); err != nil {
			return nil, err
		}
		thoughts = append(thoughts, th)
	}
	return thoughts, rows.Err()
}

// CountThoughts returns the number of stored thoughts.
func (s *Store) CountThoughts() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM thoughts`).Scan(&count)
	return count, err
}

// PruneThoughts deletes thoughts older than the retention window.
func (s *Store) PruneThoughts(retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM thoughts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
