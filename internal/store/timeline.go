package store

import "time"

// StreamTimeline is the bus stream name for unified timeline updates.
const StreamTimeline = "timeline"

// Timeline unions thoughts, knowledge and tasks into one feed, newest first.
func (s *Store) Timeline(limit int) ([]TimelineEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT 'thought' AS type, id, content, summary, '' AS meta, created_at FROM thoughts
		UNION ALL
		SELECT 'knowledge', id, content, summary, source, created_at FROM knowledge
		UNION ALL
		SELECT 'task', id, description, result, status, created_at FROM tasks
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		var meta string
		var ts time.Time
		if err := rows.Scan(&e.Type, &e.ID, &e.Content, &e.Summary, &meta, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = ts
		switch e.Type {
		case "knowledge":
			e.Metadata = map[string]string{"source": meta}
		case "task":
			e.Metadata = map[string]string{"status": meta}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
