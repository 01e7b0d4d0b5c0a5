package store

import (
	"fmt"
	"time"
)

// AppendConversation stores one dialogue turn for a session.
func (s *Store) AppendConversation(sessionID, role, content string) error {
	if role != "user" && role != "model" {
		return fmt.Errorf("invalid conversation role: %s", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO conversations (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, role, content, time.Now())
	return err
}

// ConversationHistory returns all turns of a session in creation order.
func (s *Store) ConversationHistory(sessionID string) ([]ConversationRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, session_id, role, content, created_at
		FROM conversations WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []ConversationRow
	for rows.Next() {
		var r ConversationRow
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Role, &r.Content, &r.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, r)
	}
	return history, rows.Err()
}

// RecentConversation returns the last n turns of a session in creation order.
func (s *Store) RecentConversation(sessionID string, n int) ([]ConversationRow, error) {
	history, err := s.ConversationHistory(sessionID)
	if err != nil {
		return nil, err
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	return history, nil
}

// PruneConversation keeps only the last keep turns of a session.
func (s *Store) PruneConversation(sessionID string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM conversations WHERE session_id = ? AND id NOT IN (
		SELECT id FROM conversations WHERE session_id = ? ORDER BY id DESC LIMIT ?)`,
		sessionID, sessionID, keep)
	return err
}

// ClearConversation removes every turn of a session. The consciousness
// driver uses this to reset poisoned autonomous state.
func (s *Store) ClearConversation(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM conversations WHERE session_id = ?`, sessionID)
	return err
}
