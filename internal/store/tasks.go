package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StreamTasks is the bus stream name for task changes.
const StreamTasks = "tasks"

// CreateTask inserts a new running task and returns it.
func (s *Store) CreateTask(sessionID, description string) (*Task, error) {
	task := &Task{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Description: description,
		Status:      TaskRunning,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	_, err := s.db.Exec(`INSERT INTO tasks (id, session_id, description, status, result, iterations, created_at)
		VALUES (?, ?, ?, ?, '', 0, ?)`,
		task.ID, task.SessionID, task.Description, task.Status, task.CreatedAt)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.publish(StreamTasks, task)
	return task, nil
}

// IncrementTaskIteration bumps the iteration counter and returns the new value.
func (s *Store) IncrementTaskIteration(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`UPDATE tasks SET iterations = iterations + 1 WHERE id = ?`, id); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRow(`SELECT iterations FROM tasks WHERE id = ?`, id).Scan(&n)
	return n, err
}

// FinishTask sets a terminal status exactly once. A second terminal write to
// the same task is an error.
func (s *Store) FinishTask(id, status, result string) error {
	if status != TaskCompleted && status != TaskFailed && status != TaskStuck {
		return fmt.Errorf("not a terminal status: %s", status)
	}

	s.mu.Lock()
	now := time.Now()
	res, err := s.db.Exec(`UPDATE tasks SET status = ?, result = ?, completed_at = ? WHERE id = ? AND status = ?`,
		status, result, now, id, TaskRunning)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("task %s is not running; terminal status is immutable", id)
	}

	s.publish(StreamTasks, &Task{ID: id, Status: status, Result: result, CompletedAt: &now})
	return nil
}

// GetTask loads one task by id.
func (s *Store) GetTask(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT id, session_id, description, status, result, iterations, created_at, completed_at
		FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// RecentTasks returns the last n tasks for a session, newest first.
func (s *Store) RecentTasks(sessionID string, n int) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, session_id, description, status, result, iterations, created_at, completed_at
		FROM tasks WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// RecentTaskDescriptions returns the last n task descriptions for a session,
// newest first. Used by the repetition detector and task synthesis.
func (s *Store) RecentTaskDescriptions(sessionID string, n int) ([]string, error) {
	tasks, err := s.RecentTasks(sessionID, n)
	if err != nil {
		return nil, err
	}
	descs := make([]string, len(tasks))
	for i, t := range tasks {
		descs[i] = t.Description
	}
	return descs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var completed sql.NullTime
	if err := row.Scan(&t.ID, &t.SessionID, &t.Description, &t.Status, &t.Result, &t.Iterations, &t.CreatedAt, &completed); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("task not found")
		}
		return nil, err
	}
	if completed.Valid {
		t.CompletedAt = &completed.Time
	}
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*Task, error) {
	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
