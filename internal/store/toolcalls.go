package store

import (
	"database/sql"
	"regexp"
	"time"
)

// Base64 image payloads are useless in the log and bloat the file; they are
// replaced before the row is written.
var base64ImagePattern = regexp.MustCompile(`data:image/[a-z]+;base64,[A-Za-z0-9+/=]+|"data"\s*:\s*"[A-Za-z0-9+/=]{256,}"`)

const imagePlaceholder = "[image data omitted]"

// LogToolCall appends one entry to the tool-call log. The parent task must
// exist; foreign keys enforce it.
func (s *Store) LogToolCall(taskID, toolName, input, output string, success bool, executionTimeMS int64) error {
	input = base64ImagePattern.ReplaceAllString(input, imagePlaceholder)
	output = base64ImagePattern.ReplaceAllString(output, imagePlaceholder)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO tool_calls (task_id, tool_name, input_json, output_truncated, success, execution_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		taskID, toolName, input, output, boolToInt(success), executionTimeMS, time.Now())
	return err
}

// ToolCallsForTask returns the log entries of one task in insertion order.
func (s *Store) ToolCallsForTask(taskID string) ([]ToolCallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, task_id, tool_name, input_json, output_truncated, success, execution_time_ms, created_at
		FROM tool_calls WHERE task_id = ? ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectToolCalls(rows)
}

func collectToolCalls(rows *sql.Rows) ([]ToolCallRecord, error) {
	var records []ToolCallRecord
	for rows.Next() {
		var r ToolCallRecord
		var success int
		if err := rows.Scan(&r.ID, &r.TaskID, &r.ToolName, &r.Input, &r.Output, &success, &r.ExecutionTimeMS, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Success = success != 0
		records = append(records, r)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
