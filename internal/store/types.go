package store

import "time"

// Task statuses. A task reaches exactly one terminal status; terminal rows
// are never updated again.
const (
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskStuck     = "stuck"
)

// Memory is a key-unique fact the agent has chosen to remember.
type Memory struct {
	Key         string
	Value       string
	Category    string
	Importance  int // 1..10
	AccessCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Score       float64 // populated by SearchMemory
}

// Task is one agent run.
type Task struct {
	ID          string
	SessionID   string
	Description string
	Status      string
	Result      string
	Iterations  int
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// ToolCallRecord is one append-only entry in the tool-call log.
type ToolCallRecord struct {
	ID              int64
	TaskID          string
	ToolName        string
	Input           string
	Output          string
	Success         bool
	ExecutionTimeMS int64
	CreatedAt       time.Time
}

// ConversationRow is one turn of a session's dialogue.
type ConversationRow struct {
	ID        int64
	SessionID string
	Role      string // "user" or "model"
	Content   string
	CreatedAt time.Time
}

// Thought is a reflection produced by the consciousness driver.
type Thought struct {
	ID        string
	Content   string
	Summary   string
	Category  string
	CreatedAt time.Time
}

// Knowledge is a learned item with an optional embedding vector stored in a
// side table keyed by the same id.
type Knowledge struct {
	ID         string
	Content    string
	Summary    string
	Source     string
	Importance int
	CreatedAt  time.Time
	Distance   float64 // populated by SearchKnowledge
}

// SurvivalEntry is one signed economic event. Balance is the sum of amounts.
type SurvivalEntry struct {
	ID        int64
	Amount    float64
	Reason    string
	CreatedAt time.Time
}

// TimelineEntry is the unified view over thoughts, knowledge and tasks.
type TimelineEntry struct {
	Type      string // "thought", "knowledge", "task"
	ID        string
	Content   string
	Summary   string
	Metadata  map[string]string
	Timestamp time.Time
}

// Publisher receives change notifications from the store. The event bus
// satisfies this; the store never imports the bus package.
type Publisher interface {
	Publish(stream string, payload any)
}
