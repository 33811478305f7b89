package domain

import "time"

// TaskState is the lifecycle state of a task.
// Transitions: QUEUED -> RUNNING -> {COMPLETED, FAILED}.
// No transition ever leaves a terminal state.
type TaskState string

const (
	TaskQueued    TaskState = "QUEUED"
	TaskRunning   TaskState = "RUNNING"
	TaskCompleted TaskState = "COMPLETED"
	TaskFailed    TaskState = "FAILED"
)

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition reports whether moving to next is a legal transition.
func (s TaskState) CanTransition(next TaskState) bool {
	switch s {
	case TaskQueued:
		return next == TaskRunning || next == TaskFailed
	case TaskRunning:
		return next == TaskCompleted || next == TaskFailed
	default:
		return false
	}
}

// TaskResult carries the successful outcome of a task.
type TaskResult struct {
	Payload    string           `json:"payload,omitempty"`
	ProviderID string           `json:"provider_id,omitempty"`
	CacheHit   bool             `json:"cache_hit"`
	Results    []ProviderResult `json:"results,omitempty"`
	Groups     []SuggestionGroup `json:"groups,omitempty"`
	Roadmap    *Roadmap         `json:"roadmap,omitempty"`
}

// Task is the externally visible unit of work.
type Task struct {
	ID          string      `json:"id"`
	Operation   Operation   `json:"operation"`
	Strategy    Strategy    `json:"strategy"`
	Providers   []string    `json:"providers"`
	State       TaskState   `json:"state"`
	Progress    int         `json:"progress"` // 0..100
	Stage       string      `json:"stage"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   time.Time   `json:"started_at,omitempty"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
	Result      *TaskResult `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// TaskEvent is one entry of a task's append-only progress log.
type TaskEvent struct {
	ID       string    `json:"id"`
	TaskID   string    `json:"task_id"`
	State    TaskState `json:"state"`
	Progress int       `json:"progress"`
	Stage    string    `json:"stage"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}
