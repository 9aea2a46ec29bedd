package models

import (
	"time"
)

// EntryStatus tracks the lifecycle of a refinement run.
type EntryStatus string

const (
	StatusProcessing EntryStatus = "processing"
	StatusCompleted  EntryStatus = "completed"
	StatusFailed     EntryStatus = "failed"
)

// TaskType selects the eligible model pool for a call.
type TaskType string

const (
	TaskGeneration TaskType = "generation"
	TaskChecking   TaskType = "checking"
	TaskFixing     TaskType = "fixing"
	TaskFeature    TaskType = "feature"
)

// AllTaskTypes is the closed set of task types the engine dispatches on.
var AllTaskTypes = []TaskType{TaskGeneration, TaskChecking, TaskFixing, TaskFeature}

// RefinementEntry is the persisted record of one refinement run. It is created
// when the run starts and mutated only by the orchestrator driving that run.
type RefinementEntry struct {
	ID                  string      `json:"id"`
	Prompt              string      `json:"prompt"`
	Language            string      `json:"language"`
	Features            []string    `json:"features,omitempty"`
	Status              EntryStatus `json:"status"`
	GeneratedCode       string      `json:"generated_code"`
	BugReport           string      `json:"bug_report"`
	Severity            string      `json:"severity,omitempty"`
	IterationCount      int         `json:"iteration_count"`
	FeaturesImplemented int         `json:"features_implemented"`
	DurationSeconds     float64     `json:"duration_seconds"`
	ErrorText           string      `json:"error_text,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
	CompletedAt         *time.Time  `json:"completed_at,omitempty"`
}

// TaskDefaults carries the sampling defaults a model applies for one task type.
type TaskDefaults struct {
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// ModelConfig describes one configured LLM backend.
type ModelConfig struct {
	ID              string                  `json:"id" mapstructure:"id"`
	Endpoint        string                  `json:"endpoint" mapstructure:"endpoint"`
	Credential      string                  `json:"-" mapstructure:"credential"`
	Defaults        map[string]TaskDefaults `json:"defaults,omitempty" mapstructure:"defaults"`
	CallsPerMinute  int                     `json:"calls_per_minute" mapstructure:"calls_per_minute"`
	TokensPerMinute int                     `json:"tokens_per_minute" mapstructure:"tokens_per_minute"`
	Weight          int                     `json:"weight" mapstructure:"weight"`
}

// DefaultsFor returns the sampling defaults for an action, falling back to
// conservative engine-wide values when the model does not configure the task.
func (m ModelConfig) DefaultsFor(action string) TaskDefaults {
	if d, ok := m.Defaults[action]; ok {
		if d.MaxTokens <= 0 {
			d.MaxTokens = DefaultMaxTokens
		}
		return d
	}
	return TaskDefaults{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
}

// Engine-wide sampling fallbacks applied when a model omits per-task defaults.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 2048
)

// RefinementResult is the success output of a run, returned to the caller and
// mirrored onto the persisted entry.
type RefinementResult struct {
	ID                  string  `json:"id"`
	Code                string  `json:"code"`
	Iterations          int     `json:"iterations"`
	FeaturesImplemented int     `json:"features_implemented,omitempty"`
	DurationSeconds     float64 `json:"duration_seconds"`
}
