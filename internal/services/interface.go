package services

import (
	"context"

	"adversarial-mcp/backend/pkg/models"
)

// LLMCaller performs one generate/check/fix/feature call against a backend.
type LLMCaller interface {
	Call(ctx context.Context, model models.ModelConfig, input, action, language string) (string, error)
}

// ModelSelector provides backends for a task type per the rotation strategy.
type ModelSelector interface {
	// Select returns the next model for the task.
	Select(task models.TaskType) (models.ModelConfig, error)
	// Pool returns every model configured for the task, in order.
	Pool(task models.TaskType) ([]models.ModelConfig, error)
}
