// Package selector chooses the next backend for a task type according to the
// configured rotation strategy.
package selector

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"adversarial-mcp/backend/pkg/models"
)

// Rotation strategies.
const (
	StrategyFixed      = "fixed"
	StrategyRoundRobin = "round_robin"
	StrategyRandom     = "random"
	StrategyWeighted   = "weighted"
)

// ErrNoModels is returned when a task type has no configured models. This is
// a configuration error and fatal to the run.
var ErrNoModels = errors.New("no models configured for task type")

// Selector rotates through per-task model pools. Round-robin cursors are
// in-memory; losing them on restart just resets rotation to the first model.
type Selector struct {
	mu       sync.Mutex
	strategy string
	pools    map[models.TaskType][]models.ModelConfig
	cursors  map[models.TaskType]int
	rnd      *rand.Rand
}

// New builds a selector. It fails eagerly if the strategy is unknown or any
// known task type has an empty pool.
func New(strategy string, pools map[models.TaskType][]models.ModelConfig) (*Selector, error) {
	switch strategy {
	case StrategyFixed, StrategyRoundRobin, StrategyRandom, StrategyWeighted:
	default:
		return nil, fmt.Errorf("unknown rotation strategy %q", strategy)
	}
	for _, task := range models.AllTaskTypes {
		if len(pools[task]) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoModels, task)
		}
	}
	return &Selector{
		strategy: strategy,
		pools:    pools,
		cursors:  make(map[models.TaskType]int),
		rnd:      rand.New(rand.NewSource(rand.Int63())),
	}, nil
}

// Select returns the next model for task per the rotation strategy.
func (s *Selector) Select(task models.TaskType) (models.ModelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.pools[task]
	if len(pool) == 0 {
		return models.ModelConfig{}, fmt.Errorf("%w: %s", ErrNoModels, task)
	}

	switch s.strategy {
	case StrategyFixed:
		return pool[0], nil
	case StrategyRandom:
		return pool[s.rnd.Intn(len(pool))], nil
	case StrategyWeighted:
		return s.weighted(pool), nil
	default: // round_robin
		cursor := s.cursors[task]
		m := pool[cursor%len(pool)]
		s.cursors[task] = (cursor + 1) % len(pool)
		return m, nil
	}
}

// Pool returns every model configured for task, in order. The orchestrator
// uses this to fan a bug check across all checking models.
func (s *Selector) Pool(task models.TaskType) ([]models.ModelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.pools[task]
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoModels, task)
	}
	out := make([]models.ModelConfig, len(pool))
	copy(out, pool)
	return out, nil
}

// weighted performs a cumulative-weight scan against a uniform draw. Models
// without an explicit weight count as weight 1. Caller holds the lock.
func (s *Selector) weighted(pool []models.ModelConfig) models.ModelConfig {
	total := 0
	for _, m := range pool {
		total += weightOf(m)
	}
	draw := s.rnd.Intn(total)
	acc := 0
	for _, m := range pool {
		acc += weightOf(m)
		if draw < acc {
			return m
		}
	}
	return pool[len(pool)-1]
}

func weightOf(m models.ModelConfig) int {
	if m.Weight <= 0 {
		return 1
	}
	return m.Weight
}
