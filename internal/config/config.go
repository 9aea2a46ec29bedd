package config

import (
	"fmt"

	"github.com/spf13/viper"

	"adversarial-mcp/backend/internal/ratelimit"
	"adversarial-mcp/backend/pkg/models"
)

// Engine knob bounds. Out-of-range values are clamped, not rejected, so a
// sloppy config degrades instead of failing the process.
const (
	DefaultMaxIterations  = 5
	MinMaxIterations      = 1
	MaxMaxIterations      = 20
	DefaultIterationLimit = 3
	MinIterationLimit     = 1
	MaxIterationLimit     = 10
	DefaultCacheTTL       = 3600
)

// Config holds the configuration for the application.
type Config struct {
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Engine struct {
		MaxIterations    int    `mapstructure:"max_iterations"`
		IterationLimit   int    `mapstructure:"iteration_limit"`
		RotationStrategy string `mapstructure:"rotation_strategy"`
		CacheTTLSeconds  int    `mapstructure:"cache_ttl_seconds"`
		Verbose          bool   `mapstructure:"verbose"`
	} `mapstructure:"engine"`
	// Models is the backend registry.
	Models []models.ModelConfig `mapstructure:"models"`
	// Tasks maps a task type to its ordered model-id pool.
	Tasks map[string][]string `mapstructure:"tasks"`
	// Credentials maps a model id to its secret, overriding any credential
	// set inline on the model. Kept separate so secrets can come from env.
	Credentials map[string]string `mapstructure:"credentials"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if path != "" {
		viper.SetConfigFile(path)
	}
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	viper.SetDefault("engine.max_iterations", DefaultMaxIterations)
	viper.SetDefault("engine.iteration_limit", DefaultIterationLimit)
	viper.SetDefault("engine.rotation_strategy", "round_robin")
	viper.SetDefault("engine.cache_ttl_seconds", DefaultCacheTTL)
	viper.SetDefault("db.sslmode", "disable")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// normalize clamps engine knobs into their documented ranges and merges the
// credential map onto the model registry.
func (c *Config) normalize() {
	c.Engine.MaxIterations = clamp(c.Engine.MaxIterations, MinMaxIterations, MaxMaxIterations, DefaultMaxIterations)
	c.Engine.IterationLimit = clamp(c.Engine.IterationLimit, MinIterationLimit, MaxIterationLimit, DefaultIterationLimit)
	if c.Engine.RotationStrategy == "" {
		c.Engine.RotationStrategy = "round_robin"
	}
	if c.Engine.CacheTTLSeconds <= 0 {
		c.Engine.CacheTTLSeconds = DefaultCacheTTL
	}
	for i := range c.Models {
		if secret, ok := c.Credentials[c.Models[i].ID]; ok {
			c.Models[i].Credential = secret
		}
	}
}

// Validate fails fast on a registry the engine cannot run with: duplicate or
// unknown model ids, or a task type with no models.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("model with empty id")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate model id %q", m.ID)
		}
		seen[m.ID] = true
	}
	for _, task := range models.AllTaskTypes {
		ids := c.Tasks[string(task)]
		if len(ids) == 0 {
			return fmt.Errorf("no models configured for task type %q", task)
		}
		for _, id := range ids {
			if !seen[id] {
				return fmt.Errorf("task type %q references unknown model %q", task, id)
			}
		}
	}
	return nil
}

// Pools resolves the task map into per-task model pools for the selector.
func (c *Config) Pools() map[models.TaskType][]models.ModelConfig {
	byID := make(map[string]models.ModelConfig, len(c.Models))
	for _, m := range c.Models {
		byID[m.ID] = m
	}
	pools := make(map[models.TaskType][]models.ModelConfig, len(c.Tasks))
	for task, ids := range c.Tasks {
		pool := make([]models.ModelConfig, 0, len(ids))
		for _, id := range ids {
			if m, ok := byID[id]; ok {
				pool = append(pool, m)
			}
		}
		pools[models.TaskType(task)] = pool
	}
	return pools
}

// Limits builds the per-model rate-limit ceilings.
func (c *Config) Limits() map[string]ratelimit.Limits {
	limits := make(map[string]ratelimit.Limits, len(c.Models))
	for _, m := range c.Models {
		limits[m.ID] = ratelimit.Limits{
			CallsPerMinute:  m.CallsPerMinute,
			TokensPerMinute: m.TokensPerMinute,
		}
	}
	return limits
}

func clamp(v, lo, hi, def int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
