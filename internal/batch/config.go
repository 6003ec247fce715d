package batch

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/MateusSouzaG/bitrix-exporter/internal/export"
)

// JobConfig represents one scheduled export configuration
type JobConfig struct {
	Name             string `toml:"name"`
	Cron             string `toml:"cron"`
	Department       string `toml:"department"`
	NameFilter       string `toml:"name_filter"`
	Preset           string `toml:"preset"`
	Status           string `toml:"status"`
	NotifyOnComplete bool   `toml:"notify_on_complete"`
}

// ScheduleConfig holds all scheduled export configurations
type ScheduleConfig struct {
	Jobs []JobConfig `toml:"job"`
}

// Request translates the job into an export request.
func (c *JobConfig) Request() export.Request {
	return export.Request{
		Department: c.Department,
		Name:       c.NameFilter,
		Preset:     c.Preset,
		Status:     c.Status,
	}
}

// Validate checks if the config is valid
func (c *JobConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if c.Preset == "" {
		c.Preset = "last_7_days" // Default window for recurring exports
	}
	return nil
}

// LoadScheduleConfig loads the schedule configuration from a TOML file
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Jobs {
		if err := cfg.Jobs[i].Validate(); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
	}

	return &cfg, nil
}
