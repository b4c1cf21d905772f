// internal/workers/itinerary/generate-itinerary/config.go
package generateitinerary

import (
	"time"

	"tripgen/internal/common/config"
)

type Config struct {
	Timeout       time.Duration
	MaxJobsActive int
}

func LoadConfig(wc config.WorkerConfig) *Config {
	cfg := &Config{
		Timeout:       config.GetDuration(wc.Timeout),
		MaxJobsActive: wc.MaxJobsActive,
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxJobsActive <= 0 {
		cfg.MaxJobsActive = 5
	}
	return cfg
}
