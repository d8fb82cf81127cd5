package config

import "time"

// JobsConfig contains configuration for the in-memory report job table.
type JobsConfig struct {
	// Workers bounds how many report jobs may run concurrently.
	Workers int `env:"WORKERS" envDefault:"4"`

	// Timeout bounds how long a single report job may run.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10m"`

	// TTL is how long a job may sit in the table before the sweeper removes
	// it. This covers jobs whose submitter never polled for the result.
	TTL time.Duration `env:"TTL" envDefault:"30m"`

	// SweepInterval is how often the sweeper scans for abandoned jobs.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
}

// Sanitize applies guardrails to job table configuration values.
func (j *JobsConfig) Sanitize() {
	if j.Workers < 1 {
		j.Workers = 1
	}
	if j.Timeout <= 0 {
		j.Timeout = 10 * time.Minute
	}
	if j.TTL <= 0 {
		j.TTL = 30 * time.Minute
	}
	if j.SweepInterval <= 0 {
		j.SweepInterval = 5 * time.Minute
	}
}
