package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/flemzord/resticd/internal/cron"
)

// Validate checks the structural validity of a Config: the version field,
// every job's schedule and repository, and the API and queue settings.
// All problems are reported at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if cfg.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("config: queue_capacity must be positive, got %d", cfg.QueueCapacity))
	}

	if cfg.API.Enabled {
		if _, err := net.ResolveTCPAddr("tcp", cfg.API.Bind); err != nil {
			errs = append(errs, fmt.Errorf("config: api.bind: invalid address %q", cfg.API.Bind))
		}
	}

	for _, name := range cfg.JobNames() {
		errs = append(errs, validateJob(name, cfg.Jobs[name])...)
	}

	return errors.Join(errs...)
}

func validateJob(name string, job Job) []error {
	var errs []error

	if strings.TrimSpace(name) == "" {
		errs = append(errs, errors.New("config: job name must not be empty"))
	}
	if job.Cron == "" {
		errs = append(errs, fmt.Errorf("config: job %q: cron is required", name))
	} else if _, err := cron.ParseSchedule(job.Cron); err != nil {
		errs = append(errs, fmt.Errorf("config: job %q: invalid cron %q: %w", name, job.Cron, err))
	}
	if job.Repository.URL == "" {
		errs = append(errs, fmt.Errorf("config: job %q: repository.url is required", name))
	}
	if job.Repository.Password == "" {
		errs = append(errs, fmt.Errorf("config: job %q: repository.password is required", name))
	}
	if len(job.Backup.Sources) == 0 && !job.Backup.SourceFixedDrives {
		errs = append(errs, fmt.Errorf("config: job %q: backup needs sources or source_fixed_drives", name))
	}

	f := job.Forget
	for field, v := range map[string]*int{
		"keep_last": f.KeepLast, "keep_hourly": f.KeepHourly, "keep_daily": f.KeepDaily,
		"keep_weekly": f.KeepWeekly, "keep_monthly": f.KeepMonthly, "keep_yearly": f.KeepYearly,
	} {
		if v != nil && *v < 0 {
			errs = append(errs, fmt.Errorf("config: job %q: forget_and_prune.%s must not be negative", name, field))
		}
	}
	return errs
}

// ParseLogLevel maps a level name to a slog.Level. Empty means info.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: invalid log_level %q", s)
	}
	return level, nil
}
