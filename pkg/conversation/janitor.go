package conversation

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Janitor evicts idle sessions on a cron schedule.
type Janitor struct {
	store       *Store
	maxAgeHours int
	schedule    string
	logger      zerolog.Logger
	cron        *cron.Cron
	entryID     cron.EntryID
}

// JanitorConfig holds janitor configuration
type JanitorConfig struct {
	Store       *Store
	MaxAgeHours int
	Schedule    string // standard 5-field cron expression
	Logger      zerolog.Logger
}

// NewJanitor creates a janitor. It does not start until Start is called.
func NewJanitor(cfg JanitorConfig) (*Janitor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "0 * * * *" // hourly
	}
	maxAge := cfg.MaxAgeHours
	if maxAge <= 0 {
		maxAge = DefaultMaxAgeHours
	}

	return &Janitor{
		store:       cfg.Store,
		maxAgeHours: maxAge,
		schedule:    schedule,
		logger:      cfg.Logger,
		cron:        cron.New(),
	}, nil
}

// Start schedules the cleanup job.
func (j *Janitor) Start() error {
	id, err := j.cron.AddFunc(j.schedule, j.runOnce)
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", j.schedule, err)
	}
	j.entryID = id
	j.cron.Start()

	j.logger.Info().
		Str("schedule", j.schedule).
		Int("max_age_hours", j.maxAgeHours).
		Msg("Session janitor started")
	return nil
}

// Stop halts the schedule. In-flight runs complete.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info().Msg("Session janitor stopped")
}

func (j *Janitor) runOnce() {
	removed := j.store.CleanupOldSessions(j.maxAgeHours)
	if removed > 0 {
		j.logger.Info().Int("removed", removed).Msg("Janitor evicted idle sessions")
	}
}
