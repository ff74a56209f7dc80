// Package maintenance drives the periodic housekeeping run: per clinic,
// reconcile the session log, sweep overdue appointments to missed, expand
// due recurring templates and queue reminders.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/therakit/therakit/internal/domain/reconcile"
	"github.com/therakit/therakit/internal/domain/template"
	"github.com/therakit/therakit/internal/platform/notification"
)

var ErrAlreadyRunning = errors.New("maintenance run already in progress")

// ClinicLister enumerates the clinics to maintain.
type ClinicLister func(ctx context.Context) ([]string, error)

// ClinicScope runs fn against a context scoped to one clinic's data, the
// way db.WithClinic does in production.
type ClinicScope func(ctx context.Context, clinicID string, fn func(ctx context.Context) error) error

// Reconciler runs the session-reconciliation pass.
type Reconciler interface {
	Reconcile(ctx context.Context, autoConvert bool) (*reconcile.Report, error)
}

// Sweeper moves overdue scheduled appointments to missed.
type Sweeper interface {
	MarkMissed(ctx context.Context, hoursAfter int) (int64, error)
}

// Generator expands due recurring templates.
type Generator interface {
	GenerateDue(ctx context.Context) (*template.DueReport, error)
}

// Reminders counts the scheduled appointments a reminder batch covers.
type Reminders interface {
	CountScheduledOn(ctx context.Context, date time.Time) (int, error)
}

// Config tunes one maintenance run.
type Config struct {
	MissedAfterHours int
	AutoConvert      bool
}

// ClinicReport is the per-clinic outcome of one run.
type ClinicReport struct {
	ClinicID              string   `json:"clinic_id"`
	SessionsMatched       int      `json:"sessions_matched"`
	OrphansFound          int      `json:"orphans_found"`
	OrphansConverted      int      `json:"orphans_converted"`
	MarkedMissed          int64    `json:"marked_missed"`
	TemplatesProcessed    int      `json:"templates_processed"`
	AppointmentsGenerated int      `json:"appointments_generated"`
	GenerationConflicts   int      `json:"generation_conflicts"`
	RemindersQueued       int      `json:"reminders_queued"`
	Errors                []string `json:"errors,omitempty"`
}

// RunReport aggregates a full run across clinics.
type RunReport struct {
	StartedAt             time.Time      `json:"started_at"`
	FinishedAt            time.Time      `json:"finished_at"`
	Clinics               int            `json:"clinics"`
	SessionsMatched       int            `json:"sessions_matched"`
	OrphansFound          int            `json:"orphans_found"`
	OrphansConverted      int            `json:"orphans_converted"`
	MarkedMissed          int64          `json:"marked_missed"`
	AppointmentsGenerated int            `json:"appointments_generated"`
	RemindersQueued       int            `json:"reminders_queued"`
	ClinicReports         []ClinicReport `json:"clinic_reports,omitempty"`
	Errors                []string       `json:"errors,omitempty"`
}

// Orchestrator owns the maintenance run. All collaborators are explicit;
// construct one per process and share it between the HTTP trigger, the
// CLI and the ticker.
type Orchestrator struct {
	clinics    ClinicLister
	scope      ClinicScope
	reconciler Reconciler
	sweeper    Sweeper
	generator  Generator
	reminders  Reminders
	notifier   notification.Notifier
	cfg        Config
	logger     zerolog.Logger

	running    atomic.Bool
	mu         sync.Mutex
	lastReport *RunReport
}

func NewOrchestrator(clinics ClinicLister, scope ClinicScope, reconciler Reconciler, sweeper Sweeper, generator Generator, reminders Reminders, notifier notification.Notifier, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.MissedAfterHours <= 0 {
		cfg.MissedAfterHours = 2
	}
	return &Orchestrator{
		clinics:    clinics,
		scope:      scope,
		reconciler: reconciler,
		sweeper:    sweeper,
		generator:  generator,
		reminders:  reminders,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes one maintenance pass over every clinic. Only one run may
// be in flight per process; a concurrent call gets ErrAlreadyRunning. A
// failing clinic or step is recorded and the run continues.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer o.running.Store(false)

	report := &RunReport{StartedAt: time.Now()}

	clinics, err := o.clinics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clinics: %w", err)
	}
	report.Clinics = len(clinics)

	for _, clinicID := range clinics {
		cr := o.runClinic(ctx, clinicID)
		report.SessionsMatched += cr.SessionsMatched
		report.OrphansFound += cr.OrphansFound
		report.OrphansConverted += cr.OrphansConverted
		report.MarkedMissed += cr.MarkedMissed
		report.AppointmentsGenerated += cr.AppointmentsGenerated
		report.RemindersQueued += cr.RemindersQueued
		report.ClinicReports = append(report.ClinicReports, cr)
		for _, e := range cr.Errors {
			report.Errors = append(report.Errors, fmt.Sprintf("clinic %s: %s", clinicID, e))
		}
	}

	report.FinishedAt = time.Now()
	o.logger.Info().
		Int("clinics", report.Clinics).
		Int("matched", report.SessionsMatched).
		Int("orphans", report.OrphansFound).
		Int64("missed", report.MarkedMissed).
		Int("generated", report.AppointmentsGenerated).
		Int("errors", len(report.Errors)).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("maintenance run finished")

	o.mu.Lock()
	o.lastReport = report
	o.mu.Unlock()
	return report, nil
}

func (o *Orchestrator) runClinic(ctx context.Context, clinicID string) ClinicReport {
	cr := ClinicReport{ClinicID: clinicID}

	err := o.scope(ctx, clinicID, func(ctx context.Context) error {
		if rep, err := o.reconciler.Reconcile(ctx, o.cfg.AutoConvert); err != nil {
			cr.Errors = append(cr.Errors, fmt.Sprintf("reconcile: %v", err))
		} else {
			cr.SessionsMatched = rep.Matching.Matched
			cr.OrphansFound = rep.OrphanCount
			if rep.Conversion != nil {
				cr.OrphansConverted = rep.Conversion.Converted
			}
			cr.Errors = append(cr.Errors, rep.Matching.Errors...)
		}

		if n, err := o.sweeper.MarkMissed(ctx, o.cfg.MissedAfterHours); err != nil {
			cr.Errors = append(cr.Errors, fmt.Sprintf("mark missed: %v", err))
		} else {
			cr.MarkedMissed = n
		}

		if rep, err := o.generator.GenerateDue(ctx); err != nil {
			cr.Errors = append(cr.Errors, fmt.Sprintf("generate due: %v", err))
		} else {
			cr.TemplatesProcessed = rep.Templates
			cr.AppointmentsGenerated = rep.Created
			cr.GenerationConflicts = rep.Conflicts
			cr.Errors = append(cr.Errors, rep.Errors...)
		}

		tomorrow := time.Now().AddDate(0, 0, 1)
		if n, err := o.reminders.CountScheduledOn(ctx, tomorrow); err != nil {
			cr.Errors = append(cr.Errors, fmt.Sprintf("count reminders: %v", err))
		} else if n > 0 {
			cr.RemindersQueued = n
			if o.notifier != nil {
				_ = o.notifier.Notify(ctx, clinicID, notification.EventReminderDue, n)
			}
		}
		return nil
	})
	if err != nil {
		cr.Errors = append(cr.Errors, fmt.Sprintf("clinic scope: %v", err))
	}
	return cr
}

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// LastReport returns the most recent run's report, or nil before the
// first run.
func (o *Orchestrator) LastReport() *RunReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastReport
}

// Reset clears the stored report. Has no effect on a run in flight.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastReport = nil
}

// StartPeriodic launches the maintenance ticker. It stops when ctx is
// cancelled.
func (o *Orchestrator) StartPeriodic(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		o.logger.Info().Dur("interval", interval).Msg("periodic maintenance started")
		for {
			select {
			case <-ctx.Done():
				o.logger.Info().Msg("periodic maintenance stopped")
				return
			case <-ticker.C:
				if _, err := o.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
					o.logger.Error().Err(err).Msg("maintenance run failed")
				}
			}
		}
	}()
}
