// Package scheduler owns the process's one cron runtime and keeps it in sync
// with the stored jobs. All trigger bookkeeping goes through it; nothing
// else in the program talks to cron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/example/seat-scheduler/internal/booking"
	"github.com/example/seat-scheduler/internal/metrics"
	"github.com/example/seat-scheduler/internal/portal"
	"github.com/example/seat-scheduler/internal/schedule"
	"github.com/example/seat-scheduler/internal/store"
)

// Store is the persistence surface the scheduler needs. *store.Store
// implements it.
type Store interface {
	Job(ctx context.Context, id int64) (store.Job, error)
	EnabledJobs(ctx context.Context) ([]store.Job, error)
	SetJobEnabled(ctx context.Context, id int64, enabled bool) error
	StartLog(ctx context.Context, e store.LogEntry) (int64, error)
	FinishLog(ctx context.Context, id int64, status, seatDesc, message string) error
}

// BookingRunner executes one booking. *booking.Runner implements it.
type BookingRunner interface {
	Run(ctx context.Context, req booking.Request) (booking.Outcome, error)
}

// Defaults are the configured seat preferences applied to jobs that carry
// none of their own.
type Defaults struct {
	Seats      []int
	GroupRooms []int
}

// Options configure a Scheduler.
type Options struct {
	Location *time.Location // trigger timezone, default time.Local
	Workers  int            // concurrent bookings, default 2
	Defaults Defaults
	Logger   zerolog.Logger
}

// Scheduler maps job IDs onto cron entries and runs fired bookings through a
// bounded worker pool.
type Scheduler struct {
	store    Store
	runner   BookingRunner
	cron     *cron.Cron
	log      zerolog.Logger
	defaults Defaults
	sem      chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time

	mu      sync.Mutex
	entries map[int64]cron.EntryID
	ctx     context.Context
}

func New(st Store, runner BookingRunner, opts Options) *Scheduler {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{log: opts.Logger}),
		cron.WithChain(cron.Recover(cronLogger{log: opts.Logger})),
	)
	return &Scheduler{
		store:    st,
		runner:   runner,
		cron:     c,
		log:      opts.Logger,
		defaults: opts.Defaults,
		sem:      make(chan struct{}, workers),
		now:      time.Now,
		entries:  make(map[int64]cron.EntryID),
	}
}

// Run loads every enabled job, starts the cron runtime and blocks until the
// context ends, then drains in-flight bookings.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	jobs, err := s.store.EnabledJobs(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: load jobs: %w", err)
	}
	for _, job := range jobs {
		if err := s.Schedule(job); err != nil {
			s.log.Error().Err(err).Int64("job_id", job.ID).Str("job", job.Name).Msg("could not schedule job")
		}
	}
	s.cron.Start()
	s.log.Info().Int("jobs", len(jobs)).Msg("scheduler started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
	return nil
}

// Schedule registers or replaces the trigger for a job. It is idempotent;
// scheduling a disabled job just clears any existing trigger.
func (s *Scheduler) Schedule(job store.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(job.ID)
	if !job.Enabled {
		return nil
	}

	id := job.ID
	var entry cron.EntryID
	if job.Recurring {
		trig, err := schedule.Translate(job.CronDays, job.DateOffset, job.CronHour, job.CronMinute)
		if err != nil {
			return fmt.Errorf("job %q: %w", job.Name, err)
		}
		entry, err = s.cron.AddFunc(trig.CronSpec(), func() { s.fire(id) })
		if err != nil {
			return fmt.Errorf("job %q: register trigger %q: %w", job.Name, trig.CronSpec(), err)
		}
		s.log.Info().Int64("job_id", id).Str("job", job.Name).Str("cron", trig.CronSpec()).Msg("scheduled recurring job")
	} else {
		if job.RunAt == nil {
			return fmt.Errorf("job %q: one-shot job has no run time", job.Name)
		}
		if job.RunAt.Before(s.now()) {
			s.log.Warn().Int64("job_id", id).Str("job", job.Name).Time("run_at", *job.RunAt).Msg("one-shot run time already passed, not scheduling")
			return nil
		}
		entry = s.cron.Schedule(onceAt(*job.RunAt), cron.FuncJob(func() { s.fire(id) }))
		s.log.Info().Int64("job_id", id).Str("job", job.Name).Time("run_at", *job.RunAt).Msg("scheduled one-shot job")
	}
	s.entries[id] = entry
	metrics.JobsScheduled.Set(float64(len(s.entries)))
	return nil
}

// Unschedule drops a job's trigger if it has one.
func (s *Scheduler) Unschedule(jobID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(jobID)
}

func (s *Scheduler) removeLocked(jobID int64) {
	if entry, ok := s.entries[jobID]; ok {
		s.cron.Remove(entry)
		delete(s.entries, jobID)
		metrics.JobsScheduled.Set(float64(len(s.entries)))
	}
}

// NextRun reports when a scheduled job fires next.
func (s *Scheduler) NextRun(jobID int64) (time.Time, bool) {
	s.mu.Lock()
	entry, ok := s.entries[jobID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(entry).Next
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

func (s *Scheduler) runCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// fire runs when a trigger goes off. The semaphore keeps a burst of triggers
// from opening more portal sessions than configured.
func (s *Scheduler) fire(jobID int64) {
	s.wg.Add(1)
	defer s.wg.Done()
	ctx := s.runCtx()
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return
	}
	if _, err := s.RunJob(ctx, jobID, false); err != nil {
		s.log.Error().Err(err).Int64("job_id", jobID).Msg("scheduled booking failed")
	}
}

// RunJob executes one job's booking now. Triggered runs arrive here with
// manual false; the dashboard's run-now and the CLI pass true, which also
// runs the job when it is disabled.
//
// The history row is written before the portal is touched and finalized
// afterwards, so a crash mid-run stays visible as a running row. A one-shot
// job is disabled after its single fire regardless of the outcome.
func (s *Scheduler) RunJob(ctx context.Context, jobID int64, manual bool) (booking.Outcome, error) {
	job, err := s.store.Job(ctx, jobID)
	if err != nil {
		return booking.Outcome{}, fmt.Errorf("load job %d: %w", jobID, err)
	}
	if !job.Enabled && !manual {
		s.log.Info().Int64("job_id", jobID).Str("job", job.Name).Msg("job disabled, skipping run")
		return booking.Outcome{}, nil
	}

	target, targetErr := job.TargetFor(s.now())
	entry := store.LogEntry{
		JobID:     &job.ID,
		JobName:   job.Name,
		LibraryID: job.LibraryID,
		TimeSlot:  job.TimeSlot,
		GroupRoom: job.GroupRoom,
		Manual:    manual,
	}
	if targetErr == nil {
		entry.TargetDate = target.Format("02.01.2006")
	}
	logID, err := s.store.StartLog(ctx, entry)
	if err != nil {
		return booking.Outcome{}, fmt.Errorf("record run start: %w", err)
	}

	out, runErr := s.execute(ctx, job, target, targetErr)
	status, seat, msg := outcomeRow(out, runErr)
	if err := s.store.FinishLog(ctx, logID, status, seat, msg); err != nil {
		s.log.Error().Err(err).Int64("log_id", logID).Msg("could not finalize history row")
	}

	if !job.Recurring {
		s.Unschedule(job.ID)
		if err := s.store.SetJobEnabled(ctx, job.ID, false); err != nil {
			s.log.Error().Err(err).Int64("job_id", job.ID).Msg("could not disable one-shot job")
		}
	}
	return out, runErr
}

func (s *Scheduler) execute(ctx context.Context, job store.Job, target time.Time, targetErr error) (booking.Outcome, error) {
	if targetErr != nil {
		return booking.Outcome{}, targetErr
	}
	slot, err := portal.ParseTimeRange(job.TimeSlot)
	if err != nil {
		return booking.Outcome{}, err
	}
	req := booking.Request{
		LibraryID:        job.LibraryID,
		Date:             target,
		Slot:             slot,
		Kind:             portal.KindForGroup(job.GroupRoom),
		PreferredSection: job.PreferredSection,
		PreferredNumbers: job.PreferredSeats,
	}
	if len(req.PreferredNumbers) == 0 {
		if job.GroupRoom {
			req.PreferredNumbers = s.defaults.GroupRooms
		} else {
			req.PreferredNumbers = s.defaults.Seats
		}
	}
	return s.runner.Run(ctx, req)
}

// outcomeRow maps a run result onto the history columns. Portal failures are
// ordinary booking outcomes; anything else is an operational error.
func outcomeRow(out booking.Outcome, err error) (status, seat, msg string) {
	switch {
	case err == nil:
		return store.StatusSuccess, out.SeatDesc, out.Message()
	case isPortalError(err):
		return store.StatusFailed, "", err.Error()
	default:
		return store.StatusError, "", err.Error()
	}
}

func isPortalError(err error) bool {
	var perr *portal.Error
	return errors.As(err, &perr)
}

// onceAt adapts an absolute time to cron's Schedule interface: it fires once
// and then never again.
type onceAt time.Time

func (o onceAt) Next(t time.Time) time.Time {
	at := time.Time(o)
	if t.Before(at) {
		return at
	}
	return time.Time{}
}

// cronLogger forwards the cron runtime's own logging to zerolog. Routine
// messages are debug noise; errors include recovered job panics.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug().Fields(kv).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error().Err(err).Fields(kv).Msg(msg)
}
