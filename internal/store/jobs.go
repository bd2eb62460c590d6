package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/seat-scheduler/internal/db"
	"github.com/example/seat-scheduler/internal/portal"
	"github.com/example/seat-scheduler/internal/schedule"
)

// Job is a stored booking order. Recurring jobs carry the weekday list and
// booking-window offset the trigger is computed from; one-shot jobs carry an
// absolute fire time and the date to book.
type Job struct {
	ID               int64
	Name             string
	LibraryID        int
	TimeSlot         string
	GroupRoom        bool
	PreferredSection string
	PreferredSeats   []int
	Recurring        bool
	CronDays         string
	DateOffset       int
	CronHour         int
	CronMinute       int
	RunAt            *time.Time
	TargetDate       string
	Enabled          bool
	CreatedAt        time.Time
}

const dateLayout = "02.01.2006"

// Validate checks a job before it is stored, so the scheduler never loads a
// job it cannot translate into a trigger.
func (j Job) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("job name is required")
	}
	if err := portal.ValidateLibrary(j.LibraryID); err != nil {
		return err
	}
	if _, err := portal.ParseTimeRange(j.TimeSlot); err != nil {
		return err
	}
	if j.Recurring {
		if j.DateOffset < 0 {
			return fmt.Errorf("date offset must not be negative")
		}
		if _, err := schedule.Translate(j.CronDays, j.DateOffset, j.CronHour, j.CronMinute); err != nil {
			return err
		}
		return nil
	}
	if j.RunAt == nil {
		return fmt.Errorf("one-shot job needs a run time")
	}
	if j.TargetDate == "" {
		return fmt.Errorf("one-shot job needs a target date")
	}
	if _, err := time.Parse(dateLayout, j.TargetDate); err != nil {
		return fmt.Errorf("target date %q must be DD.MM.YYYY", j.TargetDate)
	}
	return nil
}

// TargetFor resolves the calendar date the job books when it fires at now.
func (j Job) TargetFor(now time.Time) (time.Time, error) {
	if j.Recurring {
		return now.AddDate(0, 0, j.DateOffset), nil
	}
	if j.TargetDate == "" {
		return time.Time{}, fmt.Errorf("job %q has no target date", j.Name)
	}
	return time.ParseInLocation(dateLayout, j.TargetDate, now.Location())
}

const jobCols = `id, name, library_id, time_slot, group_room,
	COALESCE(preferred_section, ''), COALESCE(preferred_seats, ''),
	recurring, COALESCE(cron_days, ''), COALESCE(date_offset, 0),
	COALESCE(cron_hour, 0), COALESCE(cron_minute, 0),
	run_at, COALESCE(target_date, ''), enabled, created_at`

func scanJob(row db.Row) (Job, error) {
	var j Job
	var seats string
	err := row.Scan(&j.ID, &j.Name, &j.LibraryID, &j.TimeSlot, &j.GroupRoom,
		&j.PreferredSection, &seats, &j.Recurring, &j.CronDays, &j.DateOffset,
		&j.CronHour, &j.CronMinute, &j.RunAt, &j.TargetDate, &j.Enabled, &j.CreatedAt)
	if err != nil {
		return Job{}, db.WrapNotFound(err)
	}
	j.PreferredSeats = parseInts(seats)
	return j, nil
}

// CreateJob stores a validated job and fills in its ID and creation time.
func (s *Store) CreateJob(ctx context.Context, j *Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO jobs (name, library_id, time_slot, group_room,
			preferred_section, preferred_seats, recurring, cron_days,
			date_offset, cron_hour, cron_minute, run_at, target_date, enabled)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7,
			NULLIF($8, ''), $9, $10, $11, $12, NULLIF($13, ''), $14)
		RETURNING id, created_at`,
		j.Name, j.LibraryID, j.TimeSlot, j.GroupRoom,
		j.PreferredSection, joinInts(j.PreferredSeats), j.Recurring, j.CronDays,
		j.DateOffset, j.CronHour, j.CronMinute, j.RunAt, j.TargetDate, j.Enabled)
	return db.WrapNotFound(row.Scan(&j.ID, &j.CreatedAt))
}

// Job loads one job by ID.
func (s *Store) Job(ctx context.Context, id int64) (Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobCols+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// Jobs lists every job, oldest first.
func (s *Store) Jobs(ctx context.Context) ([]Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobCols+` FROM jobs ORDER BY id`)
}

// EnabledJobs lists the jobs the scheduler should hold triggers for.
func (s *Store) EnabledJobs(ctx context.Context) ([]Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobCols+` FROM jobs WHERE enabled ORDER BY id`)
}

func (s *Store) queryJobs(ctx context.Context, sql string, args ...any) ([]Job, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, db.WrapNotFound(rows.Err())
}

// UpdateJob rewrites all user-editable fields of a job.
func (s *Store) UpdateJob(ctx context.Context, j Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	row := s.db.QueryRow(ctx, `
		UPDATE jobs SET name = $2, library_id = $3, time_slot = $4,
			group_room = $5, preferred_section = NULLIF($6, ''),
			preferred_seats = NULLIF($7, ''), recurring = $8,
			cron_days = NULLIF($9, ''), date_offset = $10, cron_hour = $11,
			cron_minute = $12, run_at = $13, target_date = NULLIF($14, ''),
			enabled = $15
		WHERE id = $1
		RETURNING id`,
		j.ID, j.Name, j.LibraryID, j.TimeSlot, j.GroupRoom,
		j.PreferredSection, joinInts(j.PreferredSeats), j.Recurring, j.CronDays,
		j.DateOffset, j.CronHour, j.CronMinute, j.RunAt, j.TargetDate, j.Enabled)
	var id int64
	return db.WrapNotFound(row.Scan(&id))
}

// DeleteJob removes a job; its booking-log rows stay with the job reference
// cleared.
func (s *Store) DeleteJob(ctx context.Context, id int64) error {
	row := s.db.QueryRow(ctx, `DELETE FROM jobs WHERE id = $1 RETURNING id`, id)
	return db.WrapNotFound(row.Scan(&id))
}

// SetJobEnabled flips the enabled flag without touching the definition.
func (s *Store) SetJobEnabled(ctx context.Context, id int64, enabled bool) error {
	row := s.db.QueryRow(ctx,
		`UPDATE jobs SET enabled = $2 WHERE id = $1 RETURNING id`, id, enabled)
	return db.WrapNotFound(row.Scan(&id))
}

// ToggleJob inverts the enabled flag and reports the new value.
func (s *Store) ToggleJob(ctx context.Context, id int64) (bool, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE jobs SET enabled = NOT enabled WHERE id = $1 RETURNING enabled`, id)
	var enabled bool
	if err := row.Scan(&enabled); err != nil {
		return false, db.WrapNotFound(err)
	}
	return enabled, nil
}

// joinInts renders seat numbers as the comma-separated text the column
// stores.
func joinInts(ns []int) string {
	parts := make([]string, 0, len(ns))
	for _, n := range ns {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ",")
}

// parseInts reads a comma-separated int list, skipping anything that does
// not parse.
func parseInts(csv string) []int {
	var ns []int
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		ns = append(ns, n)
	}
	return ns
}
