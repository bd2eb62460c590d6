package store

import (
	"context"
	"time"

	"github.com/example/seat-scheduler/internal/db"
)

// LogEntry is one booking run in the history. JobID is nil for ad-hoc runs
// and for rows whose job has since been deleted.
type LogEntry struct {
	ID         int64
	JobID      *int64
	JobName    string
	LibraryID  int
	TargetDate string
	TimeSlot   string
	GroupRoom  bool
	Status     string
	SeatDesc   string
	Message    string
	StartedAt  time.Time
	FinishedAt *time.Time
	Manual     bool
}

// StartLog records that a run is underway, before the portal is touched, and
// returns the row ID to finalize later. A crash mid-run leaves the row in
// running state, which is exactly what the history should show.
func (s *Store) StartLog(ctx context.Context, e LogEntry) (int64, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO booking_log (job_id, job_name, library_id, target_date,
			time_slot, group_room, status, manual)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		e.JobID, e.JobName, e.LibraryID, e.TargetDate,
		e.TimeSlot, e.GroupRoom, StatusRunning, e.Manual)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, db.WrapNotFound(err)
	}
	return id, nil
}

// FinishLog finalizes a run with its terminal status.
func (s *Store) FinishLog(ctx context.Context, id int64, status, seatDesc, message string) error {
	row := s.db.QueryRow(ctx, `
		UPDATE booking_log SET status = $2, seat_desc = NULLIF($3, ''),
			message = NULLIF($4, ''), finished_at = now()
		WHERE id = $1
		RETURNING id`,
		id, status, seatDesc, message)
	return db.WrapNotFound(row.Scan(&id))
}

// RecentLogs returns the newest history rows first.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, job_id, job_name, library_id, target_date, time_slot,
			group_room, status, COALESCE(seat_desc, ''), COALESCE(message, ''),
			started_at, finished_at, manual
		FROM booking_log
		ORDER BY started_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	defer rows.Close()
	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.JobID, &e.JobName, &e.LibraryID,
			&e.TargetDate, &e.TimeSlot, &e.GroupRoom, &e.Status, &e.SeatDesc,
			&e.Message, &e.StartedAt, &e.FinishedAt, &e.Manual); err != nil {
			return nil, db.WrapNotFound(err)
		}
		entries = append(entries, e)
	}
	return entries, db.WrapNotFound(rows.Err())
}
