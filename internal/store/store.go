// Package store persists booking jobs and their run history.
package store

import (
	"github.com/example/seat-scheduler/internal/db"
)

// Booking-log statuses. A run is logged as running before the portal is
// touched and finalized once the outcome is known; error marks failures
// outside the booking itself, like an unreachable database of job settings.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// Store wraps the database with typed accessors for jobs and the booking
// log.
type Store struct {
	db *db.DB
}

func New(d *db.DB) *Store {
	return &Store{db: d}
}
