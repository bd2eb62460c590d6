// Package booking orchestrates one reservation run: authenticate once, then
// retry the slot-seat-reserve pipeline until it sticks or the budget runs
// out.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/seat-scheduler/internal/metrics"
	"github.com/example/seat-scheduler/internal/portal"
)

// Request describes what to book.
type Request struct {
	LibraryID        int
	Date             time.Time
	Slot             portal.TimeRange
	Kind             portal.RoomKind
	PreferredSection string
	PreferredNumbers []int
}

// Validate rejects requests the portal could never satisfy.
func (r Request) Validate() error {
	if err := portal.ValidateLibrary(r.LibraryID); err != nil {
		return err
	}
	if r.Date.IsZero() {
		return fmt.Errorf("booking date is required")
	}
	if r.Slot.IsZero() {
		return fmt.Errorf("time slot is required")
	}
	return nil
}

// Outcome is the result of a successful run.
type Outcome struct {
	SeatDesc string
	Details  []string
	Attempts int
}

// Message renders the outcome for logs and the booking history.
func (o Outcome) Message() string {
	if len(o.Details) == 0 {
		return "reserved " + o.SeatDesc
	}
	return strings.Join(o.Details, "; ")
}

// Broker is the portal surface a run drives. *portal.Session implements it.
type Broker interface {
	Authenticate(ctx context.Context) error
	FindTimeslot(ctx context.Context, libraryID int, date time.Time, slot portal.TimeRange, kind portal.RoomKind, preferredSection string) (portal.Slot, error)
	SelectSeat(ctx context.Context, slotHref string, kind portal.RoomKind, preferred []int) (portal.Seat, error)
	Reserve(ctx context.Context, seatHref string) ([]string, error)
}

// Runner retries bookings against a fresh portal session per run. The
// zero values of Retries and Delay fall back to 3 attempts 5 seconds apart.
type Runner struct {
	NewBroker func(ctx context.Context) (Broker, error)
	Retries   int
	Delay     time.Duration
	Logger    zerolog.Logger

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func (r *Runner) retries() int {
	if r.Retries > 0 {
		return r.Retries
	}
	return 3
}

func (r *Runner) delay() time.Duration {
	if r.Delay > 0 {
		return r.Delay
	}
	return 5 * time.Second
}

func (r *Runner) pause(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run books the requested seat. Authentication happens once up front and is
// fatal when it fails; the booking stages are retried because the portal's
// state can shift between fetches. The error of the final attempt is
// returned as-is.
func (r *Runner) Run(ctx context.Context, req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	log := r.Logger.With().
		Str("run_id", uuid.NewString()).
		Int("library", req.LibraryID).
		Str("date", req.Date.Format("02.01.2006")).
		Str("slot", req.Slot.String()).
		Stringer("kind", req.Kind).
		Logger()

	broker, err := r.NewBroker(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if err := broker.Authenticate(ctx); err != nil {
		metrics.Bookings.WithLabelValues("error").Inc()
		return Outcome{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= r.retries(); attempt++ {
		metrics.BookingAttempts.Inc()
		out, err := r.attempt(ctx, broker, req)
		if err == nil {
			out.Attempts = attempt
			log.Info().Int("attempt", attempt).Str("seat", out.SeatDesc).Msg("booking succeeded")
			metrics.Bookings.WithLabelValues("success").Inc()
			return out, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("of", r.retries()).Msg("booking attempt failed")

		if errors.Is(err, portal.ErrSessionExpired) {
			// The portal dropped the session mid-flight. Re-authenticate and
			// let the next attempt start from a clean login.
			if aerr := broker.Authenticate(ctx); aerr != nil {
				metrics.Bookings.WithLabelValues("error").Inc()
				return Outcome{}, aerr
			}
		}
		if attempt < r.retries() {
			if serr := r.pause(ctx, r.delay()); serr != nil {
				metrics.Bookings.WithLabelValues("error").Inc()
				return Outcome{}, serr
			}
		}
	}
	metrics.Bookings.WithLabelValues("failed").Inc()
	return Outcome{}, lastErr
}

func (r *Runner) attempt(ctx context.Context, broker Broker, req Request) (Outcome, error) {
	slot, err := broker.FindTimeslot(ctx, req.LibraryID, req.Date, req.Slot, req.Kind, req.PreferredSection)
	if err != nil {
		return Outcome{}, err
	}
	seat, err := broker.SelectSeat(ctx, slot.Href, req.Kind, req.PreferredNumbers)
	if err != nil {
		return Outcome{}, err
	}
	details, err := broker.Reserve(ctx, seat.Href)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{SeatDesc: seat.Desc, Details: details}, nil
}
