package portal

import "fmt"

// Kind classifies a booking failure so callers can branch without string
// matching. Registration-phase kinds are fatal for the whole run; the
// booking-phase kinds are retried by the orchestrator.
type Kind int

const (
	KindAuthFailed Kind = iota
	KindCaptchaNotFound
	KindTokenNotFound
	KindCaptchaExhausted
	KindNoSlotsForDate
	KindSlotNotFound
	KindSlotUnavailable
	KindNoSeatsAvailable
	KindReservationFailed
	KindSessionExpired
)

func (k Kind) String() string {
	switch k {
	case KindAuthFailed:
		return "auth failed"
	case KindCaptchaNotFound:
		return "captcha not found"
	case KindTokenNotFound:
		return "form token not found"
	case KindCaptchaExhausted:
		return "captcha retries exhausted"
	case KindNoSlotsForDate:
		return "no slots for date"
	case KindSlotNotFound:
		return "slot not found"
	case KindSlotUnavailable:
		return "slot unavailable"
	case KindNoSeatsAvailable:
		return "no seats available"
	case KindReservationFailed:
		return "reservation failed"
	case KindSessionExpired:
		return "session expired"
	default:
		return "unknown"
	}
}

// Error is the failure type every portal stage returns. The message is meant
// to be operator-grade: enough to diagnose without re-reading logs.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.Kind.String()
	}
	return e.msg
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrSlotNotFound)
// works on fully-populated errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is. Constructed errors carry the same Kind plus a
// descriptive message.
var (
	ErrAuthFailed        = &Error{Kind: KindAuthFailed}
	ErrCaptchaNotFound   = &Error{Kind: KindCaptchaNotFound}
	ErrTokenNotFound     = &Error{Kind: KindTokenNotFound}
	ErrCaptchaExhausted  = &Error{Kind: KindCaptchaExhausted}
	ErrNoSlotsForDate    = &Error{Kind: KindNoSlotsForDate}
	ErrSlotNotFound      = &Error{Kind: KindSlotNotFound}
	ErrSlotUnavailable   = &Error{Kind: KindSlotUnavailable}
	ErrNoSeatsAvailable  = &Error{Kind: KindNoSeatsAvailable}
	ErrReservationFailed = &Error{Kind: KindReservationFailed}
	ErrSessionExpired    = &Error{Kind: KindSessionExpired}
)
