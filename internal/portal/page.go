package portal

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// State names a position in the portal's reservation flow. The
// registration-phase states can be read straight off a fetched page; the
// later ones advance as booking stages succeed.
type State int

const (
	StateAnonymous State = iota
	StateAwaitingCaptcha
	StateRegistered
	StateSlotChosen
	StateSeatChosen
	StateReserved
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAwaitingCaptcha:
		return "awaiting-captcha"
	case StateRegistered:
		return "registered"
	case StateSlotChosen:
		return "slot-chosen"
	case StateSeatChosen:
		return "seat-chosen"
	case StateReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// Markers the portal embeds in its German HTML. These are load-bearing: the
// flow is driven entirely by their presence or absence.
const (
	markerLoggedIn      = "Sie sind angemeldet als"
	markerLoginField    = "httpd_username"
	markerSuccess       = "Erfolg"
	markerStartNew      = "Neue Platzreservierung starten"
	markerQuickOverview = "Schnellübersicht"
	markerSlotQuestion  = "Reservierung möglich?"
	markerSlotDenied    = "Nein"
	markerAlreadyBooked = "bereits"
	markerCaptchaPrefix = "data:image/jpeg;base64,"
)

var (
	captchaImageRe = regexp.MustCompile(`data:image/jpeg;base64,([^'"]+)`)
	formTokenRe    = regexp.MustCompile(`name="sform_token"\s+value="([^"]+)"`)
	startNewRe     = regexp.MustCompile(`href="([^"]*)"[^>]*>Neue Platzreservierung starten`)
	continueRe     = regexp.MustCompile(`href="([^"]*)"[^>]*class="[^"]*ym-success[^"]*"`)
)

// Classify maps page markers to a flow state. A captcha form outranks the
// logged-in banner because the portal shows both at once during
// registration.
func Classify(body string) State {
	switch {
	case strings.Contains(body, markerCaptchaPrefix):
		return StateAwaitingCaptcha
	case strings.Contains(body, markerStartNew),
		strings.Contains(body, markerQuickOverview):
		return StateRegistered
	case strings.Contains(body, markerLoggedIn):
		return StateRegistered
	default:
		return StateAnonymous
	}
}

// isAnonymous reports whether the portal has forgotten the session and is
// showing the login form again.
func isAnonymous(body string) bool {
	return strings.Contains(body, markerLoginField) && !strings.Contains(body, markerLoggedIn)
}

// captchaImage extracts and decodes the inline captcha JPEG, if present.
func captchaImage(body string) ([]byte, bool, error) {
	m := captchaImageRe.FindStringSubmatch(body)
	if m == nil {
		return nil, false, nil
	}
	img, err := base64.StdEncoding.DecodeString(m[1])
	if err != nil {
		return nil, true, errf(KindCaptchaNotFound, "captcha image did not decode: %v", err)
	}
	return img, true, nil
}

func formToken(body string) (string, bool) {
	m := formTokenRe.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// startNewLink finds the "start a new reservation" anchor shown when the
// account is already registered for the day.
func startNewLink(body string) (string, bool) {
	m := startNewRe.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// continueLink finds the styled success link the portal sometimes renders
// after a confirmed registration.
func continueLink(body string) (string, bool) {
	m := continueRe.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}
