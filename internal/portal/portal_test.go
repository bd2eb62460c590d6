package portal_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/seat-scheduler/internal/portal"
)

// fakeSolver returns canned answers in order, repeating the last one.
type fakeSolver struct {
	answers []string
	err     error
	calls   int
}

func (f *fakeSolver) Solve(_ context.Context, _ []byte) (string, error) {
	i := f.calls
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if i >= len(f.answers) {
		i = len(f.answers) - 1
	}
	return f.answers[i], nil
}

func newTestSession(t *testing.T, baseURL string, solver *fakeSolver, captchaRetries int) *portal.Session {
	t.Helper()
	s, err := portal.NewSession(portal.Options{
		BaseURL: baseURL,
		Credentials: portal.Credentials{
			Username:      "mmuster",
			Password:      "geheim",
			LibraryNumber: "123456",
		},
		Solver:            solver,
		MaxCaptchaRetries: captchaRetries,
		Logger:            zerolog.Nop(),
	})
	require.NoError(t, err)
	return s
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		body string
		want portal.State
	}{
		{"login form", `<form><input name="httpd_username"></form>`, portal.StateAnonymous},
		{"captcha shown", `Sie sind angemeldet als x <img src="data:image/jpeg;base64,QUJDRA==">`, portal.StateAwaitingCaptcha},
		{"registered with start link", `Sie sind angemeldet als x <a href="?x">Neue Platzreservierung starten</a>`, portal.StateRegistered},
		{"registered with overview", `Schnellübersicht über Ihre Reservierungen`, portal.StateRegistered},
		{"logged in, nothing else", `Sie sind angemeldet als x`, portal.StateRegistered},
		{"empty page", ``, portal.StateAnonymous},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, portal.Classify(tc.body))
		})
	}
}

func TestParseTimeRange(t *testing.T) {
	r, err := portal.ParseTimeRange("08:00-12:00")
	require.NoError(t, err)
	assert.Equal(t, portal.TimeRange{Start: "08:00", End: "12:00"}, r)

	r, err = portal.ParseTimeRange(" 8:00 - 9:30 ")
	require.NoError(t, err)
	assert.Equal(t, "08:00-09:30", r.String(), "times are zero padded")

	_, err = portal.ParseTimeRange("08:00")
	assert.Error(t, err)

	_, err = portal.ParseTimeRange("8-12")
	assert.Error(t, err)

	_, err = portal.ParseTimeRange("12:00-08:00")
	assert.Error(t, err, "range must not be inverted")
}

func TestValidateLibrary(t *testing.T) {
	require.NoError(t, portal.ValidateLibrary(1))
	err := portal.ValidateLibrary(99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Zentralbibliothek", "error lists the known libraries")
}

func TestErrorsMatchByKind(t *testing.T) {
	err := &portal.Error{Kind: portal.KindSlotNotFound}
	assert.ErrorIs(t, err, portal.ErrSlotNotFound)
	assert.NotErrorIs(t, err, portal.ErrSlotUnavailable)
	assert.Equal(t, "slot not found", portal.ErrSlotNotFound.Error())
}
