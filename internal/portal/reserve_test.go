package portal_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/seat-scheduler/internal/portal"
)

const reservedPage = `<html><body><h1>Erfolg</h1>
<table>
<tr><td>Kopfzeile</td><td>egal</td></tr>
<tr style="background-color: yellow;"><td>Ihre Reservierung</td><td>
Zentralbibliothek<br>
Platz 12 (Fensterplatz)<br>
24.12.2025, 08:00–12:00<br>
<a href="#">Platz-Umtausch versuchen</a><br>
Ein Platz-Umtausch möglich bis 30 Minuten vor Beginn.<br>
<a href="#">Reservierung jetzt stornieren</a><br>
Eine Stornierung möglich bis zum Vortag.
</td></tr>
</table>
</body></html>`

const reserveFailedPage = `<html><body>
<p>Die Reservierung konnte nicht durchgeführt werden.</p>
</body></html>`

const alreadyReservedPage = `<html><body>
<p>Sie haben bereits eine Reservierung in diesem Zeitraum.</p>
</body></html>`

func TestReserveReturnsFilteredDetails(t *testing.T) {
	srv := seatServer(t, reservedPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	details, err := s.Reserve(context.Background(), "?seat=12")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Zentralbibliothek",
		"Platz 12 (Fensterplatz)",
		"24.12.2025, 08:00–12:00",
	}, details, "navigation labels are stripped")
	assert.Equal(t, portal.StateReserved, s.State())
}

func TestReserveSucceedsWithoutDetailBox(t *testing.T) {
	srv := seatServer(t, `<html><body><h1>Erfolg</h1></body></html>`)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	details, err := s.Reserve(context.Background(), "?seat=12")
	require.NoError(t, err)
	assert.Empty(t, details)
}

func TestReserveFails(t *testing.T) {
	srv := seatServer(t, reserveFailedPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	_, err := s.Reserve(context.Background(), "?seat=12")
	require.ErrorIs(t, err, portal.ErrReservationFailed)
	assert.NotContains(t, err.Error(), "already")
}

func TestReserveHintsAtExistingReservation(t *testing.T) {
	srv := seatServer(t, alreadyReservedPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	_, err := s.Reserve(context.Background(), "?seat=12")
	require.ErrorIs(t, err, portal.ErrReservationFailed)
	assert.Contains(t, err.Error(), "already hold a reservation")
}

func TestReserveDetectsExpiredSession(t *testing.T) {
	srv := seatServer(t, anonymousPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	_, err := s.Reserve(context.Background(), "?seat=12")
	require.ErrorIs(t, err, portal.ErrSessionExpired)
}
