package portal_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/seat-scheduler/internal/portal"
)

const seatPage = `<html><body>
<p>Reservierung möglich? <b>Ja</b></p>
<ul>
<li><a href="?mod=190&amp;seat_id=11">Platz 11</a> (Fensterplatz)</li>
<li><a href="?mod=190&amp;seat_id=12">Platz 12</a></li>
<li><a href="?mod=190&amp;seat_id=13">Platz 13</a></li>
</ul>
</body></html>`

const slotGonePage = `<html><body>
<p>Reservierung möglich? <b>Nein</b></p>
</body></html>`

func seatServer(t *testing.T, page string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSelectSeatPrefersRequestedNumbers(t *testing.T) {
	srv := seatServer(t, seatPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	seat, err := s.SelectSeat(context.Background(), "?slot=1", portal.RoomSeat, []int{99, 12})
	require.NoError(t, err)
	assert.Equal(t, 12, seat.ID)
	assert.Equal(t, 12, seat.Number)
	assert.Equal(t, "Platz 12", seat.Desc)
	assert.Equal(t, portal.StateSeatChosen, s.State())
}

func TestSelectSeatPreferenceOrderBeatsDocumentOrder(t *testing.T) {
	srv := seatServer(t, seatPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	// 11 is listed first and also preferred, but 12 ranks higher.
	seat, err := s.SelectSeat(context.Background(), "?slot=1", portal.RoomSeat, []int{12, 11})
	require.NoError(t, err)
	assert.Equal(t, 12, seat.Number)
}

func TestSelectSeatFallsBackToFirstListed(t *testing.T) {
	srv := seatServer(t, seatPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	seat, err := s.SelectSeat(context.Background(), "?slot=1", portal.RoomSeat, []int{99})
	require.NoError(t, err)
	assert.Equal(t, 11, seat.ID)
	assert.Equal(t, "Platz 11 Fensterplatz", seat.Desc, "trailing note loses its parentheses")
}

func TestSelectSeatUnnumberedDescriptions(t *testing.T) {
	srv := seatServer(t, `<html><body>
<p>Reservierung möglich? <b>Ja</b></p>
<a href="?seat_id=21">Einzelarbeitsplatz</a> (Fenster)
<a href="?seat_id=22">Gruppenecke</a>
</body></html>`)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	// Nothing to match preferences against, so the first listing wins.
	seat, err := s.SelectSeat(context.Background(), "?slot=1", portal.RoomSeat, []int{12})
	require.NoError(t, err)
	assert.Equal(t, 21, seat.ID)
	assert.Equal(t, 0, seat.Number)
	assert.Equal(t, "Einzelarbeitsplatz Fenster", seat.Desc)
}

func TestSelectSeatWithoutPreferences(t *testing.T) {
	srv := seatServer(t, seatPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	seat, err := s.SelectSeat(context.Background(), "?slot=1", portal.RoomSeat, nil)
	require.NoError(t, err)
	assert.Equal(t, 11, seat.ID)
}

func TestSelectSeatSlotNoLongerAvailable(t *testing.T) {
	srv := seatServer(t, slotGonePage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	_, err := s.SelectSeat(context.Background(), "?slot=1", portal.RoomSeat, nil)
	require.ErrorIs(t, err, portal.ErrSlotUnavailable)
}

func TestSelectSeatNoSeatsListed(t *testing.T) {
	srv := seatServer(t, `<html><body><p>Reservierung möglich? <b>Ja</b></p></body></html>`)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	_, err := s.SelectSeat(context.Background(), "?slot=1", portal.RoomGroup, nil)
	require.ErrorIs(t, err, portal.ErrNoSeatsAvailable)
	assert.Contains(t, err.Error(), "group room")
}

func TestSelectSeatDetectsExpiredSession(t *testing.T) {
	srv := seatServer(t, anonymousPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	_, err := s.SelectSeat(context.Background(), "?slot=1", portal.RoomSeat, nil)
	require.ErrorIs(t, err, portal.ErrSessionExpired)
}
