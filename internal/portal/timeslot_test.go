package portal_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/seat-scheduler/internal/portal"
)

const listingPage = `<html><body>
<h2>Lesesaal 1</h2>
<table>
<tr><td>24.12.2025, 08:00–12:00</td><td>5 frei</td><td><a href="?mod=190&amp;reservationtimeslot_id=101">Reservieren</a></td></tr>
<tr><td>24.12.2025, 12:00–16:00</td><td>ausgebucht</td><td><a href="?mod=190&amp;reservationtimeslot_id=102">Reservieren</a></td></tr>
</table>
<h2>Lesesaal 2</h2>
<table>
<tr><td>24.12.2025, 08:00–12:00</td><td>3 frei</td><td><a href="?mod=190&amp;reservationtimeslot_id=301">Reservieren</a></td></tr>
</table>
<h2>Arbeitskabinen Obergeschoss</h2>
<table>
<tr><td>24.12.2025, 08:00–12:00</td><td>2 frei</td><td><a href="?mod=190&amp;reservationtimeslot_id=201">Reservieren</a></td></tr>
</table>
</body></html>`

func listingServer(t *testing.T, page string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "190", r.URL.Query().Get("mod"))
		assert.Equal(t, "1", r.URL.Query().Get("library_id"))
		io.WriteString(w, page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustRange(t *testing.T, s string) portal.TimeRange {
	t.Helper()
	r, err := portal.ParseTimeRange(s)
	require.NoError(t, err)
	return r
}

var xmasDate = time.Date(2025, time.December, 24, 0, 0, 0, 0, time.UTC)

func TestFindTimeslotPicksFirstMatchingRow(t *testing.T) {
	srv := listingServer(t, listingPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	slot, err := s.FindTimeslot(context.Background(), 1, xmasDate, mustRange(t, "08:00-12:00"), portal.RoomSeat, "")
	require.NoError(t, err)
	assert.Equal(t, 101, slot.ID)
	assert.Equal(t, "Lesesaal 1", slot.Section)
	assert.Equal(t, "5", slot.FreePlaces)
	assert.Contains(t, slot.Href, "reservationtimeslot_id=101")
	assert.Equal(t, portal.StateSlotChosen, s.State())
}

func TestFindTimeslotHonorsPreferredSection(t *testing.T) {
	srv := listingServer(t, listingPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	slot, err := s.FindTimeslot(context.Background(), 1, xmasDate, mustRange(t, "08:00-12:00"), portal.RoomSeat, "lesesaal 2")
	require.NoError(t, err)
	assert.Equal(t, 301, slot.ID, "section keyword match beats document order")
}

func TestFindTimeslotFallsBackWhenPreferredSectionMissing(t *testing.T) {
	srv := listingServer(t, listingPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	slot, err := s.FindTimeslot(context.Background(), 1, xmasDate, mustRange(t, "08:00-12:00"), portal.RoomSeat, "Magazin")
	require.NoError(t, err)
	assert.Equal(t, 101, slot.ID)
}

func TestFindTimeslotFiltersGroupRooms(t *testing.T) {
	srv := listingServer(t, listingPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	slot, err := s.FindTimeslot(context.Background(), 1, xmasDate, mustRange(t, "08:00-12:00"), portal.RoomGroup, "")
	require.NoError(t, err)
	assert.Equal(t, 201, slot.ID)
	assert.Equal(t, "Arbeitskabinen Obergeschoss", slot.Section)
}

func TestFindTimeslotListsAlternativesWhenTimeMissing(t *testing.T) {
	srv := listingServer(t, listingPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	_, err := s.FindTimeslot(context.Background(), 1, xmasDate, mustRange(t, "18:00-20:00"), portal.RoomSeat, "")
	require.ErrorIs(t, err, portal.ErrSlotNotFound)
	assert.Contains(t, err.Error(), "08:00-12:00 (ID=101) Lesesaal 1")
	assert.Contains(t, err.Error(), "12:00-16:00 (ID=102) Lesesaal 1")
	assert.NotContains(t, err.Error(), "Arbeitskabinen", "group rows stay out of seat listings")
}

func TestFindTimeslotNoRowsForDate(t *testing.T) {
	srv := listingServer(t, listingPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	later := xmasDate.AddDate(0, 0, 1)
	_, err := s.FindTimeslot(context.Background(), 1, later, mustRange(t, "08:00-12:00"), portal.RoomSeat, "")
	require.ErrorIs(t, err, portal.ErrNoSlotsForDate)
	assert.Contains(t, err.Error(), "25.12.2025")
}

func TestFindTimeslotDetectsExpiredSession(t *testing.T) {
	srv := listingServer(t, anonymousPage)
	s := newTestSession(t, srv.URL, &fakeSolver{}, 5)

	_, err := s.FindTimeslot(context.Background(), 1, xmasDate, mustRange(t, "08:00-12:00"), portal.RoomSeat, "")
	require.ErrorIs(t, err, portal.ErrSessionExpired)
}

func TestFindTimeslotRejectsUnknownLibrary(t *testing.T) {
	s := newTestSession(t, "http://127.0.0.1:1", &fakeSolver{}, 5)

	_, err := s.FindTimeslot(context.Background(), 99, xmasDate, mustRange(t, "08:00-12:00"), portal.RoomSeat, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown library id 99")
}
