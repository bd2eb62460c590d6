package portal

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Seat is one bookable place inside a chosen timeslot. Number is the seat or
// cabin number parsed from the description, zero when the portal shows none.
type Seat struct {
	ID     int
	Href   string
	Desc   string
	Number int
}

// seatNumberRe pulls the number out of descriptions like "Platz 12",
// "Kabine 3" or "Raum 2".
var seatNumberRe = regexp.MustCompile(`(?:Platz|Kabine|Raum)\s+(\d+)`)

// SelectSeat opens the slot page and picks a seat, preferring the given
// numbers in order and falling back to the first one listed.
func (s *Session) SelectSeat(ctx context.Context, slotHref string, kind RoomKind, preferred []int) (Seat, error) {
	body, err := s.get(ctx, slotHref)
	if err != nil {
		return Seat{}, err
	}
	if err := s.expired("seat selection", body); err != nil {
		return Seat{}, err
	}
	if strings.Contains(body, markerSlotQuestion) && strings.Contains(body, markerSlotDenied) {
		return Seat{}, errf(KindSlotUnavailable, "slot can no longer be reserved, the portal says no")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Seat{}, fmt.Errorf("portal: parse seat page: %w", err)
	}

	var seats []Seat
	doc.Find(`a[href*="seat_id="]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		desc := strings.TrimSpace(sel.Text())
		// The portal puts extras like "(Fensterplatz)" in a bare text node
		// right after the anchor.
		if next := sel.Get(0).NextSibling; next != nil && next.Type == html.TextNode {
			extra := strings.Trim(strings.TrimSpace(next.Data), "()")
			if extra != "" {
				desc += " " + extra
			}
		}
		seat := Seat{ID: seatIDFromHref(href), Href: href, Desc: desc}
		if m := seatNumberRe.FindStringSubmatch(desc); m != nil {
			seat.Number, _ = strconv.Atoi(m[1])
		}
		seats = append(seats, seat)
	})
	if len(seats) == 0 {
		return Seat{}, errf(KindNoSeatsAvailable, "no available %ss found in this slot", kind)
	}

	byNumber := make(map[int]Seat, len(seats))
	for _, st := range seats {
		if st.Number > 0 {
			byNumber[st.Number] = st
		}
	}
	for _, want := range preferred {
		if st, ok := byNumber[want]; ok {
			s.log.Info().Int("number", st.Number).Str("desc", st.Desc).Msgf("picked preferred %s", kind)
			s.advance(StateSeatChosen)
			return st, nil
		}
	}
	chosen := seats[0]
	if len(preferred) > 0 {
		s.log.Warn().Ints("preferred", preferred).Str("using", chosen.Desc).Msgf("preferred %ss taken, falling back", kind)
	}
	s.log.Info().Str("desc", chosen.Desc).Int("candidates", len(seats)).Msgf("picked %s", kind)
	s.advance(StateSeatChosen)
	return chosen, nil
}

func seatIDFromHref(href string) int {
	u, err := url.Parse(href)
	if err != nil {
		return 0
	}
	id, _ := strconv.Atoi(u.Query().Get("seat_id"))
	return id
}
