package portal

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Navigation labels the confirmation box mixes into the reservation details.
var (
	detailDropExact = []string{
		"Platz-Umtausch versuchen",
		"Reservierung jetzt stornieren",
	}
	detailDropSubstr = []string{
		"Platz-Umtausch möglich",
		"Stornierung möglich",
	}
)

// Reserve follows the seat link, which commits the reservation, and returns
// the confirmation details the portal prints in its highlight box.
func (s *Session) Reserve(ctx context.Context, seatHref string) ([]string, error) {
	body, err := s.get(ctx, seatHref)
	if err != nil {
		return nil, err
	}
	if err := s.expired("reservation", body); err != nil {
		return nil, err
	}
	if !strings.Contains(body, markerSuccess) {
		if strings.Contains(strings.ToLower(body), markerAlreadyBooked) {
			return nil, errf(KindReservationFailed, "reservation was not confirmed, you may already hold a reservation for this time")
		}
		return nil, errf(KindReservationFailed, "reservation was not confirmed")
	}
	details := confirmationDetails(body)
	s.log.Info().Strs("details", details).Msg("reservation confirmed")
	s.advance(StateReserved)
	return details, nil
}

// confirmationDetails extracts the human-readable lines from the yellow
// confirmation row, dropping the portal's navigation labels. Details are
// best effort: a missing box still counts as a confirmed reservation.
func confirmationDetails(body string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	row := doc.Find(`tr[style*="yellow"]`).First()
	if row.Length() == 0 {
		return nil
	}
	tds := row.Find("td")
	if tds.Length() < 2 {
		return nil
	}
	var details []string
	for _, line := range textLines(tds.Eq(1)) {
		if keepDetail(line) {
			details = append(details, line)
		}
	}
	return details
}

func keepDetail(line string) bool {
	for _, drop := range detailDropExact {
		if line == drop {
			return false
		}
	}
	for _, drop := range detailDropSubstr {
		if strings.Contains(line, drop) {
			return false
		}
	}
	return true
}

// textLines flattens a node's text content into trimmed non-empty lines,
// treating element boundaries as line breaks.
func textLines(sel *goquery.Selection) []string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	var lines []string
	for _, p := range parts {
		for _, line := range strings.Split(p, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines
}
