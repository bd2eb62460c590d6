package portal

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// RoomKind distinguishes open reading-room seats from bookable group rooms.
type RoomKind int

const (
	RoomSeat RoomKind = iota
	RoomGroup
)

func (k RoomKind) String() string {
	if k == RoomGroup {
		return "group room"
	}
	return "seat"
}

// KindForGroup maps the boolean the CLI and job records carry onto a
// RoomKind.
func KindForGroup(group bool) RoomKind {
	if group {
		return RoomGroup
	}
	return RoomSeat
}

// TimeRange is a slot's start and end in zero-padded HH:MM.
type TimeRange struct {
	Start string
	End   string
}

// ParseTimeRange parses "HH:MM-HH:MM" user input, normalizing each side to
// zero-padded form so it can be matched against the portal's listing.
func ParseTimeRange(s string) (TimeRange, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return TimeRange{}, fmt.Errorf(`time slot %q must look like "08:00-12:00"`, s)
	}
	var hhmm [2]string
	for i, p := range parts {
		t, err := time.Parse("15:04", strings.TrimSpace(p))
		if err != nil {
			return TimeRange{}, fmt.Errorf("invalid time %q in slot %q", strings.TrimSpace(p), s)
		}
		hhmm[i] = t.Format("15:04")
	}
	if hhmm[0] >= hhmm[1] {
		return TimeRange{}, fmt.Errorf("slot %q must start before it ends", s)
	}
	return TimeRange{Start: hhmm[0], End: hhmm[1]}, nil
}

func (r TimeRange) String() string { return r.Start + "-" + r.End }

// portalForm renders the range the way the portal prints it, with an
// en dash between the times.
func (r TimeRange) portalForm() string { return r.Start + "–" + r.End }

// IsZero reports whether the range is unset.
func (r TimeRange) IsZero() bool { return r.Start == "" && r.End == "" }

// Slot is one bookable timeslot row from the listing.
type Slot struct {
	ID         int
	Range      TimeRange
	Section    string
	Href       string
	FreePlaces string
}

// slotTimeRe matches the en-dash separated times in a listing row.
var slotTimeRe = regexp.MustCompile(`(\d{2}:\d{2})\x{2013}(\d{2}:\d{2})`)

var intRe = regexp.MustCompile(`\d+`)

// FindTimeslot fetches the listing for a library and picks the slot matching
// date, time range and room kind. Sections are the h2 headings above the
// rows; a preferred section keyword wins over document order when several
// slots match.
func (s *Session) FindTimeslot(ctx context.Context, libraryID int, date time.Time, want TimeRange, kind RoomKind, preferredSection string) (Slot, error) {
	if err := ValidateLibrary(libraryID); err != nil {
		return Slot{}, err
	}
	body, err := s.get(ctx, fmt.Sprintf("?mod=190&library_id=%d", libraryID))
	if err != nil {
		return Slot{}, err
	}
	if err := s.expired("slot listing", body); err != nil {
		return Slot{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Slot{}, fmt.Errorf("portal: parse slot listing: %w", err)
	}

	dateStr := date.Format("02.01.2006")
	wanted := want.portalForm()
	keyword := strings.ToLower(s.groupKeyword)

	// One pass over headings and rows in document order keeps track of the
	// section each row sits under.
	var (
		section string
		onDate  []Slot
		matches []Slot
	)
	doc.Find("h2, tr").Each(func(_ int, sel *goquery.Selection) {
		if goquery.NodeName(sel) == "h2" {
			section = strings.TrimSpace(sel.Text())
			return
		}
		link := sel.Find(`a[href*="reservationtimeslot_id="]`).First()
		if link.Length() == 0 {
			return
		}
		text := sel.Text()
		if !strings.Contains(text, dateStr) {
			return
		}
		rowKind := RoomSeat
		if strings.Contains(strings.ToLower(section), keyword) {
			rowKind = RoomGroup
		}
		if rowKind != kind {
			return
		}
		href, _ := link.Attr("href")
		slot := Slot{ID: slotIDFromHref(href), Section: section, Href: href}
		if m := slotTimeRe.FindStringSubmatch(text); m != nil {
			slot.Range = TimeRange{Start: m[1], End: m[2]}
		}
		onDate = append(onDate, slot)
		if !strings.Contains(text, wanted) {
			return
		}
		slot.Range = want
		slot.FreePlaces = "?"
		if tds := sel.Find("td"); tds.Length() > 1 {
			if n := intRe.FindString(tds.Eq(1).Text()); n != "" {
				slot.FreePlaces = n
			}
		}
		matches = append(matches, slot)
	})

	if len(matches) == 0 {
		if len(onDate) == 0 {
			return Slot{}, errf(KindNoSlotsForDate, "no %s slots found for %s, reservations may not be open yet", kind, dateStr)
		}
		listing := make([]string, 0, len(onDate))
		for _, sl := range onDate {
			listing = append(listing, fmt.Sprintf("%s (ID=%d) %s", sl.Range, sl.ID, sl.Section))
		}
		return Slot{}, errf(KindSlotNotFound, "no %s slot %s on %s, available: %s", kind, want, dateStr, strings.Join(listing, "; "))
	}

	chosen := matches[0]
	if preferredSection != "" {
		found := false
		for _, sl := range matches {
			if strings.Contains(strings.ToLower(sl.Section), strings.ToLower(preferredSection)) {
				chosen = sl
				found = true
				break
			}
		}
		if !found {
			s.log.Warn().Str("section", preferredSection).Str("using", chosen.Section).Msg("preferred section not available")
		}
	}
	s.log.Info().
		Int("slot_id", chosen.ID).
		Str("section", chosen.Section).
		Str("free", chosen.FreePlaces).
		Msgf("found %s slot %s on %s", kind, want, dateStr)
	s.advance(StateSlotChosen)
	return chosen, nil
}

func slotIDFromHref(href string) int {
	u, err := url.Parse(href)
	if err != nil {
		return 0
	}
	id, _ := strconv.Atoi(u.Query().Get("reservationtimeslot_id"))
	return id
}
