package portal

import (
	"fmt"
	"sort"
	"strings"
)

// Libraries is the fixed registry of bookable branches. The IDs match the
// portal's library_id query parameter and are not discoverable at runtime.
var Libraries = map[int]string{
	1: "Zentralbibliothek",
	2: "Zweigbibliothek Sozialwissenschaften",
	3: "Zweigbibliothek Medizin",
	4: "Zweigbibliothek Chemie",
	5: "Bibliothek im Haus der Niederlande",
}

// LibraryName returns the display name for a registry ID.
func LibraryName(id int) (string, bool) {
	name, ok := Libraries[id]
	return name, ok
}

// ValidateLibrary rejects IDs outside the registry, listing the known ones
// so a typo is easy to spot.
func ValidateLibrary(id int) error {
	if _, ok := Libraries[id]; ok {
		return nil
	}
	return fmt.Errorf("unknown library id %d, known: %s", id, LibrarySummary())
}

// SortedLibraryIDs returns registry IDs in ascending order.
func SortedLibraryIDs() []int {
	ids := make([]int, 0, len(Libraries))
	for id := range Libraries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// LibrarySummary renders the registry as "1=Zentralbibliothek, 2=..." for
// help texts and error messages.
func LibrarySummary() string {
	parts := make([]string, 0, len(Libraries))
	for _, id := range SortedLibraryIDs() {
		parts = append(parts, fmt.Sprintf("%d=%s", id, Libraries[id]))
	}
	return strings.Join(parts, ", ")
}
