package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

// Filter returns the entries of all matching query and scope, preserving order.
// A non-empty query matches the display name or package identifier as a
// case-insensitive substring. ScopeFavorites then keeps favorites only.
func Filter(all []domain.AppEntry, query string, scope domain.Scope) []domain.AppEntry {
	fold := cases.Fold()
	needle := fold.String(query)

	out := make([]domain.AppEntry, 0, len(all))
	for _, a := range all {
		if needle != "" &&
			!strings.Contains(fold.String(a.DisplayName), needle) &&
			!strings.Contains(fold.String(a.PackageID), needle) {
			continue
		}
		if scope == domain.ScopeFavorites && !a.IsFavorite {
			continue
		}
		out = append(out, a)
	}
	return out
}

// CountLabel renders the counter line shown above a filtered list.
func CountLabel(scope domain.Scope, query string, n int) string {
	switch {
	case scope == domain.ScopeFavorites:
		return fmt.Sprintf("Favorite apps: %d", n)
	case query == "":
		return fmt.Sprintf("Total apps: %d", n)
	default:
		return fmt.Sprintf("Apps found: %d", n)
	}
}
