package catalog

import "strings"

// CategoryFor resolves the resource category of a single service. It is total: anything that is
// not aroma or head-spa-like runs on a massage seat.
func CategoryFor(s Service) Category {
	text := strings.ToLower(s.Category + " " + s.Name)
	switch {
	case strings.Contains(text, "aroma"):
		return CategoryAromaRoom
	case containsAny(text, "head spa", "headspa", "facial", "treatment"):
		return CategoryHeadSpa
	default:
		return CategoryMassageSeat
	}
}

// ComboCategories returns the categories of a combo's primary (massage/aroma) leg and head spa add-on leg.
func ComboCategories(s Service) (primary, addon Category) {
	primary = CategoryMassageSeat
	if strings.Contains(strings.ToLower(s.Category+" "+s.Name), "aroma") {
		primary = CategoryAromaRoom
	}
	return primary, CategoryHeadSpa
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
