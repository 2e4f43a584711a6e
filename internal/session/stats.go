package session

import "time"

// SummaryStats is the aggregate view pushed to dashboards.
type SummaryStats struct {
	TotalActive      int            `json:"totalActive"`
	TotalToday       int            `json:"totalToday"`
	PagesVisited     map[string]int `json:"pagesVisited"`
	CountriesVisited map[string]int `json:"countriesVisited"`
	DevicesUsed      map[string]int `json:"devicesUsed"`

	// Day is the local midnight TotalToday counts from. It is not sent to
	// dashboards.
	Day time.Time `json:"-"`
}

// NewSummaryStats returns zeroed stats with initialized maps so they encode
// as {} rather than null.
func NewSummaryStats() SummaryStats {
	return SummaryStats{
		PagesVisited:     make(map[string]int),
		CountriesVisited: make(map[string]int),
		DevicesUsed:      make(map[string]int),
	}
}

// dimKey identifies one combination of the filterable event dimensions.
// Daily counts are kept per combination so any filter can be answered
// exactly by summing the matching keys.
type dimKey struct {
	page    string
	country string
	device  string
}

func keyOf(e VisitorEvent) dimKey {
	return dimKey{page: e.Page, country: e.Country, device: e.Device()}
}

func (k dimKey) matches(f *Filter) bool {
	return f.match(k.country, k.page, k.device)
}
