// Package importer turns booking spreadsheets into draft rows.
//
// Both sources share one column layout:
//
//	A date | B time | C client | D service | E minutes | F second service | G minutes | H staff | I second staff | J order
//
// The order column marks head spa first when it reads "head spa first", "hs", "yes", "true" or "1".
package importer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"spadesk/internal/bizclock"
	"spadesk/internal/draftsync"
)

// Source yields the rows of one import.
type Source interface {
	Rows(ctx context.Context) ([]draftsync.Row, error)
}

const (
	colDate = iota
	colTime
	colClient
	colService
	colMinutes
	colSecondService
	colSecondMinutes
	colStaff
	colSecondStaff
	colOrder
)

var dateLayouts = []string{
	bizclock.DateLayout,
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2.1.2006",
	"01-02-06",
}

// ParseRows converts raw cells into rows. firstLine is the sheet row number of cells[0]
// and is carried into Row.Line for error reports. Blank rows are dropped.
func ParseRows(cells [][]string, firstLine int) []draftsync.Row {
	var rows []draftsync.Row
	for i, raw := range cells {
		if blank(raw) {
			continue
		}
		cell := func(col int) string {
			if col < len(raw) {
				return strings.TrimSpace(raw[col])
			}
			return ""
		}
		rows = append(rows, draftsync.Row{
			Line:         firstLine + i,
			Date:         normalizeDate(cell(colDate)),
			Time:         cell(colTime),
			ClientName:   cell(colClient),
			Services:     [2]string{cell(colService), cell(colSecondService)},
			Durations:    [2]int{minutes(cell(colMinutes)), minutes(cell(colSecondMinutes))},
			Staff:        [2]string{cell(colStaff), cell(colSecondStaff)},
			HeadSpaFirst: headSpaFirst(cell(colOrder)),
		})
	}
	return rows
}

// normalizeDate rewrites known layouts to YYYY-MM-DD. Anything else is passed through so
// the import can report it against its line.
func normalizeDate(s string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(bizclock.DateLayout)
		}
	}
	return s
}

func minutes(s string) int {
	s = strings.TrimSuffix(strings.ToLower(s), "min")
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func headSpaFirst(s string) bool {
	switch strings.ToLower(strings.Join(strings.Fields(s), " ")) {
	case "head spa first", "headspa first", "hs", "hs first", "yes", "y", "true", "1":
		return true
	}
	return false
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
