// Package report renders monthly spreadsheets of the schedule and roster.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"spadesk/internal/bizclock"
	"spadesk/internal/catalog"
	"spadesk/internal/model"

	"github.com/rs/zerolog"
)

// Store is what the reports read. *db.DB implements it.
type Store interface {
	ListBookingsInRange(ctx context.Context, from, to time.Time, includeDrafts bool) ([]model.Booking, error)
	ListShifts(ctx context.Context, fromDate, toDate string) ([]model.Shift, error)
	ListStaff(ctx context.Context, activeOnly bool) ([]model.Staff, error)
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

type Generator struct {
	store   Store
	catalog *catalog.Catalog
	logger  *zerolog.Logger
}

func NewGenerator(store Store, c *catalog.Catalog, logger *zerolog.Logger) *Generator {
	return &Generator{store: store, catalog: c, logger: logger}
}

// Filename is the attachment name of a monthly report.
func Filename(scope bizclock.Scope) string {
	return fmt.Sprintf("spadesk_%s.xlsx", scope.Key())
}

// Monthly writes the Bookings, Shifts and Summary sheets of a scope. Drafts are left out.
func (g *Generator) Monthly(ctx context.Context, scopeKey string, out io.Writer) error {
	scope, err := bizclock.ParseScope(scopeKey)
	if err != nil {
		return err
	}
	bookings, err := g.store.ListBookingsInRange(ctx, scope.Start(), scope.End(), false)
	if err != nil {
		return fmt.Errorf("load bookings: %w", err)
	}
	shifts, err := g.store.ListShifts(ctx, bizclock.FormatDate(scope.Start()), bizclock.FormatDate(scope.End().AddDate(0, 0, -1)))
	if err != nil {
		return fmt.Errorf("load shifts: %w", err)
	}
	staff, err := g.store.ListStaff(ctx, false)
	if err != nil {
		return fmt.Errorf("load staff: %w", err)
	}
	names := make(map[int64]string, len(staff))
	for _, s := range staff {
		names[s.ID] = s.Name
	}

	wb, err := newWorkbook()
	if err != nil {
		return err
	}
	defer wb.close()

	if err := g.bookingsSheet(wb, bookings, names); err != nil {
		return err
	}
	if err := shiftsSheet(wb, shifts, names); err != nil {
		return err
	}
	if err := g.summarySheet(wb, bookings); err != nil {
		return err
	}
	if err := wb.write(out); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	g.logger.Info().Str("scope", scope.Key()).Int("bookings", len(bookings)).Int("shifts", len(shifts)).
		Msg("Monthly report generated")
	return nil
}

func (g *Generator) bookingsSheet(wb *workbook, bookings []model.Booking, names map[int64]string) error {
	if err := wb.addSheet("Bookings"); err != nil {
		return err
	}
	if err := wb.header("ID", "Date", "Start", "End", "Resource", "Service", "Staff", "Client", "Status", "Combo", "Leg"); err != nil {
		return err
	}
	for _, b := range bookings {
		resource := b.ResourceID
		if r, ok := g.catalog.Resource(b.ResourceID); ok {
			resource = r.Name
		}
		staff := ""
		if b.StaffID != nil {
			staff = names[*b.StaffID]
		}
		row := []any{
			b.ID, bizclock.FormatDate(b.StartAt), bizclock.FormatClock(b.StartAt), bizclock.FormatClock(b.EndAt),
			resource, b.ServiceName, staff, b.ClientName, string(b.Status), b.ComboLinkID, string(b.Leg()),
		}
		if err := wb.append(row); err != nil {
			return err
		}
	}
	return nil
}

func shiftsSheet(wb *workbook, shifts []model.Shift, names map[int64]string) error {
	if err := wb.addSheet("Shifts"); err != nil {
		return err
	}
	if err := wb.header("Date", "Staff", "Status", "Start", "End"); err != nil {
		return err
	}
	for _, s := range shifts {
		if err := wb.append([]any{s.Date, names[s.StaffID], string(s.Status), s.StartTime, s.EndTime}); err != nil {
			return err
		}
	}
	return nil
}

// summarySheet counts bookings and booked hours per resource category.
func (g *Generator) summarySheet(wb *workbook, bookings []model.Booking) error {
	type totals struct {
		count   int
		minutes float64
	}
	byCategory := map[catalog.Category]*totals{}
	for _, cat := range catalog.Categories {
		byCategory[cat] = &totals{}
	}
	var revenue int64
	seenCombos := map[string]bool{}
	for _, b := range bookings {
		res, ok := g.catalog.Resource(b.ResourceID)
		if !ok {
			continue
		}
		t := byCategory[res.Category]
		t.count++
		t.minutes += b.Duration().Minutes()

		if b.IsCombo() {
			if seenCombos[b.ComboLinkID] {
				continue
			}
			seenCombos[b.ComboLinkID] = true
		}
		if svc, ok := g.catalog.Service(b.ServiceID); ok {
			revenue += svc.Price
		}
	}

	if err := wb.addSheet("Summary"); err != nil {
		return err
	}
	if err := wb.header("Category", "Resources", "Bookings", "Hours"); err != nil {
		return err
	}
	cats := append([]catalog.Category(nil), catalog.Categories...)
	sort.SliceStable(cats, func(i, j int) bool { return byCategory[cats[i]].count > byCategory[cats[j]].count })
	for _, cat := range cats {
		t := byCategory[cat]
		if err := wb.append([]any{string(cat), g.catalog.Capacity(cat), t.count, t.minutes / 60}); err != nil {
			return err
		}
	}
	return wb.append([]any{"Revenue", "", "", revenue})
}

// Tables dumps every table of the database into its own sheet.
func (g *Generator) Tables(ctx context.Context, out io.Writer) error {
	tables, err := g.store.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}

	wb, err := newWorkbook()
	if err != nil {
		return err
	}
	defer wb.close()

	for _, table := range tables {
		data, columns, err := g.store.GetTableData(ctx, table)
		if err != nil {
			g.logger.Error().Err(err).Str("table", table).Msg("Failed to get table data")
			continue
		}
		if err := wb.addSheet(table); err != nil {
			return err
		}
		if err := wb.header(columns...); err != nil {
			return err
		}
		for _, row := range data {
			values := make([]any, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := wb.append(values); err != nil {
				return err
			}
		}
		g.logger.Debug().Str("table", table).Int("rows", len(data)).Msg("Exported table")
	}
	return wb.write(out)
}
