package importer

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"

	"spadesk/internal/draftsync"

	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsSource reads a range of a Google spreadsheet.
type SheetsSource struct {
	service       *sheets.Service
	spreadsheetID string
	readRange     string
}

// CredentialsOption builds a read-only client option from a service account JSON file.
func CredentialsOption(ctx context.Context, credentialsFile string) (option.ClientOption, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := googleoauth.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return option.WithCredentials(creds), nil
}

func NewSheetsSource(ctx context.Context, spreadsheetID, readRange string, opts ...option.ClientOption) (*SheetsSource, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsSource{service: srv, spreadsheetID: spreadsheetID, readRange: readRange}, nil
}

// WithRange returns a source reading another range of the same spreadsheet, e.g. one tab per month.
func (s *SheetsSource) WithRange(readRange string) *SheetsSource {
	cp := *s
	cp.readRange = readRange
	return &cp
}

func (s *SheetsSource) Rows(ctx context.Context) ([]draftsync.Row, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).
		ValueRenderOption("FORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.readRange, err)
	}

	cells := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			cells[i][j] = fmt.Sprint(v)
		}
	}
	return ParseRows(cells, firstRow(s.readRange)), nil
}

// firstRow extracts the starting row number of an A1 range such as "March!A2:J".
func firstRow(a1 string) int {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	start, _, _ := strings.Cut(a1, ":")
	digits := strings.TrimLeftFunc(start, unicode.IsLetter)
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
