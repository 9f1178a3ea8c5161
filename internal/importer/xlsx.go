package importer

import (
	"context"
	"fmt"
	"io"

	"spadesk/internal/draftsync"

	"github.com/xuri/excelize/v2"
)

// XLSXSource reads the first sheet, or a named one, of an uploaded workbook.
// The first row is a header.
type XLSXSource struct {
	r     io.Reader
	sheet string
}

func NewXLSXSource(r io.Reader, sheet string) *XLSXSource {
	return &XLSXSource{r: r, sheet: sheet}
}

func (s *XLSXSource) Rows(_ context.Context) ([]draftsync.Row, error) {
	f, err := excelize.OpenReader(s.r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := s.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(cells) <= 1 {
		return nil, nil
	}
	return ParseRows(cells[1:], 2), nil
}
