package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"spadesk/internal/draftsync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"
)

func TestParseRows(t *testing.T) {
	cells := [][]string{
		{"10/03/2026", "10:00", " Ann ", "Thai Massage 60", "", "", "", "Nok"},
		{},
		{"  ", ""},
		{"2026-03-11", "13.30", "Ben", "Aroma Oil 60", "45", "Head Spa 30", "30 min", "Nok", "Ploy", "Head spa first"},
		{"03-12-26", "9:00", "Cat", "Massage + Head Spa 90", "x", "", "-5"},
		{"next week", "10:00", "Dan", "Thai Massage 60"},
	}

	rows := ParseRows(cells, 2)
	require.Len(t, rows, 4)

	tests := []struct {
		name string
		got  draftsync.Row
		want draftsync.Row
	}{
		{
			name: "single with day-first date",
			got:  rows[0],
			want: draftsync.Row{Line: 2, Date: "2026-03-10", Time: "10:00", ClientName: "Ann",
				Services: [2]string{"Thai Massage 60", ""}, Staff: [2]string{"Nok", ""}},
		},
		{
			name: "pair with durations and order",
			got:  rows[1],
			want: draftsync.Row{Line: 5, Date: "2026-03-11", Time: "13.30", ClientName: "Ben",
				Services: [2]string{"Aroma Oil 60", "Head Spa 30"}, Durations: [2]int{45, 30},
				Staff: [2]string{"Nok", "Ploy"}, HeadSpaFirst: true},
		},
		{
			name: "excel short date and junk minutes",
			got:  rows[2],
			want: draftsync.Row{Line: 6, Date: "2026-03-12", Time: "9:00", ClientName: "Cat",
				Services: [2]string{"Massage + Head Spa 90", ""}},
		},
		{
			name: "unparseable date kept for the report",
			got:  rows[3],
			want: draftsync.Row{Line: 7, Date: "next week", Time: "10:00", ClientName: "Dan",
				Services: [2]string{"Thai Massage 60", ""}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestFirstRow(t *testing.T) {
	tests := map[string]int{
		"A2:J":          2,
		"March!A10:J":   10,
		"'Mar 26'!B3:J": 3,
		"A:J":           1,
		"Sheet1":        1,
	}
	for in, want := range tests {
		assert.Equal(t, want, firstRow(in), in)
	}
}

func TestXLSXSource(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]any{
		{"Date", "Time", "Client", "Service", "Minutes", "Service 2", "Minutes 2", "Staff", "Staff 2", "Order"},
		{"2026-03-10", "10:00", "Ann", "Thai Massage 60"},
		{},
		{"2026-03-10", "11:00", "Ben", "Thai Massage + Head Spa 90", nil, nil, nil, "Nok", "Ploy", "hs"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	got, err := NewXLSXSource(&buf, "").Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Line)
	assert.Equal(t, "Ann", got[0].ClientName)
	assert.Equal(t, 4, got[1].Line)
	assert.True(t, got[1].HeadSpaFirst)
	assert.Equal(t, [2]string{"Nok", "Ploy"}, got[1].Staff)

	_, err = NewXLSXSource(strings.NewReader("not a workbook"), "").Rows(context.Background())
	assert.Error(t, err)
}

func TestSheetsSource(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"range":          "March!A2:J4",
			"majorDimension": "ROWS",
			"values": [][]any{
				{"2026-03-10", "10:00", "Ann", "Thai Massage 60", "60"},
				{},
				{"2026-03-10", "11:00", "Ben", "Aroma Oil 60", "", "Head Spa 30"},
			},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	src, err := NewSheetsSource(ctx, "sheet-123", "March!A2:J",
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	rows, err := src.Rows(ctx)
	require.NoError(t, err)
	assert.Contains(t, gotPath, "sheet-123")
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, [2]int{60, 0}, rows[0].Durations)
	assert.Equal(t, 4, rows[1].Line)
	assert.Equal(t, "Head Spa 30", rows[1].Services[1])

	other := src.WithRange("April!A5:J")
	assert.Equal(t, "April!A5:J", other.readRange)
	assert.Equal(t, "March!A2:J", src.readRange)
}

func TestCredentialsOption_MissingFile(t *testing.T) {
	_, err := CredentialsOption(context.Background(), "/nonexistent/creds.json")
	assert.Error(t, err)
}
