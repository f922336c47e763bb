package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// valuesAPI is the slice of the Sheets API the exporter writes through.
type valuesAPI interface {
	EnsureSheet(ctx context.Context, spreadsheetID, title string) error
	Clear(ctx context.Context, spreadsheetID, rng string) error
	Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error
}

// SheetsExporter mirrors yearly reports into a Google Sheets document, one
// tab per view named "<year> <base> <view>".
type SheetsExporter struct {
	api           valuesAPI
	spreadsheetID string
	sheetBase     string
}

// NewSheetsExporter authenticates with a service account taken from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewSheetsExporter(ctx context.Context, spreadsheetID, sheetBase string) (*SheetsExporter, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &SheetsExporter{
		api:           sheetsValues{svc: svc},
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportYear replaces the contents of the year's tabs with the report.
func (e *SheetsExporter) ExportYear(ctx context.Context, report YearReport) error {
	tabs := []struct {
		view string
		rows [][]any
	}{
		{ComparisonSheet, comparisonRows(report.Comparison)},
		{MatrixSheet, matrixRows(report.Matrix)},
	}

	for _, tab := range tabs {
		title := e.sheetTitle(report.Year, tab.view)
		if err := e.api.EnsureSheet(ctx, e.spreadsheetID, title); err != nil {
			return fmt.Errorf("ensure sheet %s: %w", title, err)
		}
		if err := e.api.Clear(ctx, e.spreadsheetID, a1(title, "A:Z")); err != nil {
			return fmt.Errorf("clear sheet %s: %w", title, err)
		}
		if err := e.api.Update(ctx, e.spreadsheetID, a1(title, "A1"), tab.rows); err != nil {
			return fmt.Errorf("update sheet %s: %w", title, err)
		}
	}

	slog.InfoContext(ctx, "Exported year to Google Sheets",
		"year", report.Year,
		"categories", len(report.Matrix),
		"months", len(report.Comparison))
	return nil
}

func (e *SheetsExporter) sheetTitle(year int, view string) string {
	return yearPrefixedName(e.sheetBase, year) + " " + view
}

// a1 quotes the sheet title for use in an A1 range.
func a1(title, rng string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + rng
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return strconv.Itoa(year)
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

type sheetsValues struct {
	svc *gsheet.Service
}

func (s sheetsValues) EnsureSheet(ctx context.Context, spreadsheetID, title string) error {
	doc, err := s.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return err
	}
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	_, err = s.svc.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

func (s sheetsValues) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (s sheetsValues) Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	vr := &gsheet.ValueRange{Values: values}
	_, err := s.svc.Spreadsheets.Values.Update(spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}
