// Package export copies an itinerary into a new Google spreadsheet.
package export

import (
	"context"
	"fmt"

	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/sheet"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type Result struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	URL           string `json:"url"`
	Rows          int    `json:"rows"`
}

type SheetsExporter struct {
	service *sheets.Service
	logger  logger.Logger
}

// NewSheetsExporter authenticates with a service account credentials file.
// Extra options are appended, which tests use to point at a fake endpoint.
func NewSheetsExporter(ctx context.Context, credentialsFile string, log logger.Logger, opts ...option.ClientOption) (*SheetsExporter, error) {
	if credentialsFile != "" {
		opts = append([]option.ClientOption{option.WithCredentialsFile(credentialsFile)}, opts...)
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsExporter{
		service: svc,
		logger:  log.With(map[string]interface{}{"component": "sheets-export"}),
	}, nil
}

// Export creates a spreadsheet titled title holding the CSV's cells.
func (e *SheetsExporter) Export(ctx context.Context, title, csv string) (*Result, error) {
	parsed, err := sheet.Parse(csv)
	if err != nil {
		return nil, err
	}

	created, err := e.service.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title},
		Sheets: []*sheets.Sheet{
			{Properties: &sheets.SheetProperties{Title: "Itinerary"}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return nil, apperrors.NewExportFailedError(err)
	}

	_, err = e.service.Spreadsheets.Values.Update(created.SpreadsheetId, "Itinerary!A1", &sheets.ValueRange{
		Values: parsed.Values(),
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return nil, apperrors.NewExportFailedError(err)
	}

	e.logger.Info("itinerary exported", map[string]interface{}{
		"spreadsheetId": created.SpreadsheetId,
		"rows":          len(parsed.Rows),
	})

	return &Result{
		SpreadsheetID: created.SpreadsheetId,
		URL:           created.SpreadsheetUrl,
		Rows:          len(parsed.Rows),
	}, nil
}
