// Package export renders the ledger as a spreadsheet file and ships it to a
// sink such as a GCS bucket.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/daily-tracker/internal/domain"
)

// SheetName is the worksheet that holds exported rows.
const SheetName = "Finance_Data"

// ContentType is the MIME type of an exported workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrNoData is returned when there is nothing to export.
var ErrNoData = errors.New("no data available to export")

// File is a rendered export.
type File struct {
	Name        string
	ContentType string
	Data        []byte
	Rows        int
}

// FileName returns the download name for an export made at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("finance_tracker_%s.xlsx", t.Format("20060102"))
}

// Build renders l into an xlsx File named after now.
func Build(l domain.Ledger, now time.Time) (*File, error) {
	if len(l) == 0 {
		return nil, ErrNoData
	}

	var buf bytes.Buffer
	if err := WriteXLSX(l, &buf); err != nil {
		return nil, err
	}
	return &File{
		Name:        FileName(now),
		ContentType: ContentType,
		Data:        buf.Bytes(),
		Rows:        len(l),
	}, nil
}

// WriteXLSX writes l as a workbook with one sheet: a header row of the ledger
// columns followed by one row per transaction in insertion order.
func WriteXLSX(l domain.Ledger, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("WriteXLSX: naming sheet: %w", err)
	}

	header := make([]interface{}, len(domain.Columns))
	for i, col := range domain.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("WriteXLSX: writing header: %w", err)
	}

	for i, tx := range l {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("WriteXLSX: row %d: %w", i+2, err)
		}
		row := []interface{}(tx.ToStorageRow())
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("WriteXLSX: writing row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("WriteXLSX: encoding workbook: %w", err)
	}
	return nil
}
