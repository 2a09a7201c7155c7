package exportsvc

import (
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/ratiba/core/attendance"
)

const defaultSheet = "Sheet1"

type excelExporter struct{}

var _ attendance.Exporter = (*excelExporter)(nil)

// NewExcelExporter writes xlsx workbooks holding a single sheet.
func NewExcelExporter() attendance.Exporter {
	return excelExporter{}
}

func (excelExporter) Export(sheet string, headers []string, rows [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	if sheet == "" {
		sheet = defaultSheet
	}
	if len(sheet) > 31 { // xlsx limit
		sheet = sheet[:31]
	}
	f.SetSheetName(defaultSheet, sheet)

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "writing workbook")
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, n int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return errors.Wrap(err, "resolving cell")
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return errors.Wrapf(err, "writing row %d", n)
	}
	return nil
}
