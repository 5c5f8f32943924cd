// Package sheet stores the user table as an xlsx workbook with a header row
// followed by one row per user.
package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/dtroode/sheetkeeper/internal/model"
)

// DefaultSheetName is the worksheet excelize creates in a new workbook.
const DefaultSheetName = "Sheet1"

// ContentType is the media type of encoded tables.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var _ model.TableCodec = (*Codec)(nil)

// escapedChar matches the OOXML _xHHHH_ escape, which readers decode into a
// single character.
var escapedChar = regexp.MustCompile(`_x[0-9A-Fa-f]{4}_`)

// ValidateRecord reports fields that a workbook cell cannot hold unchanged.
func ValidateRecord(record model.UserRecord) error {
	fields := []struct{ name, value string }{
		{model.ColumnUsername, record.Username},
		{model.ColumnPassword, record.Password},
		{model.ColumnPageID, record.PageID},
		{model.ColumnAccessToken, record.AccessToken},
	}
	for _, f := range fields {
		if err := validateCell(f.value); err != nil {
			return fmt.Errorf("%w: %s %v", model.ErrInvalidInput, f.name, err)
		}
	}
	return nil
}

func validateCell(v string) error {
	if !utf8.ValidString(v) {
		return errors.New("is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(v); n > excelize.TotalCellChars {
		return fmt.Errorf("is %d characters, limit is %d", n, excelize.TotalCellChars)
	}
	for _, r := range v {
		if !isXMLChar(r) {
			return fmt.Errorf("contains unsupported character %U", r)
		}
	}
	if escapedChar.MatchString(v) {
		return fmt.Errorf("contains the reserved sequence %q", escapedChar.FindString(v))
	}
	return nil
}

// isXMLChar follows the Char production of XML 1.0.
func isXMLChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

// Codec encodes and decodes the user table.
type Codec struct {
	sheetName string
}

// NewCodec creates a Codec writing to the named worksheet.
func NewCodec(sheetName string) *Codec {
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	return &Codec{sheetName: sheetName}
}

// Encode writes the table into a new workbook and returns its bytes.
func (c *Codec) Encode(table model.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if c.sheetName != DefaultSheetName {
		if err := f.SetSheetName(DefaultSheetName, c.sheetName); err != nil {
			return nil, fmt.Errorf("failed to name worksheet: %w", err)
		}
	}

	header := make([]interface{}, 0, len(model.Columns))
	for _, col := range model.Columns {
		header = append(header, col)
	}
	if err := f.SetSheetRow(c.sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range table.Records {
		if err := ValidateRecord(r); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to address row %d: %w", i, err)
		}
		row := []interface{}{r.Username, r.Password, r.PageID, r.AccessToken}
		if err := f.SetSheetRow(c.sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode parses a workbook produced by Encode or by a spreadsheet tool.
// The configured worksheet is read when present, otherwise the first one.
// Columns are matched by header name, so their order may differ from
// model.Columns; a missing column makes the table malformed.
func (c *Codec) Decode(data []byte) (model.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return model.Table{}, fmt.Errorf("%w: %v", model.ErrMalformedTable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return model.Table{}, fmt.Errorf("%w: workbook has no worksheets", model.ErrMalformedTable)
	}
	sheet := sheets[0]
	if slices.Contains(sheets, c.sheetName) {
		sheet = c.sheetName
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return model.Table{}, fmt.Errorf("%w: %v", model.ErrMalformedTable, err)
	}
	if len(rows) == 0 {
		return model.Table{}, nil
	}

	index, err := headerIndex(rows[0])
	if err != nil {
		return model.Table{}, err
	}

	table := model.Table{}
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		table.Records = append(table.Records, model.UserRecord{
			Username:    cellAt(row, index[model.ColumnUsername]),
			Password:    cellAt(row, index[model.ColumnPassword]),
			PageID:      cellAt(row, index[model.ColumnPageID]),
			AccessToken: cellAt(row, index[model.ColumnAccessToken]),
		})
	}

	return table, nil
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(model.Columns))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}

	for _, col := range model.Columns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", model.ErrMalformedTable, col)
		}
	}

	return index, nil
}

// excelize drops trailing empty cells, so short rows are padded here.
func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
