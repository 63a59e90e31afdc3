package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxHeaderSearchRows is the maximum number of rows scanned for the header.
var MaxHeaderSearchRows = 20

// CSVFile is a parsed upload: one header row and the non-empty data rows
// below it.
type CSVFile struct {
	Headers []string
	Rows    []Row
	// HeaderLine is the 1-based record number of the header row.
	HeaderLine int
	Size       int64
}

// Detection is the detector's view of a file.
type Detection struct {
	ParserType ParserType `json:"parserType"`
	Headers    []string   `json:"headers"`
	SampleRow  Row        `json:"sampleRow"`
	RowCount   int        `json:"rowCount"`
}

// Detect classifies the file and captures the preview data.
func Detect(f *CSVFile) Detection {
	d := Detection{
		ParserType: DetectFormat(f.Headers),
		Headers:    append([]string(nil), f.Headers...),
		SampleRow:  Row{},
		RowCount:   len(f.Rows),
	}
	if len(f.Rows) > 0 {
		for k, v := range f.Rows[0] {
			d.SampleRow[k] = v
		}
	}
	return d
}

// ReadCSV reads an upload. Any read or syntax failure, a file with no
// header, or a file with no data rows is reported as ErrParse.
func ReadCSV(r io.Reader) (*CSVFile, error) {
	counter := NewCountingReader(r)

	cr := csv.NewReader(CleanInput(counter))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	headerIdx := findHeader(records)
	if headerIdx < 0 {
		return nil, &ParseError{Err: errors.New("file is empty")}
	}

	headers := cleanHeaders(records[headerIdx])
	file := &CSVFile{
		Headers:    headers,
		HeaderLine: headerIdx + 1,
	}

	for _, rec := range records[headerIdx+1:] {
		if isEmptyRow(rec) {
			continue
		}
		file.Rows = append(file.Rows, toRow(headers, rec))
	}
	file.Size = counter.Bytes

	if len(file.Rows) == 0 {
		return nil, &ParseError{Err: errors.New("no data rows after header")}
	}
	return file, nil
}

// findHeader picks the first record within MaxHeaderSearchRows that a known
// format recognizes, falling back to the first non-empty record. Exports
// such as LinkedIn's start with a free-text preamble above the header.
func findHeader(records [][]string) int {
	first := -1
	limit := min(MaxHeaderSearchRows, len(records))

	for i := 0; i < limit; i++ {
		if isEmptyRow(records[i]) {
			continue
		}
		if first < 0 {
			first = i
		}
		if DetectFormat(cleanHeaders(records[i])) != ParserCustom {
			return i
		}
	}
	if first < 0 {
		for i := limit; i < len(records); i++ {
			if !isEmptyRow(records[i]) {
				return i
			}
		}
	}
	return first
}

func cleanHeaders(rec []string) []string {
	out := make([]string, len(rec))
	for i, h := range rec {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		out[i] = h
	}
	return out
}

// toRow keys a record by header. Repeated headers keep their first
// non-blank value; cells beyond the header width are ignored.
func toRow(headers, rec []string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		var v string
		if i < len(rec) {
			v = strings.TrimSpace(rec[i])
		}
		if prev, ok := row[h]; ok && prev != "" {
			continue
		}
		row[h] = v
	}
	return row
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ExportHeaders is the column layout written by WriteCSV and recognized as
// the rolodex format on re-import.
var ExportHeaders = []string{
	"Name", "Emails", "Phones", "Company", "Role", "Location",
	"LinkedIn URL", "Other URLs", "Notes", "Source",
}

// WriteCSV writes contacts in the rolodex export layout.
func WriteCSV(w io.Writer, contacts []Contact) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, c := range contacts {
		urls := make([]string, 0, len(c.ContactInfo.OtherURLs))
		for _, u := range c.ContactInfo.OtherURLs {
			if u.Platform != "" {
				urls = append(urls, u.Platform+": "+u.URL)
			} else {
				urls = append(urls, u.URL)
			}
		}
		rec := []string{
			c.Name,
			strings.Join(c.ContactInfo.Emails, "; "),
			strings.Join(c.ContactInfo.Phones, "; "),
			c.Company,
			c.Role,
			c.Location,
			c.ContactInfo.LinkedInURL,
			strings.Join(urls, "; "),
			c.Notes,
			string(c.Source),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write contact %s: %w", c.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
