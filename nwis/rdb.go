package nwis

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// SiteDocument is a parsed RDB (tab-delimited) response from the site service.
type SiteDocument struct {
	// Info holds the leading "#" comment block, newline-terminated.
	Info    string
	Columns []string
	Rows    []map[string]string
}

// ParseRDB parses an RDB body. After the comment block the first line names
// the columns and the second gives their formats (e.g. "5s\t15s"); every
// remaining non-empty line is a data row. Short rows leave trailing columns
// empty; a row with more fields than columns is a *DecodeError.
func ParseRDB(body []byte) (*SiteDocument, error) {
	doc := &SiteDocument{Rows: []map[string]string{}}
	var info strings.Builder
	headerLines := 0

	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		l := strings.TrimRight(sc.Text(), "\r")
		if l == "" {
			continue
		}
		if l[0] == '#' {
			info.WriteString(l)
			info.WriteByte('\n')
			continue
		}
		fields := strings.Split(l, "\t")
		switch headerLines {
		case 0:
			doc.Columns = fields
			headerLines++
			continue
		case 1:
			headerLines++
			continue
		}
		if len(fields) > len(doc.Columns) {
			return nil, &DecodeError{
				Format: FormatRDB,
				Err:    fmt.Errorf("line %d: %d fields for %d columns", line, len(fields), len(doc.Columns)),
			}
		}
		row := make(map[string]string, len(doc.Columns))
		for i, col := range doc.Columns {
			if i < len(fields) {
				row[col] = fields[i]
			} else {
				row[col] = ""
			}
		}
		doc.Rows = append(doc.Rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, &DecodeError{Format: FormatRDB, Err: err}
	}
	doc.Info = info.String()
	return doc, nil
}

// Column reports whether the document declares the named column.
func (d *SiteDocument) Column(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}
