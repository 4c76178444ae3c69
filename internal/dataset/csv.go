package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Options controls CSV parsing.
type Options struct {
	// Delimiter for CSV. If 0, auto-detects among ',', ';', '\t'.
	Delimiter rune
	// MaxRows limits rows read; 0 means unlimited.
	MaxRows int
}

// ReadCSVFile parses the CSV file at path.
func ReadCSVFile(path string, opt Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	ds, err := ReadCSV(f, opt)
	if err != nil {
		return nil, err
	}
	ds.Name = filepath.Base(path)
	return ds, nil
}

// ReadCSV parses CSV data with a header row into a Dataset and infers the
// kind of every column. Short rows are padded with missing values.
func ReadCSV(r io.Reader, opt Options) (*Dataset, error) {
	br := bufio.NewReader(r)
	delim := opt.Delimiter
	if delim == 0 {
		head, _ := br.Peek(4096)
		delim = sniffDelimiter(head)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDataset
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	names := dedupeNames(header)

	cols := make([]*Column, len(names))
	for i, n := range names {
		cols[i] = &Column{Name: n}
	}

	line := 1
	for {
		if opt.MaxRows > 0 && line > opt.MaxRows {
			break
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line+1, err)
		}
		line++
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && len(cols) > 1 {
			continue
		}
		if len(rec) > len(cols) {
			return nil, fmt.Errorf("row %d: %w (%d > %d)", line, ErrMalformedRow, len(rec), len(cols))
		}
		for i, c := range cols {
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			c.Values = append(c.Values, v)
		}
	}

	for _, c := range cols {
		c.Kind = inferKind(c.Values)
	}
	ds := &Dataset{Columns: cols}
	if ds.NumRows() == 0 {
		return nil, ErrEmptyDataset
	}
	return ds, nil
}

// WriteCSV writes the dataset, header first.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Header()); err != nil {
		return err
	}
	n := d.NumRows()
	for i := 0; i < n; i++ {
		if err := cw.Write(d.Row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func sniffDelimiter(head []byte) rune {
	first := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		first = head[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := strings.Count(string(first), string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// dedupeNames suffixes repeated header names with ".1", ".2", ...
func dedupeNames(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}
