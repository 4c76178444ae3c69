package dataset

import (
	"errors"
	"strconv"
	"strings"
)

// Kind is the inferred storage kind of a column.
type Kind string

const (
	KindInteger Kind = "integer"
	KindFloat   Kind = "float"
	KindBoolean Kind = "boolean"
	KindText    Kind = "text"
)

var (
	ErrEmptyDataset  = errors.New("dataset has no rows")
	ErrTooFewColumns = errors.New("dataset needs at least one feature column and a target column")
	ErrTooFewRows    = errors.New("dataset has too few rows to split")
	ErrMalformedRow  = errors.New("row has more fields than the header")
)

var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// IsMissingToken reports whether a raw cell is treated as a missing value.
func IsMissingToken(s string) bool {
	return missingTokens[strings.TrimSpace(s)]
}

// Column is a named, typed sequence of raw cell values.
type Column struct {
	Name   string
	Kind   Kind
	Values []string
}

// IsMissing reports whether row i holds a missing value.
func (c *Column) IsMissing(i int) bool {
	return IsMissingToken(c.Values[i])
}

// Float returns the numeric value of row i. Booleans map to 0/1.
// The second result is false for missing or non-numeric cells.
func (c *Column) Float(i int) (float64, bool) {
	return ParseNumber(c.Values[i], c.Kind)
}

// ParseNumber converts a raw cell of the given kind to a float. Booleans map
// to 0/1; missing or unparseable cells return false.
func ParseNumber(raw string, kind Kind) (float64, bool) {
	v := strings.TrimSpace(raw)
	if IsMissingToken(v) {
		return 0, false
	}
	if b, ok := parseBool(v); ok && (kind == KindBoolean || kind == KindText) {
		if b {
			return 1, true
		}
		return 0, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// IsNumeric reports whether the column holds integers, floats or booleans.
func (c *Column) IsNumeric() bool {
	return c.Kind == KindInteger || c.Kind == KindFloat || c.Kind == KindBoolean
}

// Distinct counts distinct values; all missing cells count as one value.
func (c *Column) Distinct() int {
	seen := make(map[string]struct{}, len(c.Values))
	missing := false
	for i, v := range c.Values {
		if c.IsMissing(i) {
			missing = true
			continue
		}
		seen[c.normalize(v)] = struct{}{}
	}
	n := len(seen)
	if missing {
		n++
	}
	return n
}

// Key returns the canonical form of row i, used to compare categorical
// values. Missing cells return "".
func (c *Column) Key(i int) string {
	if c.IsMissing(i) {
		return ""
	}
	return c.normalize(c.Values[i])
}

// normalize canonicalizes a value so "1" and "1.0" in a float column, or
// "True" and "true" in a boolean column, compare equal.
func (c *Column) normalize(v string) string {
	v = strings.TrimSpace(v)
	switch c.Kind {
	case KindFloat:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
	case KindBoolean:
		if b, ok := parseBool(v); ok {
			return strconv.FormatBool(b)
		}
	}
	return v
}

// Dataset is an ordered set of equally long columns. The last column is the
// prediction target.
type Dataset struct {
	Name    string
	Columns []*Column
}

// NumRows returns the number of rows.
func (d *Dataset) NumRows() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Values)
}

// Header returns the column names in order.
func (d *Dataset) Header() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Target returns the last column.
func (d *Dataset) Target() *Column {
	if len(d.Columns) == 0 {
		return nil
	}
	return d.Columns[len(d.Columns)-1]
}

// Features returns every column except the target.
func (d *Dataset) Features() []*Column {
	if len(d.Columns) < 2 {
		return nil
	}
	return d.Columns[:len(d.Columns)-1]
}

// FeatureNames returns the names of the non-target columns.
func (d *Dataset) FeatureNames() []string {
	feats := d.Features()
	out := make([]string, len(feats))
	for i, c := range feats {
		out[i] = c.Name
	}
	return out
}

// Column looks a column up by name.
func (d *Dataset) Column(name string) (*Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Row returns the raw cells of row i.
func (d *Dataset) Row(i int) []string {
	out := make([]string, len(d.Columns))
	for j, c := range d.Columns {
		out[j] = c.Values[i]
	}
	return out
}

// Subset returns a new dataset holding the given rows, in the given order.
// Column kinds are preserved.
func (d *Dataset) Subset(rows []int) *Dataset {
	out := &Dataset{Name: d.Name, Columns: make([]*Column, len(d.Columns))}
	for j, c := range d.Columns {
		vals := make([]string, len(rows))
		for k, r := range rows {
			vals[k] = c.Values[r]
		}
		out.Columns[j] = &Column{Name: c.Name, Kind: c.Kind, Values: vals}
	}
	return out
}

// WithColumn returns a shallow copy of d with an extra trailing column.
func (d *Dataset) WithColumn(name string, kind Kind, values []string) *Dataset {
	cols := make([]*Column, len(d.Columns), len(d.Columns)+1)
	copy(cols, d.Columns)
	cols = append(cols, &Column{Name: name, Kind: kind, Values: values})
	return &Dataset{Name: d.Name, Columns: cols}
}

// Validate checks the minimum shape needed for training.
func (d *Dataset) Validate() error {
	if len(d.Columns) < 2 {
		return ErrTooFewColumns
	}
	if d.NumRows() == 0 {
		return ErrEmptyDataset
	}
	return nil
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// inferKind mirrors dataframe dtype inference over raw cells.
func inferKind(values []string) Kind {
	allInt, allNum, allBool := true, true, true
	missing, present := 0, 0
	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if IsMissingToken(v) {
			missing++
			continue
		}
		present++
		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allNum {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allNum = false
			}
		}
		if allBool {
			if _, ok := parseBool(v); !ok {
				allBool = false
			}
		}
	}
	switch {
	case present == 0:
		return KindFloat
	case allInt && missing == 0:
		return KindInteger
	case allNum:
		return KindFloat
	case allBool && missing == 0:
		return KindBoolean
	default:
		return KindText
	}
}
