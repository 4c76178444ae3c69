package automl

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/autotab/api/internal/dataset"
)

// DefaultMaxOneHot is the largest number of levels a text column may have and
// still be one-hot encoded.
const DefaultMaxOneHot = 25

const (
	encodeNumeric   = "numeric"
	encodeOneHot    = "onehot"
	encodeFrequency = "frequency"
)

// featureEncoder turns one source column into one or more float features.
type featureEncoder struct {
	Column  string             `json:"column"`
	Kind    dataset.Kind       `json:"kind"`
	Mode    string             `json:"mode"`
	Fill    float64            `json:"fill,omitempty"`     // numeric: training mean
	FillKey string             `json:"fill_key,omitempty"` // text: training mode
	Levels  []string           `json:"levels,omitempty"`
	Freq    map[string]float64 `json:"freq,omitempty"`
}

func (e *featureEncoder) width() int {
	if e.Mode == encodeOneHot {
		return len(e.Levels)
	}
	return 1
}

func (e *featureEncoder) names() []string {
	if e.Mode != encodeOneHot {
		return []string{e.Column}
	}
	out := make([]string, len(e.Levels))
	for i, l := range e.Levels {
		out[i] = e.Column + "_" + l
	}
	return out
}

// encode writes the features of one raw cell into dst.
func (e *featureEncoder) encode(dst []float64, raw string, col *dataset.Column) {
	switch e.Mode {
	case encodeNumeric:
		v, ok := dataset.ParseNumber(raw, e.Kind)
		if !ok {
			v = e.Fill
		}
		dst[0] = v
	case encodeOneHot:
		key := e.key(raw, col)
		for i, l := range e.Levels {
			if l == key {
				dst[i] = 1
			} else {
				dst[i] = 0
			}
		}
	case encodeFrequency:
		dst[0] = e.Freq[e.key(raw, col)]
	}
}

func (e *featureEncoder) key(raw string, col *dataset.Column) string {
	if dataset.IsMissingToken(raw) {
		return e.FillKey
	}
	probe := &dataset.Column{Kind: col.Kind, Values: []string{raw}}
	return probe.Key(0)
}

// Preprocessor imputes and encodes the feature columns of a dataset into a
// dense matrix. It is fitted on training rows only.
type Preprocessor struct {
	Encoders []*featureEncoder `json:"encoders"`
	Names    []string          `json:"names"`
	Sources  []int             `json:"sources"` // encoded feature -> encoder index
}

// FitPreprocessor learns imputation values and encodings from the feature
// columns of ds.
func FitPreprocessor(ds *dataset.Dataset, maxOneHot int) *Preprocessor {
	if maxOneHot <= 0 {
		maxOneHot = DefaultMaxOneHot
	}
	p := &Preprocessor{}
	for _, col := range ds.Features() {
		var enc *featureEncoder
		if col.IsNumeric() {
			enc = fitNumeric(col)
		} else {
			enc = fitCategorical(col, maxOneHot)
		}
		idx := len(p.Encoders)
		p.Encoders = append(p.Encoders, enc)
		for _, n := range enc.names() {
			p.Names = append(p.Names, n)
			p.Sources = append(p.Sources, idx)
		}
	}
	return p
}

func fitNumeric(col *dataset.Column) *featureEncoder {
	sum, n := 0.0, 0
	for i := range col.Values {
		if v, ok := col.Float(i); ok {
			sum += v
			n++
		}
	}
	fill := 0.0
	if n > 0 {
		fill = sum / float64(n)
	}
	return &featureEncoder{Column: col.Name, Kind: col.Kind, Mode: encodeNumeric, Fill: fill}
}

func fitCategorical(col *dataset.Column, maxOneHot int) *featureEncoder {
	counts := map[string]int{}
	for i := range col.Values {
		if col.IsMissing(i) {
			continue
		}
		counts[col.Key(i)]++
	}
	levels := make([]string, 0, len(counts))
	for k := range counts {
		levels = append(levels, k)
	}
	sort.Strings(levels)

	mode := ""
	for _, l := range levels {
		if mode == "" || counts[l] > counts[mode] {
			mode = l
		}
	}
	enc := &featureEncoder{Column: col.Name, Kind: col.Kind, FillKey: mode}
	if len(levels) <= maxOneHot {
		enc.Mode = encodeOneHot
		enc.Levels = levels
		return enc
	}
	enc.Mode = encodeFrequency
	enc.Freq = make(map[string]float64, len(levels))
	total := float64(len(col.Values))
	for _, l := range levels {
		enc.Freq[l] = float64(counts[l]) / total
	}
	// missing cells are imputed with the mode before counting
	enc.Freq[mode] += float64(len(col.Values)-sumCounts(counts)) / total
	return enc
}

func sumCounts(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// Width is the number of encoded features.
func (p *Preprocessor) Width() int { return len(p.Names) }

// Transform encodes the rows of ds. Columns are matched by name, so the
// target column may be absent and column order may differ from training.
func (p *Preprocessor) Transform(ds *dataset.Dataset) ([][]float64, error) {
	cols := make([]*dataset.Column, len(p.Encoders))
	for i, enc := range p.Encoders {
		c, ok := ds.Column(enc.Column)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, enc.Column)
		}
		cols[i] = c
	}
	n := ds.NumRows()
	out := make([][]float64, n)
	for r := 0; r < n; r++ {
		row := make([]float64, p.Width())
		off := 0
		for i, enc := range p.Encoders {
			w := enc.width()
			enc.encode(row[off:off+w], cols[i].Values[r], cols[i])
			off += w
		}
		out[r] = row
	}
	return out, nil
}

// targetEncoder maps class labels to indexes, or passes numeric targets
// through for regression.
type targetEncoder struct {
	Problem ProblemType  `json:"problem"`
	Kind    dataset.Kind `json:"kind"`
	Classes []string     `json:"classes,omitempty"`
}

// fitTarget learns the sorted class set. Classes sort numerically for
// numeric kinds, false before true for booleans, and lexically for text.
func fitTarget(col *dataset.Column, pt ProblemType) *targetEncoder {
	te := &targetEncoder{Problem: pt, Kind: col.Kind}
	if pt != Classification {
		return te
	}
	seen := map[string]bool{}
	for i := range col.Values {
		if col.IsMissing(i) {
			continue
		}
		k := col.Key(i)
		if !seen[k] {
			seen[k] = true
			te.Classes = append(te.Classes, k)
		}
	}
	sortClasses(te.Classes, col.Kind)
	return te
}

func sortClasses(classes []string, kind dataset.Kind) {
	if kind == dataset.KindInteger || kind == dataset.KindFloat {
		sort.Slice(classes, func(a, b int) bool {
			fa, _ := strconv.ParseFloat(classes[a], 64)
			fb, _ := strconv.ParseFloat(classes[b], 64)
			return fa < fb
		})
		return
	}
	sort.Strings(classes)
}

// encode returns the target vector and the rows it covers. Rows with a
// missing target, or an unseen class, are skipped.
func (te *targetEncoder) encode(col *dataset.Column) ([]float64, []int) {
	index := make(map[string]int, len(te.Classes))
	for i, c := range te.Classes {
		index[c] = i
	}
	var y []float64
	var rows []int
	for i := range col.Values {
		if te.Problem == Classification {
			c, ok := index[col.Key(i)]
			if col.IsMissing(i) || !ok {
				continue
			}
			y = append(y, float64(c))
		} else {
			v, ok := col.Float(i)
			if !ok || math.IsNaN(v) {
				continue
			}
			y = append(y, v)
		}
		rows = append(rows, i)
	}
	return y, rows
}

func (te *targetEncoder) nClasses() int {
	if te.Problem != Classification {
		return 0
	}
	return len(te.Classes)
}

// decode renders a prediction as a report label.
func (te *targetEncoder) decode(v float64) string {
	if te.Problem == Classification {
		i := int(v)
		if i >= 0 && i < len(te.Classes) {
			return te.Classes[i]
		}
		return ""
	}
	return strconv.FormatFloat(round4(v), 'f', -1, 64)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
