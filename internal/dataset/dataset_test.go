package dataset

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestReadCSVInfersKinds(t *testing.T) {
	src := "age,income,member,city,score\n" +
		"31,1200.5,true,Lisbon,1\n" +
		"45,,false,Porto,0\n" +
		"27,980,True,NA,1\n"

	ds, err := ReadCSV(strings.NewReader(src), Options{})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	want := map[string]Kind{
		"age":    KindInteger,
		"income": KindFloat,
		"member": KindBoolean,
		"city":   KindText,
		"score":  KindInteger,
	}
	for name, kind := range want {
		c, ok := ds.Column(name)
		if !ok {
			t.Fatalf("column %q not found", name)
		}
		if c.Kind != kind {
			t.Errorf("column %q: expected kind %s, got %s", name, kind, c.Kind)
		}
	}

	if ds.NumRows() != 3 {
		t.Errorf("Expected 3 rows, got %d", ds.NumRows())
	}
	if ds.Target().Name != "score" {
		t.Errorf("Expected target 'score', got %q", ds.Target().Name)
	}
}

func TestReadCSVIntegerWithMissingIsFloat(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("a,b\n1,x\n,y\n3,z\n"), Options{})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if ds.Columns[0].Kind != KindFloat {
		t.Errorf("Expected float, got %s", ds.Columns[0].Kind)
	}
}

func TestReadCSVSniffsDelimiter(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("a;b;c\n1;2;3\n4;5;6\n"), Options{})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(ds.Columns) != 3 {
		t.Fatalf("Expected 3 columns, got %d", len(ds.Columns))
	}
	if got := ds.Columns[2].Values[1]; got != "6" {
		t.Errorf("Expected '6', got %q", got)
	}
}

func TestReadCSVHeaderHandling(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("\ufeffx,x,,y\n1,2,3,4\n"), Options{})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	got := strings.Join(ds.Header(), "|")
	if got != "x|x.1|Unnamed: 2|y" {
		t.Errorf("unexpected header %q", got)
	}
}

func TestReadCSVErrors(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader(""), Options{}); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("Expected ErrEmptyDataset for empty input, got %v", err)
	}
	if _, err := ReadCSV(strings.NewReader("a,b\n"), Options{}); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("Expected ErrEmptyDataset for header only, got %v", err)
	}
	if _, err := ReadCSV(strings.NewReader("a,b\n1,2,3\n"), Options{}); !errors.Is(err, ErrMalformedRow) {
		t.Errorf("Expected ErrMalformedRow, got %v", err)
	}
}

func TestReadCSVPadsShortRows(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("a,b,c\n1,2\n3,4,5\n"), Options{})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if !ds.Columns[2].IsMissing(0) {
		t.Error("Expected padded cell to be missing")
	}
}

func TestValidate(t *testing.T) {
	one := &Dataset{Columns: []*Column{{Name: "a", Values: []string{"1"}}}}
	if err := one.Validate(); !errors.Is(err, ErrTooFewColumns) {
		t.Errorf("Expected ErrTooFewColumns, got %v", err)
	}
}

func TestDistinctCountsMissingOnce(t *testing.T) {
	c := &Column{Kind: KindFloat, Values: []string{"1", "1.0", "", "NA", "2"}}
	if got := c.Distinct(); got != 3 {
		t.Errorf("Expected 3 distinct values, got %d", got)
	}
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	var b strings.Builder
	b.WriteString("x,y\n")
	for i := 0; i < 10; i++ {
		b.WriteString("1,0\n")
	}
	ds, err := ReadCSV(strings.NewReader(b.String()), Options{})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	s1, err := TrainTestSplit(ds, 0.25, 42)
	if err != nil {
		t.Fatalf("TrainTestSplit failed: %v", err)
	}
	s2, _ := TrainTestSplit(ds, 0.25, 42)

	if len(s1.TestIndex) != 3 {
		t.Errorf("Expected ceil(0.25*10)=3 test rows, got %d", len(s1.TestIndex))
	}
	if s1.Train.NumRows() != 7 {
		t.Errorf("Expected 7 train rows, got %d", s1.Train.NumRows())
	}
	for i := range s1.TestIndex {
		if s1.TestIndex[i] != s2.TestIndex[i] {
			t.Fatalf("split is not deterministic: %v vs %v", s1.TestIndex, s2.TestIndex)
		}
	}
}

func TestTrainTestSplitTooFewRows(t *testing.T) {
	ds := &Dataset{Columns: []*Column{
		{Name: "x", Values: []string{"1"}},
		{Name: "y", Values: []string{"0"}},
	}}
	if _, err := TrainTestSplit(ds, 0.25, 42); !errors.Is(err, ErrTooFewRows) {
		t.Errorf("Expected ErrTooFewRows, got %v", err)
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	src := "a,b\n1,\"x,y\"\n2,z\n"
	ds, err := ReadCSV(strings.NewReader(src), Options{})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	var buf bytes.Buffer
	if err := ds.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if buf.String() != src {
		t.Errorf("Expected %q, got %q", src, buf.String())
	}
}
