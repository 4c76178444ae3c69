package automl

import (
	"strings"
	"testing"

	"github.com/autotab/api/internal/dataset"
)

func mustRead(t *testing.T, src string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.ReadCSV(strings.NewReader(src), dataset.Options{})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	return ds
}

func TestDetectProblemType(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want ProblemType
	}{
		{"binary integers", "x,y\n1,0\n2,1\n3,0\n4,1\n", Classification},
		{"text labels", "x,y\n1,cat\n2,dog\n3,cat\n", Classification},
		{"booleans", "x,y\n1,true\n2,false\n", Classification},
		{"low cardinality floats", "x,y\n1,0.5\n2,1.5\n3,0.5\n", Regression},
		{"integer with missing becomes float", "x,y\n1,1\n2,\n3,0\n", Regression},
		{"text with missing", "x,y\n1,a\n2,\n3,b\n", Classification},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectProblemType(mustRead(t, tt.src)); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDetectProblemTypeCardinalityBoundary(t *testing.T) {
	build := func(n int) string {
		var b strings.Builder
		b.WriteString("x,y\n")
		for i := 0; i < n; i++ {
			b.WriteString("1,")
			b.WriteString(string(rune('a' + i)))
			b.WriteString("\n")
		}
		return b.String()
	}
	if got := DetectProblemType(mustRead(t, build(10))); got != Classification {
		t.Errorf("10 distinct labels: expected classification, got %s", got)
	}
	if got := DetectProblemType(mustRead(t, build(11))); got != Regression {
		t.Errorf("11 distinct labels: expected regression, got %s", got)
	}
}

func TestParseProblemType(t *testing.T) {
	if pt, err := ParseProblemType("regression"); err != nil || pt != Regression {
		t.Errorf("Expected regression, got %s (%v)", pt, err)
	}
	if _, err := ParseProblemType("ranking"); err == nil {
		t.Error("Expected error for unknown problem type")
	}
}
