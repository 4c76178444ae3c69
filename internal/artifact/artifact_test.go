package artifact

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func writeString(t *testing.T, s *Store, path, body string) {
	t.Helper()
	err := s.Write(path, func(w io.Writer) error {
		_, err := io.WriteString(w, body)
		return err
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestLayoutNames(t *testing.T) {
	owner, id := uuid.New(), uuid.New()
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	s, err := NewStore(t.TempDir(), true)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	l, err := s.Layout(owner, id, at)
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	want := "20250102_030405_" + id.String()[:8] + "_predictions.csv"
	if filepath.Base(l.Predictions) != want {
		t.Errorf("Expected %s, got %s", want, filepath.Base(l.Predictions))
	}
	if filepath.Base(l.Dir) != owner.String() {
		t.Errorf("Expected owner dir, got %s", l.Dir)
	}

	if l.LatestPredictions != "" || l.LatestImportance != "" {
		t.Errorf("Expected no fixed latest names with timestamps, got %+v", l)
	}

	fixed, _ := NewStore(t.TempDir(), false)
	l, _ = fixed.Layout(owner, id, at)
	if want := id.String()[:8] + "_" + ModelFile; filepath.Base(l.Model) != want {
		t.Errorf("Expected model name %s, got %s", want, filepath.Base(l.Model))
	}
	if filepath.Base(l.LatestImportance) != ImportanceFile || filepath.Base(l.LatestPredictions) != PredictionsFile {
		t.Errorf("Expected fixed latest names, got %+v", l)
	}
	other, _ := fixed.Layout(owner, uuid.New(), at)
	if other.Model == l.Model || other.Manifest == l.Manifest || other.Predictions == l.Predictions {
		t.Error("Expected runs to get their own model, manifest and report files")
	}
}

func TestWriteIsAtomic(t *testing.T) {
	s, _ := NewStore(t.TempDir(), false)
	l, _ := s.Layout(uuid.New(), uuid.New(), time.Now())

	writeString(t, s, l.Predictions, "a,b\n1,2\n")
	err := s.Write(l.Predictions, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("Expected writer error")
	}
	data, _ := os.ReadFile(l.Predictions)
	if string(data) != "a,b\n1,2\n" {
		t.Errorf("Failed write replaced the file: %q", data)
	}
	entries, _ := os.ReadDir(l.Dir)
	if len(entries) != 1 {
		t.Errorf("Expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestOpenRejectsOutsidePaths(t *testing.T) {
	s, _ := NewStore(t.TempDir(), true)
	outside := filepath.Join(t.TempDir(), "x.csv")
	os.WriteFile(outside, []byte("x"), 0o644)

	if _, err := s.Open(outside); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for outside path, got %v", err)
	}
	if _, err := s.Open(filepath.Join(s.Root(), "missing.csv")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing file, got %v", err)
	}
	if s.Exists("") {
		t.Error("Expected empty path not to exist")
	}
}

func TestLockSerializesFixedNames(t *testing.T) {
	s, _ := NewStore(t.TempDir(), false)
	owner := uuid.New()
	l, _ := s.Layout(owner, uuid.New(), time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := s.Lock(owner)
			defer unlock()
			body := strings.Repeat(string(rune('a'+i)), 1024)
			s.Write(l.Predictions, func(w io.Writer) error {
				_, err := io.WriteString(w, body)
				return err
			})
		}(i)
	}
	wg.Wait()

	data, _ := os.ReadFile(l.Predictions)
	if len(data) != 1024 || strings.Count(string(data), string(data[0])) != 1024 {
		t.Errorf("Expected one complete write, got %d bytes", len(data))
	}
}

func TestManifestSignAndVerify(t *testing.T) {
	s, _ := NewStore(t.TempDir(), true)
	owner, id := uuid.New(), uuid.New()
	l, _ := s.Layout(owner, id, time.Now())
	writeString(t, s, l.Model, `{"kind":"dt"}`)
	writeString(t, s, l.Predictions, "x,prediction_label\n1,0\n")

	signer := NewSigner("test-secret-key-123")
	m, err := signer.Sign(ManifestInput{
		ModelID: id, OwnerID: owner, Algorithm: "dt", ProblemType: "classification",
		Metric: "F1", Score: 0.8, ModelPath: l.Model, Reports: []string{l.Predictions},
	})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if m.ModelHash == "" || m.HashChain == "" || m.Signature == "" {
		t.Fatalf("Incomplete manifest %+v", m)
	}
	if len(m.Files) != 1 || m.Files[0].Name != filepath.Base(l.Predictions) {
		t.Errorf("Unexpected file digests %+v", m.Files)
	}
	if err := s.Write(l.Manifest, func(w io.Writer) error { return WriteManifest(w, m) }); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}

	if _, err := signer.VerifyFile(l.Manifest); err != nil {
		t.Errorf("Expected valid manifest, got %v", err)
	}
	if _, err := NewSigner("other-key").VerifyFile(l.Manifest); !errors.Is(err, ErrTampered) {
		t.Errorf("Expected ErrTampered with another key, got %v", err)
	}

	writeString(t, s, l.Predictions, "x,prediction_label\n1,1\n")
	if _, err := signer.VerifyFile(l.Manifest); !errors.Is(err, ErrTampered) {
		t.Errorf("Expected ErrTampered after editing a report, got %v", err)
	}
}

func TestManifestFieldTampering(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, ModelFile)
	os.WriteFile(model, []byte("{}"), 0o644)

	signer := NewSigner("k")
	m, err := signer.Sign(ManifestInput{ModelID: uuid.New(), OwnerID: uuid.New(), Algorithm: "rf", Score: 0.5, ModelPath: model})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	m.Score = 0.99
	if err := signer.Verify(m, dir); !errors.Is(err, ErrTampered) {
		t.Errorf("Expected ErrTampered after editing the score, got %v", err)
	}
}

func TestMemoryLatest(t *testing.T) {
	idx := NewMemoryLatest()
	ctx := context.Background()
	owner := uuid.New()

	if _, err := idx.Get(ctx, owner); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound before any run, got %v", err)
	}
	idx.Set(ctx, owner, Latest{Predictions: "a"})
	idx.Set(ctx, owner, Latest{Predictions: "b"})
	got, err := idx.Get(ctx, owner)
	if err != nil || got.Predictions != "b" {
		t.Errorf("Expected latest b, got %+v, %v", got, err)
	}
	if _, err := idx.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Error("Expected index to be per user")
	}
}
