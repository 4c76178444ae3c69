package training

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autotab/api/internal/artifact"
	"github.com/autotab/api/internal/automl"
	"github.com/autotab/api/internal/database"
	"github.com/autotab/api/internal/dataset"
	"github.com/autotab/api/internal/eventbus"
	"github.com/autotab/api/internal/metrics"
	"github.com/autotab/api/internal/models"
	"github.com/autotab/api/internal/registry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

type fixture struct {
	orch    *Orchestrator
	store   registry.Store
	bus     *eventbus.Memory
	metrics *metrics.Metrics
	cache   *artifact.ModelCache
	owner   uuid.UUID
}

func newFixture(t *testing.T, include ...string) *fixture {
	t.Helper()
	return newFixtureWithNames(t, true, include...)
}

func newFixtureWithNames(t *testing.T, timestamped bool, include ...string) *fixture {
	t.Helper()
	db, err := database.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.RunSQLiteMigrations(db.DB(), zap.NewNop()); err != nil {
		t.Fatalf("migrations failed: %v", err)
	}
	store := registry.NewSQLite(db)

	owner := &models.User{ID: uuid.New(), Username: "alice", PasswordHash: "x", Role: models.RoleUser}
	if err := store.CreateUser(context.Background(), owner); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	files, err := artifact.NewStore(t.TempDir(), timestamped)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	cache, _ := artifact.NewModelCache(4)
	bus := &eventbus.Memory{}
	m := metrics.New()

	search := automl.DefaultOptions()
	search.Folds = 3
	search.TuneIterations = 2
	search.Include = include

	orch := NewOrchestrator(Deps{
		Searcher: automl.NewEngine(zap.NewNop()),
		Files:    files,
		Signer:   artifact.NewSigner("test-key"),
		Registry: store,
		Cache:    cache,
		Bus:      bus,
		Metrics:  m,
	}, Options{TestRatio: 0.25, Seed: 42, Search: search}, zap.NewNop())

	return &fixture{orch: orch, store: store, bus: bus, metrics: m, cache: cache, owner: owner.ID}
}

// creditCSV has columns age, income, default with default in {0,1}.
func creditCSV(n int) string {
	var b strings.Builder
	b.WriteString("age,income,default\n")
	for i := 0; i < n; i++ {
		income := 20000 + (i%10)*5000
		def := 0
		if income < 40000 {
			def = 1
		}
		fmt.Fprintf(&b, "%d,%d,%d\n", 21+(i*7)%40, income, def)
	}
	return b.String()
}

func readDataset(t *testing.T, body string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.ReadCSV(strings.NewReader(body), dataset.Options{})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	return ds
}

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestTrainClassification(t *testing.T) {
	fx := newFixture(t, "dt", "lr")
	ds := readDataset(t, creditCSV(80))

	out, err := fx.orch.Train(context.Background(), Request{Owner: fx.owner, Name: "credit.csv", Dataset: ds})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	rec := out.Record
	if rec.ProblemType != string(automl.Classification) {
		t.Fatalf("Expected classification, got %s", rec.ProblemType)
	}
	wantTest := int(math.Ceil(0.25 * 80))
	if rec.TestRows != wantTest || rec.TrainRows != 80-wantTest {
		t.Errorf("Expected %d/%d rows, got %d/%d", 80-wantTest, wantTest, rec.TrainRows, rec.TestRows)
	}

	rows := readCSVFile(t, rec.PredictionsPath)
	if len(rows)-1 != wantTest {
		t.Errorf("Expected %d prediction rows, got %d", wantTest, len(rows)-1)
	}
	header := rows[0]
	if header[len(header)-2] != automl.LabelColumn || header[len(header)-1] != automl.ScoreColumn {
		t.Errorf("Unexpected report header %v", header)
	}
	for _, r := range rows[1:] {
		if l := r[len(r)-2]; l != "0" && l != "1" {
			t.Errorf("Expected label 0 or 1, got %q", l)
		}
	}

	if rec.HasImportance {
		imp := readCSVFile(t, rec.ImportancePath)
		if len(imp)-1 != len(ds.FeatureNames()) {
			t.Errorf("Expected %d importance rows, got %d", len(ds.FeatureNames()), len(imp)-1)
		}
	} else if rec.ImportancePath != "" {
		t.Error("Expected no importance path without importances")
	}

	listed, err := fx.store.ListModels(context.Background(), fx.owner)
	if err != nil || len(listed) != 1 || listed[0].ID != rec.ID {
		t.Fatalf("Expected the run to be registered, got %v, %v", listed, err)
	}

	latest, err := fx.orch.Latest(context.Background(), fx.owner)
	if err != nil || latest.Predictions != rec.PredictionsPath {
		t.Errorf("Expected latest to point at the run, got %+v, %v", latest, err)
	}

	events := fx.bus.Events(eventbus.SubjectModelTrained)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	var ev models.TrainedEvent
	if err := json.Unmarshal(events[0].Data, &ev); err != nil || ev.ModelID != rec.ID {
		t.Errorf("Unexpected event %+v, %v", ev, err)
	}

	if _, err := artifact.NewSigner("test-key").VerifyFile(rec.ManifestPath); err != nil {
		t.Errorf("Expected a valid manifest, got %v", err)
	}
	if fx.cache.Len() != 1 {
		t.Errorf("Expected the fitted pipeline to be cached, got %d entries", fx.cache.Len())
	}

	if got := testutil.ToFloat64(fx.metrics.TrainingRuns.WithLabelValues("classification", "success")); got != 1 {
		t.Errorf("Expected 1 successful run, got %v", got)
	}
}

func TestImportanceWrittenForTrees(t *testing.T) {
	fx := newFixture(t, "dt")
	ds := readDataset(t, creditCSV(60))

	out, err := fx.orch.Train(context.Background(), Request{Owner: fx.owner, Name: "credit.csv", Dataset: ds})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if !out.Record.HasImportance {
		t.Fatal("Expected a tree to report importance")
	}
	rows := readCSVFile(t, out.Record.ImportancePath)
	if rows[0][0] != "feature" || rows[0][1] != "importance" {
		t.Errorf("Unexpected header %v", rows[0])
	}
	if len(rows)-1 != 2 {
		t.Errorf("Expected one row per feature, got %d", len(rows)-1)
	}
}

func TestMissingImportanceIsTolerated(t *testing.T) {
	fx := newFixture(t, "lr")
	ds := readDataset(t, creditCSV(60))

	out, err := fx.orch.Train(context.Background(), Request{Owner: fx.owner, Name: "credit.csv", Dataset: ds})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if out.Record.HasImportance || out.Record.ImportancePath != "" {
		t.Error("Expected no importance report for a linear model")
	}
	latest, _ := fx.orch.Latest(context.Background(), fx.owner)
	if latest.Importance != "" {
		t.Errorf("Expected no latest importance, got %q", latest.Importance)
	}
}

func TestTrainRegression(t *testing.T) {
	fx := newFixture(t, "lr", "dummy")
	var b strings.Builder
	b.WriteString("x,y\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "%d,%g\n", i, 3*float64(i)+0.5)
	}
	out, err := fx.orch.Train(context.Background(), Request{Owner: fx.owner, Name: "line.csv", Dataset: readDataset(t, b.String())})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if out.Record.ProblemType != string(automl.Regression) || out.Record.Metric != automl.MetricR2 {
		t.Errorf("Expected regression scored by R2, got %s/%s", out.Record.ProblemType, out.Record.Metric)
	}
	header := readCSVFile(t, out.Record.PredictionsPath)[0]
	if header[len(header)-1] != automl.LabelColumn {
		t.Errorf("Expected no score column for regression, got %v", header)
	}
}

func TestInvalidInput(t *testing.T) {
	fx := newFixture(t, "dummy")
	ctx := context.Background()

	oneCol := readDataset(t, "y\n1\n2\n3\n")
	if _, err := fx.orch.Train(ctx, Request{Owner: fx.owner, Dataset: oneCol}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for one column, got %v", err)
	}
	tiny := readDataset(t, "x,y\n1,0\n")
	if _, err := fx.orch.Train(ctx, Request{Owner: fx.owner, Dataset: tiny}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for one row, got %v", err)
	}
	if _, err := fx.orch.Latest(ctx, fx.owner); !errors.Is(err, artifact.ErrNotFound) {
		t.Errorf("Expected no latest run after failures, got %v", err)
	}
}

func TestTrainCancelled(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.orch.Train(ctx, Request{Owner: fx.owner, Dataset: readDataset(t, creditCSV(60))})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if got := testutil.ToFloat64(fx.metrics.TrainingRuns.WithLabelValues("classification", "cancelled")); got != 1 {
		t.Errorf("Expected 1 cancelled run, got %v", got)
	}
}

func TestScoreStoredModel(t *testing.T) {
	fx := newFixture(t, "dt")
	out, err := fx.orch.Train(context.Background(), Request{Owner: fx.owner, Name: "credit.csv", Dataset: readDataset(t, creditCSV(60))})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	fresh := readDataset(t, "age,income\n30,25000\n50,70000\n")
	scored, err := fx.orch.Score(context.Background(), out.Record, fresh)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if scored.NumRows() != 2 {
		t.Errorf("Expected 2 rows, got %d", scored.NumRows())
	}
	if _, ok := scored.Column(automl.LabelColumn); !ok {
		t.Error("Expected a prediction_label column")
	}

	wrong := readDataset(t, "height,weight\n1,2\n")
	_, err = fx.orch.Score(context.Background(), out.Record, wrong)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for missing columns, got %v", err)
	} else if !strings.Contains(err.Error(), "age") || !strings.Contains(err.Error(), "income") {
		t.Errorf("Expected the error to list the model's columns, got %v", err)
	}

	gone := *out.Record
	gone.ArtifactPath = ""
	if _, err := fx.orch.Score(context.Background(), &gone, fresh); !errors.Is(err, artifact.ErrNotFound) {
		t.Errorf("Expected artifact.ErrNotFound, got %v", err)
	}
}

func TestFixedNamesKeepRunsApart(t *testing.T) {
	fx := newFixtureWithNames(t, false, "dt")
	ctx := context.Background()

	first, err := fx.orch.Train(ctx, Request{Owner: fx.owner, Name: "credit.csv", Dataset: readDataset(t, creditCSV(60))})
	if err != nil {
		t.Fatalf("first Train failed: %v", err)
	}
	var b strings.Builder
	b.WriteString("p,q,r\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "%d,%d,%d\n", i, i%3, (i/5)%2)
	}
	second, err := fx.orch.Train(ctx, Request{Owner: fx.owner, Name: "pqr.csv", Dataset: readDataset(t, b.String())})
	if err != nil {
		t.Fatalf("second Train failed: %v", err)
	}
	if first.Record.ArtifactPath == second.Record.ArtifactPath || first.Record.ManifestPath == second.Record.ManifestPath {
		t.Fatal("Expected each run to keep its own model and manifest")
	}

	fresh := readDataset(t, "age,income\n30,25000\n50,70000\n")
	if _, err := fx.orch.Score(ctx, first.Record, fresh); err != nil {
		t.Errorf("Expected the first model to still score its own columns, got %v", err)
	}
	for _, rec := range []*models.ModelRecord{first.Record, second.Record} {
		if _, err := artifact.NewSigner("test-key").VerifyFile(rec.ManifestPath); err != nil {
			t.Errorf("Expected manifest of %s to verify, got %v", rec.Name, err)
		}
	}

	latest, err := fx.orch.Latest(ctx, fx.owner)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if filepath.Base(latest.Predictions) != artifact.PredictionsFile {
		t.Errorf("Expected latest predictions at the fixed name, got %s", latest.Predictions)
	}
	if header := readCSVFile(t, latest.Predictions)[0]; header[0] != "p" {
		t.Errorf("Expected the fixed report to hold the newest run, got header %v", header)
	}
	if header := readCSVFile(t, first.Record.PredictionsPath)[0]; header[0] != "age" {
		t.Errorf("Expected the first run's report to be kept, got header %v", header)
	}
}
