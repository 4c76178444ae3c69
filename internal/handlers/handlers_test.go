package handlers

import (
	"bytes"
	"context"
	"errors"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/autotab/api/internal/artifact"
	"github.com/autotab/api/internal/automl"
	"github.com/autotab/api/internal/database"
	"github.com/autotab/api/internal/metrics"
	"github.com/autotab/api/internal/middleware"
	"github.com/autotab/api/internal/registry"
	"github.com/autotab/api/internal/training"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
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

	files, err := artifact.NewStore(t.TempDir(), true)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	search := automl.DefaultOptions()
	search.Folds = 3
	search.TuneIterations = 1
	search.Include = []string{"dt", "lr"}

	orch := training.NewOrchestrator(training.Deps{
		Searcher: automl.NewEngine(zap.NewNop()),
		Files:    files,
		Signer:   artifact.NewSigner("test"),
		Registry: store,
	}, training.Options{TestRatio: 0.25, Seed: 42, Search: search}, zap.NewNop())

	return NewRouter(RouterDeps{
		Store:        store,
		Orchestrator: orch,
		Files:        files,
		Sessions:     middleware.NewSessions("test-secret", time.Hour, nil, zap.NewNop()),
		Metrics:      metrics.New(),
		Health:       map[string]Pinger{"database": store, "redis": nil},
		RateLimit:    1000,
		MaxUpload:    1 << 20,
		Logger:       zap.NewNop(),
	})
}

func doJSON(r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doUpload(r http.Handler, path, token, filename, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, _ := mw.CreateFormFile("file", filename)
		fw.Write([]byte(content))
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func register(t *testing.T, r http.Handler, username string) string {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{Username: username, Password: "password123"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp AuthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	if resp.Token == "" || resp.User == nil || resp.User.Username != username {
		t.Fatalf("unexpected auth response %+v", resp)
	}
	return resp.Token
}

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

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(r, http.MethodGet, "/health/deep", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Dependencies["database"] != "healthy" || resp.Dependencies["redis"] != "not configured" {
		t.Errorf("Unexpected dependencies %v", resp.Dependencies)
	}
}

type slowPinger struct {
	delay time.Duration
	err   error
}

func (p slowPinger) Ping(ctx context.Context) error {
	select {
	case <-time.After(p.delay):
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run with -race: optional and probed dependencies are reported from
// different goroutines.
func TestDeepHealthMixedDependencies(t *testing.T) {
	deps := map[string]Pinger{}
	for i := 0; i < 20; i++ {
		deps[fmt.Sprintf("up%d", i)] = slowPinger{delay: time.Millisecond}
		deps[fmt.Sprintf("optional%d", i)] = nil
	}
	deps["broken"] = slowPinger{err: errors.New("connection refused")}

	h := NewHealthHandler(deps)
	r := gin.New()
	r.GET("/health/deep", h.DeepHealth)

	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/deep", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("Expected 503 with a broken dependency, got %d", w.Code)
		}
		var resp HealthResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if len(resp.Dependencies) != len(deps) {
			t.Fatalf("Expected %d dependencies, got %d", len(deps), len(resp.Dependencies))
		}
		if resp.Dependencies["optional7"] != "not configured" || resp.Dependencies["up3"] != "healthy" {
			t.Errorf("Unexpected dependencies %v", resp.Dependencies)
		}
		if !strings.HasPrefix(resp.Dependencies["broken"], "unhealthy:") {
			t.Errorf("Expected broken to be unhealthy, got %q", resp.Dependencies["broken"])
		}
	}
}

func TestAuthFlow(t *testing.T) {
	r := newTestRouter(t)
	token := register(t, r, "alice")

	if w := doJSON(r, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{Username: "alice", Password: "password123"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate register: expected 409, got %d", w.Code)
	}
	if w := doJSON(r, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{Username: "bob", Password: "short"}); w.Code != http.StatusBadRequest {
		t.Errorf("short password: expected 400, got %d", w.Code)
	}
	if w := doJSON(r, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: "alice", Password: "wrong-password"}); w.Code != http.StatusUnauthorized {
		t.Errorf("bad password: expected 401, got %d", w.Code)
	}
	if w := doJSON(r, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: "nobody", Password: "password123"}); w.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: expected 401, got %d", w.Code)
	}

	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: "alice", Password: "password123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", w.Code)
	}
	var hasCookie bool
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie && c.HttpOnly && c.Value != "" {
			hasCookie = true
		}
	}
	if !hasCookie {
		t.Error("Expected an HttpOnly session cookie")
	}

	if w := doJSON(r, http.MethodGet, "/api/v1/user/me", token, nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "alice") {
		t.Errorf("me: expected 200 with username, got %d %s", w.Code, w.Body.String())
	}
	if strings.Contains(doJSON(r, http.MethodGet, "/api/v1/user/me", token, nil).Body.String(), "password") {
		t.Error("Password hash leaked")
	}

	if w := doJSON(r, http.MethodPost, "/api/v1/auth/logout", token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/api/v1/user/me", token, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("after logout: expected 401, got %d", w.Code)
	}
}

func TestReportsBeforeTraining(t *testing.T) {
	r := newTestRouter(t)
	token := register(t, r, "alice")

	for _, path := range []string{"/api/v1/predictions/latest", "/api/v1/feature-importance/latest"} {
		w := doJSON(r, http.MethodGet, path, token, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
		var body struct {
			Error middleware.APIError `json:"error"`
		}
		json.Unmarshal(w.Body.Bytes(), &body)
		if body.Error.Code != middleware.ErrCodeNotFound {
			t.Errorf("%s: expected NOT_FOUND, got %+v", path, body.Error)
		}
	}
	if w := doJSON(r, http.MethodGet, "/api/v1/predictions/latest", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: expected 401, got %d", w.Code)
	}
}

func TestUploadErrors(t *testing.T) {
	r := newTestRouter(t)
	token := register(t, r, "alice")

	tests := []struct {
		name     string
		filename string
		content  string
	}{
		{"missing file", "", ""},
		{"empty file", "data.csv", ""},
		{"header only", "data.csv", "a,b\n"},
		{"ragged rows", "data.csv", "a,b\n1,2,3\n"},
		{"single column", "data.csv", "y\n1\n2\n3\n"},
		{"one row", "data.csv", "x,y\n1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doUpload(r, "/api/v1/datasets", token, tt.filename, tt.content)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestUploadTrainAndDownload(t *testing.T) {
	r := newTestRouter(t)
	token := register(t, r, "alice")

	w := doUpload(r, "/api/v1/datasets", token, "credit.csv", creditCSV(80))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if resp.Model == nil || resp.Model.ProblemType != "classification" || resp.Model.Name != "credit.csv" {
		t.Fatalf("unexpected model %+v", resp.Model)
	}

	w = doJSON(r, http.MethodGet, "/api/v1/predictions/latest", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("predictions: expected 200, got %d", w.Code)
	}
	rows, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse predictions: %v", err)
	}
	if len(rows)-1 != 20 {
		t.Errorf("Expected 20 prediction rows, got %d", len(rows)-1)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "attachment") {
		t.Errorf("Expected attachment, got %q", w.Header().Get("Content-Disposition"))
	}

	w = doJSON(r, http.MethodGet, "/api/v1/feature-importance/latest", token, nil)
	if resp.ImportanceAvailable && w.Code != http.StatusOK {
		t.Errorf("importance: expected 200, got %d", w.Code)
	}
	if !resp.ImportanceAvailable && w.Code != http.StatusNotFound {
		t.Errorf("importance: expected 404, got %d", w.Code)
	}

	other := register(t, r, "bob")
	if w := doJSON(r, http.MethodGet, "/api/v1/predictions/latest", other, nil); w.Code != http.StatusNotFound {
		t.Errorf("other user: expected 404, got %d", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/v1/models", token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), resp.Model.ID.String()) {
		t.Errorf("list: expected the new model, got %d %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "artifact_path") {
		t.Error("Expected file paths to stay private")
	}

	modelPath := "/api/v1/models/" + resp.Model.ID.String()
	if w := doJSON(r, http.MethodGet, modelPath, other, nil); w.Code != http.StatusNotFound {
		t.Errorf("foreign model: expected 404, got %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/api/v1/models/not-a-uuid", token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, modelPath+"/download", token, nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"estimator"`) {
		t.Errorf("download: expected the model JSON, got %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, modelPath+"/download?file=manifest", token, nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "signature") {
		t.Errorf("manifest: expected 200, got %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, modelPath+"/download?file=secrets", token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad file: expected 400, got %d", w.Code)
	}

	w = doUpload(r, modelPath+"/predict", token, "new.csv", "age,income\n30,25000\n50,70000\n")
	if w.Code != http.StatusOK {
		t.Fatalf("predict: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	scored, _ := csv.NewReader(w.Body).ReadAll()
	if len(scored) != 3 || scored[0][2] != automl.LabelColumn {
		t.Errorf("unexpected scored rows %v", scored)
	}
	if w := doUpload(r, modelPath+"/predict", token, "new.csv", "height\n1\n"); w.Code != http.StatusBadRequest {
		t.Errorf("mismatched columns: expected 400, got %d", w.Code)
	}
}
