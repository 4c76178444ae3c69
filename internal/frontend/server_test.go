package frontend

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/autotab/api/internal/middleware"
	"github.com/autotab/api/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var modelID = uuid.New()

// fakeAPI accepts the single user alice/password123 with token "tok".
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	r := gin.New()
	auth := func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer tok" {
			middleware.Unauthorized(c, "invalid or expired session")
			c.Abort()
			return
		}
	}
	r.POST("/api/v1/auth/login", func(c *gin.Context) {
		var req struct{ Username, Password string }
		c.ShouldBindJSON(&req)
		if req.Username != "alice" || req.Password != "password123" {
			middleware.Unauthorized(c, "invalid credentials")
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": "tok"})
	})
	r.GET("/api/v1/user/me", auth, func(c *gin.Context) {
		c.JSON(http.StatusOK, models.User{Username: "alice"})
	})
	r.GET("/api/v1/models", auth, func(c *gin.Context) {
		c.JSON(http.StatusOK, []models.ModelRecord{{
			ID: modelID, Name: "credit.csv", ProblemType: "classification",
			Algorithm: "dt", Metric: "F1", Score: 0.9, HasImportance: true, TrainedAt: time.Now(),
		}})
	})
	r.POST("/api/v1/datasets", auth, func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			middleware.BadRequest(c, "no file uploaded")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "ok", "model": models.ModelRecord{Name: fh.Filename, Algorithm: "dt", Metric: "F1", Score: 1}})
	})
	r.GET("/api/v1/models/:id/download", auth, func(c *gin.Context) {
		c.Header("Content-Disposition", `attachment; filename="predictions.csv"`)
		c.Data(http.StatusOK, "text/csv", []byte("a,prediction_label\n1,0\n"))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newUI(apiURL string, cb *middleware.CircuitBreaker) *gin.Engine {
	return NewServer(NewClient(apiURL, cb), false, time.Hour, zap.NewNop()).Router()
}

func get(r http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func cookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var session = &http.Cookie{Name: middleware.SessionCookie, Value: "tok"}

func TestIndexRequiresLogin(t *testing.T) {
	r := newUI(fakeAPI(t).URL, nil)
	w := get(r, "/")
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Errorf("Expected redirect to /login, got %d %s", w.Code, w.Header().Get("Location"))
	}
}

func TestLogin(t *testing.T) {
	r := newUI(fakeAPI(t).URL, nil)

	form := url.Values{"username": {"alice"}, "password": {"password123"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Fatalf("Expected redirect to /, got %d %s", w.Code, w.Header().Get("Location"))
	}
	c := cookie(w, middleware.SessionCookie)
	if c == nil || c.Value != "tok" || !c.HttpOnly {
		t.Errorf("Expected HttpOnly session cookie, got %+v", c)
	}

	form.Set("password", "nope")
	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Location") != "/login" {
		t.Errorf("Expected redirect back to /login, got %s", w.Header().Get("Location"))
	}
	flash := cookie(w, flashCookie)
	if flash == nil || !strings.Contains(flash.Value, "incorrect") {
		t.Errorf("Expected an error flash, got %+v", flash)
	}
	page := get(r, "/login", flash)
	if !strings.Contains(page.Body.String(), "incorrect username or password") {
		t.Error("Expected the flash to be rendered")
	}
}

func TestIndexListsModels(t *testing.T) {
	r := newUI(fakeAPI(t).URL, nil)
	w := get(r, "/", session)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"alice", "credit.csv", "F1 0.9000", "/download/" + modelID.String() + "?file=importance"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected page to contain %q", want)
		}
	}

	expired := &http.Cookie{Name: middleware.SessionCookie, Value: "old"}
	w = get(r, "/", expired)
	if w.Header().Get("Location") != "/login" {
		t.Errorf("Expected expired session to redirect to /login, got %s", w.Header().Get("Location"))
	}
}

func TestUploadIsProxied(t *testing.T) {
	r := newUI(fakeAPI(t).URL, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "credit.csv")
	fw.Write([]byte("a,b\n1,0\n"))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(session)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("Expected redirect, got %d", w.Code)
	}
	flash := cookie(w, flashCookie)
	msg, _ := url.QueryUnescape(flash.Value)
	if !strings.Contains(msg, "credit.csv") || strings.HasPrefix(msg, "!") {
		t.Errorf("Expected a success flash naming the file, got %q", msg)
	}
}

func TestDownloadIsProxied(t *testing.T) {
	r := newUI(fakeAPI(t).URL, nil)
	w := get(r, "/download/"+modelID.String()+"?file=predictions", session)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "prediction_label") {
		t.Errorf("Expected the CSV, got %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "predictions.csv") {
		t.Errorf("Expected attachment header, got %q", w.Header().Get("Content-Disposition"))
	}
}

func TestCircuitOpensWhenAPIIsDown(t *testing.T) {
	api := fakeAPI(t)
	api.Close()

	cb := middleware.NewCircuitBreaker(middleware.BreakerOptions{FailureThreshold: 2, SuccessThreshold: 1, Cooldown: time.Minute})
	r := newUI(api.URL, cb)
	for i := 0; i < 2; i++ {
		w := get(r, "/", session)
		if w.Code != http.StatusBadGateway || !strings.Contains(w.Body.String(), "unavailable") {
			t.Errorf("attempt %d: expected 502 with the error, got %d", i, w.Code)
		}
	}
	if cb.State() != middleware.CircuitOpen {
		t.Fatalf("Expected open circuit, got %s", cb.State())
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(session)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 from the open circuit, got %d", w.Code)
	}
}

func TestFlashKeepsQuotesAndAccents(t *testing.T) {
	s := NewServer(NewClient("http://127.0.0.1:1", nil), false, time.Hour, zap.NewNop())
	r := s.Router()
	msg := `missing feature column "p"; überprüfen Sie die Datei`
	r.GET("/flash-test", func(c *gin.Context) {
		s.flash(c, msg, true)
		c.Status(http.StatusNoContent)
	})

	w := get(r, "/flash-test")
	flash := cookie(w, flashCookie)
	if flash == nil {
		t.Fatal("Expected a flash cookie")
	}
	page := get(r, "/login", flash)
	body := page.Body.String()
	if !strings.Contains(body, "&#34;p&#34;; überprüfen Sie die Datei") {
		t.Errorf("Expected the message to survive the cookie round trip, got:\n%s", body)
	}
}
