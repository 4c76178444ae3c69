package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/autotab/api/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(s *Sessions) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/me", s.Auth(), func(c *gin.Context) {
		id, _ := GetUserID(c)
		c.String(http.StatusOK, id.String())
	})
	return r
}

func testUser() *models.User {
	return &models.User{ID: uuid.New(), Username: "alice", Role: models.RoleUser}
}

func TestAuthAcceptsHeaderAndCookie(t *testing.T) {
	s := NewSessions("secret", time.Hour, nil, zap.NewNop())
	u := testUser()
	token, claims, err := s.Issue(u)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if claims.ID == "" || claims.Username != "alice" {
		t.Errorf("Unexpected claims %+v", claims)
	}
	r := protectedRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != u.ID.String() {
		t.Errorf("Bearer: expected 200 with user id, got %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a request id header")
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Cookie: expected 200, got %d", w.Code)
	}
}

func TestAuthRejects(t *testing.T) {
	s := NewSessions("secret", time.Hour, nil, zap.NewNop())
	other := NewSessions("other", time.Hour, nil, zap.NewNop())
	expired := NewSessions("secret", time.Nanosecond, nil, zap.NewNop())

	foreign, _, _ := other.Issue(testUser())
	old, _, _ := expired.Issue(testUser())
	time.Sleep(5 * time.Millisecond)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong key", "Bearer " + foreign},
		{"expired", "Bearer " + old},
	}
	r := protectedRouter(s)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", w.Code)
			}
		})
	}
}

func TestRevokedTokenIsRejected(t *testing.T) {
	s := NewSessions("secret", time.Hour, NewMemoryDenylist(), zap.NewNop())
	token, claims, _ := s.Issue(testUser())

	if err := s.Revoke(context.Background(), claims); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := s.Parse(context.Background(), token); err != ErrRevokedToken {
		t.Errorf("Expected ErrRevokedToken, got %v", err)
	}

	fresh, _, _ := s.Issue(testUser())
	if _, err := s.Parse(context.Background(), fresh); err != nil {
		t.Errorf("Expected other sessions to stay valid, got %v", err)
	}
}

func TestMemoryDenylistExpires(t *testing.T) {
	d := NewMemoryDenylist()
	ctx := context.Background()
	d.Revoke(ctx, "a", time.Now().Add(-time.Second))
	if revoked, _ := d.IsRevoked(ctx, "a"); revoked {
		t.Error("Expected an expired entry not to count")
	}
	d.Revoke(ctx, "b", time.Now().Add(time.Minute))
	if revoked, _ := d.IsRevoked(ctx, "b"); !revoked {
		t.Error("Expected b to be revoked")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, 1.0/3600)
	r := gin.New()
	r.Use(RateLimitMiddleware(rl))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = w.Code
		if i == 0 && w.Header().Get("X-RateLimit-Remaining") != "1" {
			t.Errorf("Expected remaining 1, got %q", w.Header().Get("X-RateLimit-Remaining"))
		}
		if i == 2 && w.Header().Get("Retry-After") == "" {
			t.Error("Expected Retry-After on the rejected request")
		}
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Unexpected status codes %v", codes)
	}
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(BreakerOptions{FailureThreshold: 2, SuccessThreshold: 1, Cooldown: 20 * time.Millisecond})
	var transitions []string
	cb.OnStateChange = func(from, to CircuitState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}

	cb.RecordFailure()
	if !cb.Allow() {
		t.Fatal("Expected closed circuit after one failure")
	}
	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("Expected open circuit after threshold")
	}
	time.Sleep(30 * time.Millisecond)
	if !cb.Allow() || cb.State() != CircuitHalfOpen {
		t.Fatal("Expected half-open after timeout")
	}
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("Expected closed after success, got %s", cb.State())
	}
	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("Expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreakerSingleProbe(t *testing.T) {
	cb := NewCircuitBreaker(BreakerOptions{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: 10 * time.Millisecond})
	cb.RecordFailure()
	if cb.RetryIn() <= 0 {
		t.Fatal("Expected a retry delay while open")
	}
	time.Sleep(20 * time.Millisecond)
	if cb.RetryIn() != 0 {
		t.Error("Expected no retry delay after the cooldown")
	}
	if !cb.Allow() {
		t.Fatal("Expected the first caller to probe")
	}
	if cb.Allow() {
		t.Error("Expected a second caller to be rejected while the probe is in flight")
	}
	cb.RecordSuccess()
	if cb.State() != CircuitHalfOpen || !cb.Allow() {
		t.Fatalf("Expected another probe after one success, state %s", cb.State())
	}
	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Errorf("Expected a failed probe to reopen the circuit, got %s", cb.State())
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:8501"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:8501")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:8501" {
		t.Errorf("Expected preflight to pass, got %d %v", w.Code, w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Expected unknown origin to get no CORS headers")
	}
}
