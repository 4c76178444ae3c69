package frontend

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/autotab/api/internal/middleware"
	"github.com/autotab/api/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const flashCookie = "autotab_flash"

// Server is the login-gated upload UI. It keeps no state of its own: the
// API session token lives in the browser's session cookie.
type Server struct {
	api           *Client
	secureCookies bool
	sessionTTL    time.Duration
	logger        *zap.Logger
}

func NewServer(api *Client, secureCookies bool, sessionTTL time.Duration, logger *zap.Logger) *Server {
	return &Server{api: api, secureCookies: secureCookies, sessionTTL: sessionTTL, logger: logger}
}

// Router builds the gin engine serving the UI.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(s.logger))
	r.SetHTMLTemplate(template.Must(template.New("").ParseFS(templateFS, "templates/*.html")))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "autotab-frontend", "api_circuit": s.api.Breaker().State().String()})
	})
	r.GET("/login", s.loginPage)
	r.POST("/login", s.login)
	r.GET("/register", s.registerPage)
	r.POST("/register", s.register)
	r.GET("/logout", s.logout)

	authed := r.Group("")
	authed.Use(s.requireSession)
	authed.GET("/", s.index)
	authed.POST("/", middleware.CircuitBreakerMiddleware(s.api.Breaker()), s.upload)
	authed.GET("/download/:id", s.download)
	return r
}

type page struct {
	Title      string
	User       string
	Flash      string
	FlashError bool
	Register   bool
	Models     []models.ModelRecord
}

func (s *Server) render(c *gin.Context, status int, name string, p page) {
	p.Flash, p.FlashError = s.takeFlash(c)
	c.HTML(status, name, p)
}

func (s *Server) loginPage(c *gin.Context) {
	s.render(c, http.StatusOK, "login.html", page{Title: "Log in"})
}

func (s *Server) registerPage(c *gin.Context) {
	s.render(c, http.StatusOK, "login.html", page{Title: "Register", Register: true})
}

func (s *Server) login(c *gin.Context) {
	token, err := s.api.Login(c.Request.Context(), c.PostForm("username"), c.PostForm("password"))
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			err = errors.New("incorrect username or password")
		}
		s.redirectWithError(c, "/login", err)
		return
	}
	s.setSession(c, token)
	s.flash(c, "Logged in successfully.", false)
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) register(c *gin.Context) {
	token, err := s.api.Register(c.Request.Context(), c.PostForm("username"), c.PostForm("password"))
	if err != nil {
		s.redirectWithError(c, "/register", err)
		return
	}
	s.setSession(c, token)
	s.flash(c, "Account created.", false)
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) logout(c *gin.Context) {
	if token := middleware.BearerToken(c); token != "" {
		if err := s.api.Logout(c.Request.Context(), token); err != nil && !errors.Is(err, ErrUnauthorized) {
			s.logger.Warn("logout failed", zap.Error(err))
		}
	}
	s.clearSession(c)
	s.flash(c, "You have been logged out.", false)
	c.Redirect(http.StatusSeeOther, "/login")
}

func (s *Server) requireSession(c *gin.Context) {
	token, err := c.Cookie(middleware.SessionCookie)
	if err != nil || token == "" {
		s.flash(c, "Please log in first.", true)
		c.Redirect(http.StatusSeeOther, "/login")
		c.Abort()
		return
	}
	c.Set("token", token)
	c.Next()
}

func (s *Server) index(c *gin.Context) {
	token := c.GetString("token")
	user, err := s.api.Me(c.Request.Context(), token)
	if err == nil {
		var list []models.ModelRecord
		if list, err = s.api.Models(c.Request.Context(), token); err == nil {
			s.render(c, http.StatusOK, "index.html", page{Title: "Models", User: user.Username, Models: list})
			return
		}
	}
	if errors.Is(err, ErrUnauthorized) {
		s.handleAPIError(c, err)
		return
	}
	// redirecting to / would loop, so the error is rendered in place
	s.logger.Warn("failed to load models", zap.Error(err))
	p := page{Title: "Models"}
	p.Flash, p.FlashError = err.Error(), true
	c.HTML(http.StatusBadGateway, "index.html", p)
}

func (s *Server) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil || fh.Filename == "" {
		s.redirectWithError(c, "/", errors.New("no file selected"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.redirectWithError(c, "/", err)
		return
	}
	defer f.Close()

	res, err := s.api.Upload(c.Request.Context(), c.GetString("token"), fh.Filename, f)
	if err != nil {
		s.handleAPIError(c, err)
		return
	}
	msg := "File uploaded and model trained successfully."
	if res.Model != nil {
		msg = "Model trained on " + res.Model.Name + ": " + res.Model.Algorithm + " (" + res.Model.Metric + " " + formatScore(res.Model.Score) + ")."
	}
	s.flash(c, msg, false)
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) download(c *gin.Context) {
	file := c.DefaultQuery("file", "model")
	resp, err := s.api.Download(c.Request.Context(), c.GetString("token"), c.Param("id"), file)
	if err != nil {
		s.handleAPIError(c, err)
		return
	}
	defer resp.Body.Close()

	headers := map[string]string{}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		headers["Content-Disposition"] = cd
	}
	c.DataFromReader(http.StatusOK, resp.ContentLength, resp.Header.Get("Content-Type"), resp.Body, headers)
}

func (s *Server) handleAPIError(c *gin.Context, err error) {
	if errors.Is(err, ErrUnauthorized) {
		s.clearSession(c)
		s.redirectWithError(c, "/login", err)
		return
	}
	if !errors.Is(err, ErrUnavailable) {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status >= 500 {
			s.logger.Error("api call failed", zap.Error(err))
		}
	}
	s.redirectWithError(c, "/", err)
}

func (s *Server) redirectWithError(c *gin.Context, to string, err error) {
	s.flash(c, err.Error(), true)
	c.Redirect(http.StatusSeeOther, to)
	c.Abort()
}

func (s *Server) setSession(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(s.sessionTTL.Seconds()), "/", "", s.secureCookies, true)
}

func (s *Server) clearSession(c *gin.Context) {
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", s.secureCookies, true)
}

// flash stores a one-shot message shown on the next rendered page. Error
// messages are prefixed with "!".
func (s *Server) flash(c *gin.Context, msg string, isError bool) {
	if isError {
		msg = "!" + msg
	}
	c.SetCookie(flashCookie, msg, 60, "/", "", s.secureCookies, true)
}

func (s *Server) takeFlash(c *gin.Context) (string, bool) {
	raw, err := c.Cookie(flashCookie)
	if err != nil || raw == "" {
		return "", false
	}
	c.SetCookie(flashCookie, "", -1, "/", "", s.secureCookies, true)
	if msg, ok := strings.CutPrefix(raw, "!"); ok {
		return msg, true
	}
	return raw, false
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
