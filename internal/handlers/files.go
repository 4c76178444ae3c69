package handlers

import (
	"mime"
	"net/http"
	"path/filepath"

	"github.com/autotab/api/internal/artifact"
	"github.com/autotab/api/internal/middleware"
	"github.com/gin-gonic/gin"
)

// serveFile sends a stored artifact as an attachment, or 404 when it is gone.
func serveFile(c *gin.Context, files *artifact.Store, path, missing string) {
	f, err := files.Open(path)
	if err != nil {
		middleware.NotFound(c, missing)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		middleware.NotFound(c, missing)
		return
	}
	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, st.Size(), contentType, f, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": name}),
	})
}
