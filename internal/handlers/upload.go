package handlers

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/autotab/api/internal/dataset"
	"github.com/autotab/api/internal/middleware"
	"github.com/gin-gonic/gin"
)

const uploadField = "file"

// readUpload parses the multipart "file" field as CSV. On failure the error
// response has been written and ok is false.
func readUpload(c *gin.Context, maxBytes int64) (ds *dataset.Dataset, name string, ok bool) {
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	}
	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.RespondError(c, http.StatusRequestEntityTooLarge, middleware.ErrCodeTooLarge, "uploaded file is too large")
			return nil, "", false
		}
		middleware.BadRequest(c, "no file uploaded: send a CSV in the multipart field \"file\"")
		return nil, "", false
	}
	if fh.Size == 0 {
		middleware.BadRequest(c, "uploaded file is empty")
		return nil, "", false
	}

	f, err := fh.Open()
	if err != nil {
		middleware.BadRequest(c, "could not read uploaded file")
		return nil, "", false
	}
	defer f.Close()

	ds, err = dataset.ReadCSV(f, dataset.Options{})
	if err != nil {
		middleware.RespondErrorWithDetails(c, http.StatusBadRequest, middleware.ErrCodeBadRequest,
			"could not parse uploaded file as CSV", err.Error())
		return nil, "", false
	}
	name = filepath.Base(fh.Filename)
	ds.Name = name
	return ds, name, true
}
