package server

import (
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/docqa/internal/pipeline"
	"github.com/mohammad-safakhou/docqa/internal/store"
	"github.com/mohammad-safakhou/docqa/internal/uploads"
)

// UploadHandler accepts a multipart document, stores it and runs it through
// the ingestion pipeline synchronously.
type UploadHandler struct {
	Uploads  *uploads.Storage
	Store    *store.Store
	Pipeline *pipeline.Pipeline
}

func (h *UploadHandler) Register(e *echo.Echo) {
	e.POST("/upload", h.upload)
}

func (h *UploadHandler) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	// validation runs before anything touches disk or the index
	if err := h.Uploads.Validate(fh.Filename, fh.Size); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot read upload")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot read upload")
	}

	fileID, _, err := h.Uploads.Save(fh.Filename, data)
	if err != nil {
		if errors.Is(err, uploads.ErrFileTooLarge) || errors.Is(err, uploads.ErrExtensionNotAllowed) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	ctx := c.Request().Context()
	if h.Store != nil {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if err := h.Store.CreateDocument(ctx, fileID, fh.Filename, ext, int64(len(data))); err != nil {
			log.Printf("[HTTP] register document %s: %v", fileID, err)
		}
	}

	if err := h.Pipeline.Ingest(ctx, fileID, fh.Filename, data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// filename echoes what the client sent; the uuid-based name is internal
	return c.JSON(http.StatusOK, map[string]string{
		"message":  "File uploaded successfully",
		"file_id":  fileID,
		"filename": fh.Filename,
	})
}
