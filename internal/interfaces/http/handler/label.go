package handler

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orderhub/backend/internal/application/fulfillment"
)

// maxArtifactIDs bounds the ids query of the artifact endpoint
const maxArtifactIDs = 500

// DocumentStore opens a stored label document by key
type DocumentStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// LabelHandler serves the label print queue
type LabelHandler struct {
	BaseHandler
	labels *fulfillment.LabelService
}

// NewLabelHandler creates a new LabelHandler
func NewLabelHandler(labels *fulfillment.LabelService) *LabelHandler {
	return &LabelHandler{labels: labels}
}

// Pending godoc
// @Summary      Orders whose label still needs printing
// @Tags         labels
// @Produce      json
// @Param        platform query string false "Sales channel"
// @Param        include_shipped query bool false "Also list shipped orders"
// @Router       /labels/pending [get]
func (h *LabelHandler) Pending(c *gin.Context) {
	includeShipped, err := queryBool(c, "include_shipped")
	if err != nil {
		h.BadRequest(c, "include_shipped must be a boolean")
		return
	}
	orders, err := h.labels.PendingLabels(c.Request.Context(), c.Query("platform"), includeShipped)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, orders)
}

// MarkPrinted godoc
// @Summary      Record labels as printed
// @Description  Already printed orders are reported as skipped, never as errors.
// @Tags         labels
// @Accept       json
// @Produce      json
// @Router       /labels/mark-printed [post]
func (h *LabelHandler) MarkPrinted(c *gin.Context) {
	var req fulfillment.MarkPrintedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.labels.MarkPrinted(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Artifact godoc
// @Summary      Render a label document
// @Description  Answers the document itself. Add format=json for metadata and the stored URL.
// @Tags         labels
// @Produce      application/pdf
// @Param        ids query string true "Comma-separated order IDs"
// @Param        format query string false "json"
// @Router       /labels/artifact [get]
func (h *LabelHandler) Artifact(c *gin.Context) {
	ids, err := parseIDList(c.Query("ids"))
	if err != nil {
		h.BadRequest(c, "ids must be comma-separated order ids")
		return
	}
	if len(ids) == 0 {
		h.BadRequest(c, "ids is required")
		return
	}
	if len(ids) > maxArtifactIDs {
		h.BadRequest(c, "too many ids, at most "+strconv.Itoa(maxArtifactIDs))
		return
	}

	artifact, err := h.labels.GenerateArtifact(c.Request.Context(), ids)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if c.Query("format") == "json" {
		h.Success(c, artifact)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": artifact.Filename}))
	c.Header("X-Label-Count", strconv.Itoa(artifact.LabelCount))
	if artifact.URL != "" {
		c.Header("Content-Location", artifact.URL)
	}
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

// FileHandler streams stored label documents from local storage
type FileHandler struct {
	BaseHandler
	store DocumentStore
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(store DocumentStore) *FileHandler {
	return &FileHandler{store: store}
}

// Serve godoc
// @Summary      Download a stored label document
// @Tags         labels
// @Produce      application/pdf
// @Param        path path string true "Document key"
// @Router       /labels/files/{path} [get]
func (h *FileHandler) Serve(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("path"), "/")
	if key == "" || strings.Contains(key, "..") {
		h.BadRequest(c, "invalid document path")
		return
	}

	file, err := h.store.Get(c.Request.Context(), key)
	if err != nil {
		h.NotFound(c, "document not found")
		return
	}
	defer file.Close()

	contentType := "application/octet-stream"
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		contentType = "application/pdf"
	case ".html":
		contentType = "text/html; charset=utf-8"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": path.Base(key)}))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}
