package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"docqa/internal/domain"
	"docqa/internal/retrieval"
	"docqa/internal/service"
)

// Backend is the part of the service the HTTP API exposes.
type Backend interface {
	Ingest(ctx context.Context, name string, content []byte) (service.IngestResult, error)
	Query(ctx context.Context, req service.QueryRequest) (service.QueryResult, error)
	Documents(ctx context.Context) ([]domain.DocumentStat, int, error)
	DeleteDocument(ctx context.Context, name string) (int, error)
	Health(ctx context.Context) service.Health
}

type handlers struct {
	backend        Backend
	maxUploadBytes int64
}

type uploadResponse struct {
	Message string `json:"message"`
	service.IngestResult
}

type documentsResponse struct {
	Documents   []domain.DocumentStat `json:"documents"`
	TotalChunks int                   `json:"total_chunks"`
}

type deleteResponse struct {
	Message       string `json:"message"`
	DocumentName  string `json:"document_name"`
	ChunksDeleted int    `json:"chunks_deleted"`
}

type queryRequest struct {
	Question       string `json:"question"`
	TopK           *int   `json:"top_k"`
	FilterDocument string `json:"filter_document"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.backend.Health(c.Request.Context()))
}

func (h *handlers) upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorBody{Detail: fmt.Sprintf("file exceeds %d bytes", tooLarge.Limit)})
			return
		}
		abortWithError(c, fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrInvalidInput))
		return
	}
	f, err := header.Open()
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		abortWithError(c, err)
		return
	}

	res, err := h.backend.Ingest(c.Request.Context(), filepath.Base(header.Filename), content)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, uploadResponse{
		Message:      fmt.Sprintf("Successfully processed %s", res.DocumentName),
		IngestResult: res,
	})
}

func (h *handlers) listDocuments(c *gin.Context) {
	docs, total, err := h.backend.Documents(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, documentsResponse{Documents: docs, TotalChunks: total})
}

func (h *handlers) deleteDocument(c *gin.Context) {
	name := c.Param("name")
	n, err := h.backend.DeleteDocument(c.Request.Context(), name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, deleteResponse{
		Message:       fmt.Sprintf("Successfully deleted %s", name),
		DocumentName:  name,
		ChunksDeleted: n,
	})
}

func (h *handlers) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	topK := 0
	if req.TopK != nil {
		if *req.TopK < retrieval.MinTopK || *req.TopK > retrieval.MaxTopK {
			abortWithError(c, fmt.Errorf("%w: top_k must be between %d and %d", domain.ErrInvalidInput, retrieval.MinTopK, retrieval.MaxTopK))
			return
		}
		topK = *req.TopK
	}

	res, err := h.backend.Query(c.Request.Context(), service.QueryRequest{
		Question:       req.Question,
		TopK:           topK,
		FilterDocument: req.FilterDocument,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
