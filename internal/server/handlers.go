package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/piwi3910/SlabNest/internal/engine"
	"github.com/piwi3910/SlabNest/internal/export"
	"github.com/piwi3910/SlabNest/internal/importer"
	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/piwi3910/SlabNest/internal/nesting"
	"github.com/piwi3910/SlabNest/internal/store"
)

// exportRequest renders an existing layout without re-running the optimizer.
type exportRequest struct {
	Format string              `json:"format"`
	Layout model.NestingResult `json:"layout"`
	Parts  []model.Part        `json:"parts"`
}

type compareRequest struct {
	Parts     []model.Part                `json:"parts"`
	Config    model.NestingConfig         `json:"config"`
	Scenarios []engine.ComparisonScenario `json:"scenarios"`
}

type statusResponse struct {
	Version string               `json:"version"`
	Uptime  string               `json:"uptime"`
	Pool    nesting.PoolStats    `json:"pool"`
	Jobs    map[store.Status]int `json:"jobs,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Pool:    s.pool.Stats(),
	}
	if s.jobs != nil {
		counts, err := s.jobs.Counts()
		if err != nil {
			writeError(c, fmt.Errorf("reading job counts: %w", err))
			return
		}
		resp.Jobs = counts
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleNest(c *gin.Context) {
	var req nesting.Request
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		r, ok := s.multipartRequest(c)
		if !ok {
			return
		}
		req = r
	} else if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}

	result, err := s.pool.Nest(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// multipartRequest builds a nest request from uploaded outline files and an
// optional "config" JSON field.
func (s *Server) multipartRequest(c *gin.Context) (nesting.Request, bool) {
	var req nesting.Request
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"kind":    nesting.KindInvalidPart,
				"field":   "files",
				"message": fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes),
			})
			return req, false
		}
		writeError(c, badRequest(err))
		return req, false
	}

	if raw := form.Value["config"]; len(raw) > 0 && strings.TrimSpace(raw[0]) != "" {
		if err := json.Unmarshal([]byte(raw[0]), &req.Config); err != nil {
			writeError(c, &nesting.Error{Kind: nesting.KindInvalidConfig, Field: "config", Message: "invalid JSON", Err: err})
			return req, false
		}
	}

	files := append([]*multipart.FileHeader{}, form.File["files"]...)
	files = append(files, form.File["files[]"]...)
	if len(files) == 0 {
		writeError(c, &nesting.Error{Kind: nesting.KindInvalidPart, Field: "files", Message: "no files uploaded"})
		return req, false
	}

	var imported importer.ImportResult
	for _, fh := range files {
		data, err := readUpload(fh)
		if err != nil {
			writeError(c, badRequest(err))
			return req, false
		}
		imported.Merge(fh.Filename, importer.ImportData(fh.Filename, data))
	}
	for _, w := range imported.Warnings {
		log.Warn("import warning", "detail", w)
	}
	if imported.Failed() {
		writeError(c, &nesting.Error{Kind: nesting.KindInvalidPart, Field: "files", Message: strings.Join(imported.Errors, "; ")})
		return req, false
	}
	req.Parts = imported.Parts
	return req, true
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleExport(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": "InvalidExport", "field": "format", "message": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, export.Job{Result: req.Layout, Parts: req.Parts}); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": "InvalidExport", "message": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.FileName()))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (s *Server) handleCompare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	scenarios := req.Scenarios
	if len(scenarios) == 0 {
		scenarios = engine.BuildDefaultScenarios(s.svc.Resolve(req.Config))
	}

	ctx := c.Request.Context()
	if s.cfg.CompareTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CompareTimeout)
		defer cancel()
	}

	results, err := s.svc.Compare(ctx, req.Parts, scenarios)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleJobs(c *gin.Context) {
	if s.jobs == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []store.Job{}})
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"kind": "InvalidQuery", "field": "limit", "message": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	jobs, err := s.jobs.Recent(limit)
	if err != nil {
		writeError(c, fmt.Errorf("listing jobs: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) handleJob(c *gin.Context) {
	id := c.Param("id")
	if s.jobs == nil {
		c.JSON(http.StatusNotFound, gin.H{"kind": "NotFound", "message": "job history is disabled"})
		return
	}
	job, err := s.jobs.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"kind": "NotFound", "message": fmt.Sprintf("job %s not found", id)})
		return
	}
	if err != nil {
		writeError(c, fmt.Errorf("reading job %s: %w", id, err))
		return
	}
	c.JSON(http.StatusOK, job)
}

func badRequest(err error) error {
	return &nesting.Error{Kind: nesting.KindInvalidConfig, Message: "malformed request body", Err: err}
}

// statusFor maps a nesting error kind to an HTTP status.
func statusFor(kind nesting.Kind) int {
	switch kind {
	case nesting.KindInvalidConfig, nesting.KindInvalidPart:
		return http.StatusBadRequest
	case nesting.KindPartTooLarge:
		return http.StatusUnprocessableEntity
	case nesting.KindBusy:
		return http.StatusServiceUnavailable
	case nesting.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {kind, partId, field, message}.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, nesting.ErrPoolClosed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"kind": nesting.KindBusy, "message": err.Error()})
		return
	}
	ne, ok := nesting.AsError(err)
	if !ok {
		log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "Internal", "message": err.Error()})
		return
	}
	body := *ne
	if ne.Err != nil {
		body.Message = ne.Message + ": " + ne.Err.Error()
	}
	c.JSON(statusFor(ne.Kind), body)
}
