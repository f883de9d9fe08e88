package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/job-collector/internal/api/dto"
	"github.com/cuongbtq/job-collector/internal/worker/domain"
	"github.com/cuongbtq/job-collector/internal/worker/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Analyze handles POST /analyze and POST /api/v1/jobs
// Accepts a PDF or a list of screenshots and queues a collection job
func (h *JobHandler) Analyze(c *gin.Context) {
	h.submit(c, true)
}

// AnalyzeImages handles POST /analyze_images
// Same as Analyze but only screenshots are read
func (h *JobHandler) AnalyzeImages(c *gin.Context) {
	h.submit(c, false)
}

func (h *JobHandler) submit(c *gin.Context, allowPDF bool) {
	var req dto.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, http.StatusRequestEntityTooLarge, dto.ErrorTypeInvalidRequest,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.logger.Warn("Invalid request body", slog.Any("error", err))
		h.respondError(c, http.StatusBadRequest, dto.ErrorTypeInvalidRequest, "invalid request body")
		return
	}
	if !allowPDF {
		req.PDF = ""
	}

	if !domain.ValidMode(req.Mode) {
		h.respondError(c, http.StatusBadRequest, dto.ErrorTypeInvalidRequest,
			fmt.Sprintf("mode must be %q or %q", domain.ModeSingle, domain.ModeSequential))
		return
	}

	payload, err := decodePayload(&req)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, dto.ErrorTypeInputMissing, err.Error())
		return
	}

	job, err := h.submitter.Submit(c.Request.Context(), payload, req.Mode)
	switch {
	case errors.Is(err, domain.ErrInputMissing), errors.Is(err, domain.ErrAmbiguousInput):
		h.respondError(c, http.StatusBadRequest, dto.ErrorTypeInputMissing, inputMessage(err))
		return
	case errors.Is(err, domain.ErrQueueFull):
		h.respondError(c, http.StatusServiceUnavailable, dto.ErrorTypeQueueFull, "job queue is full, try again later")
		return
	case err != nil:
		h.logger.Error("Failed to submit job", slog.Any("error", err))
		h.respondError(c, http.StatusInternalServerError, dto.ErrorTypeInternal, "failed to submit job")
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitResponse{
		Status: dto.StatusQueued,
		JobID:  job.JobID,
	})
}

// decodePayload turns base64 fields into a document payload
func decodePayload(req *dto.AnalyzeRequest) (*domain.DocumentPayload, error) {
	payload := &domain.DocumentPayload{URL: strings.TrimSpace(req.URL)}
	if req.Metadata != nil {
		payload.Hints = *req.Metadata
	}

	if req.PDF != "" {
		pdf, err := decodeBase64(req.PDF)
		if err != nil {
			return nil, fmt.Errorf("pdf is not valid base64: %w", err)
		}
		payload.PDF = pdf
	}

	encoded := req.Images
	if req.Image != "" {
		encoded = append([]string{req.Image}, encoded...)
	}
	for i, s := range encoded {
		if strings.TrimSpace(s) == "" {
			continue
		}
		img, err := decodeBase64(s)
		if err != nil {
			return nil, fmt.Errorf("image %d is not valid base64: %w", i, err)
		}
		payload.Images = append(payload.Images, img)
	}

	return payload, nil
}

// decodeBase64 accepts padded or unpadded standard encoding, with or without a data URL prefix
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if _, rest, ok := strings.Cut(s, ","); ok {
			s = rest
		}
	}
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func inputMessage(err error) string {
	if errors.Is(err, domain.ErrAmbiguousInput) {
		return "send either pdf or images, not both"
	}
	return "no pdf or images provided"
}

func (h *JobHandler) respondError(c *gin.Context, status int, errorType, message string) {
	c.JSON(status, dto.ErrorResponse{
		Status:    dto.StatusError,
		ErrorType: errorType,
		Message:   message,
	})
}

// GetJobStatus handles GET /status/:job_id and GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJobStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.registry.Get(c.Request.Context(), jobID)
	if errors.Is(err, storage.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, toStatusResponse(job))
}

func toStatusResponse(job *domain.Job) dto.StatusResponse {
	resp := dto.StatusResponse{Status: publicStatus(job.Status)}
	switch job.Status {
	case domain.JobStatusSucceeded:
		resp.Data = job.Result
		resp.File = job.ResultFile
	case domain.JobStatusFailed:
		if job.Error != nil {
			resp.ErrorType = string(job.Error.Kind)
			resp.Message = job.Error.Message
			resp.Detail = job.Error.Detail
			resp.Artifact = job.Error.Artifact
		}
	}
	return resp
}

var publicStatuses = map[string]string{
	domain.JobStatusQueued:     dto.StatusQueued,
	domain.JobStatusProcessing: dto.StatusProcessing,
	domain.JobStatusSucceeded:  dto.StatusSuccess,
	domain.JobStatusFailed:     dto.StatusError,
}

func publicStatus(status string) string {
	if s, ok := publicStatuses[status]; ok {
		return s
	}
	return strings.ToLower(status)
}

// registryStatus maps a status filter in either form to the stored value
func registryStatus(status string) (string, bool) {
	if status == "" {
		return "", true
	}
	for stored, public := range publicStatuses {
		if strings.EqualFold(status, stored) || strings.EqualFold(status, public) {
			return stored, true
		}
	}
	return "", false
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with keyset pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	status, ok := registryStatus(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	jobs, err := h.registry.List(c.Request.Context(), storage.JobFilter{
		Status:   status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i, job := range jobs {
		item := dto.JobDTO{
			JobID:     job.JobID,
			Status:    publicStatus(job.Status),
			Mode:      job.Mode,
			InputKind: job.InputKind,
			URL:       job.SourceURL,
			File:      job.ResultFile,
			CreatedAt: job.CreatedAt.Format(time.RFC3339),
			UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
		}
		if job.Error != nil {
			item.ErrorType = string(job.Error.Kind)
		}
		resp.Jobs[i] = item
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, resp)
}
