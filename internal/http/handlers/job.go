package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/surveylab/codeframe-backend/internal/http/response"
	"github.com/surveylab/codeframe-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		response.RespondServiceError(c, "job_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /api/v1/generations/:id/jobs
func (h *JobHandler) ListGenerationJobs(c *gin.Context) {
	generationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_generation_id", err)
		return
	}
	jobs, err := h.jobs.GetByEntity(c.Request.Context(), "generation", generationID)
	if err != nil {
		response.RespondServiceError(c, "list_jobs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}

// POST /api/v1/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.Cancel(c.Request.Context(), jobID)
	if err != nil {
		response.RespondServiceError(c, "cancel_job_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
