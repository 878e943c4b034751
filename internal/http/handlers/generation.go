package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/surveylab/codeframe-backend/internal/coding/hierarchy"
	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/http/response"
	"github.com/surveylab/codeframe-backend/internal/services"
)

type GenerationHandler struct {
	generations services.GenerationService
}

func NewGenerationHandler(generations services.GenerationService) *GenerationHandler {
	return &GenerationHandler{generations: generations}
}

type startGenerationRequest struct {
	CategoryID   string  `json:"category_id" binding:"required"`
	RequestedBy  string  `json:"requested_by" binding:"required"`
	CodingType   string  `json:"coding_type"`
	CategoryName string  `json:"category_name"`
	MinCluster   int     `json:"min_cluster_size"`
	MinSamples   int     `json:"min_samples"`
	Model        string  `json:"model"`
	AutoThresh   float64 `json:"auto_threshold"`
}

// POST /api/v1/generations
func (h *GenerationHandler) Start(c *gin.Context) {
	var req startGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_category_id", err)
		return
	}
	requestedBy, err := uuid.Parse(req.RequestedBy)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_requested_by", err)
		return
	}

	out, err := h.generations.StartGeneration(c.Request.Context(), services.StartGenerationInput{
		CategoryID:  categoryID,
		RequestedBy: requestedBy,
		CodingType:  req.CodingType,
		Config: types.GenerationConfig{
			MinClusterSize: req.MinCluster,
			MinSamples:     req.MinSamples,
			Model:          req.Model,
			AutoThreshold:  req.AutoThresh,
			CategoryName:   req.CategoryName,
		},
	})
	if err != nil {
		response.RespondServiceError(c, "start_generation_failed", err)
		return
	}
	response.RespondAccepted(c, out)
}

// GET /api/v1/generations/:id
func (h *GenerationHandler) GetStatus(c *gin.Context) {
	generationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_generation_id", err)
		return
	}
	status, err := h.generations.GetStatus(c.Request.Context(), generationID)
	if err != nil {
		response.RespondServiceError(c, "generation_not_found", err)
		return
	}
	response.RespondOK(c, status)
}

// POST /api/v1/generations/:id/apply
func (h *GenerationHandler) Apply(c *gin.Context) {
	generationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_generation_id", err)
		return
	}
	outcome, err := h.generations.ApplyCodeframe(c.Request.Context(), generationID)
	if err != nil {
		response.RespondServiceError(c, "apply_codeframe_failed", err)
		return
	}
	response.RespondOK(c, outcome)
}

type hierarchyEditRequest struct {
	Action      string `json:"action" binding:"required"`
	NodeID      string `json:"node_id"`
	ParentID    string `json:"parent_id"`
	NewParentID string `json:"new_parent_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PATCH /api/v1/generations/:id/hierarchy
func (h *GenerationHandler) EditHierarchy(c *gin.Context) {
	generationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_generation_id", err)
		return
	}
	var req hierarchyEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	params := hierarchy.EditParams{
		Name:        req.Name,
		Description: req.Description,
	}
	// IDs are optional per action; each action validates what it needs.
	params.NodeID, _ = uuid.Parse(req.NodeID)
	params.ParentID, _ = uuid.Parse(req.ParentID)
	params.NewParentID, _ = uuid.Parse(req.NewParentID)

	if err := h.generations.UpdateHierarchy(c.Request.Context(), generationID, req.Action, params); err != nil {
		response.RespondServiceError(c, "hierarchy_edit_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"updated": true})
}
