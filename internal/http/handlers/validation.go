package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/surveylab/codeframe-backend/internal/http/response"
	"github.com/surveylab/codeframe-backend/internal/services"
)

type ValidationHandler struct {
	validations services.ValidationService
}

func NewValidationHandler(validations services.ValidationService) *ValidationHandler {
	return &ValidationHandler{validations: validations}
}

type validateBrandRequest struct {
	Term     string `json:"term" binding:"required"`
	Category string `json:"category" binding:"required"`
}

// POST /api/v1/validations/brand
func (h *ValidationHandler) ValidateBrand(c *gin.Context) {
	var req validateBrandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := h.validations.Validate(c.Request.Context(), req.Term, req.Category)
	if err != nil {
		response.RespondServiceError(c, "validate_brand_failed", err)
		return
	}
	response.RespondOK(c, result)
}
