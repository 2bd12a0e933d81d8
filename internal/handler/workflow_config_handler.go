package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Jabarteley/academic-staff-service-request/internal/dto"
	"github.com/Jabarteley/academic-staff-service-request/internal/service"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
	"github.com/Jabarteley/academic-staff-service-request/pkg/response"
)

// WorkflowConfigHandler exposes approval-chain administration endpoints.
type WorkflowConfigHandler struct {
	configs *service.WorkflowConfigService
}

// NewWorkflowConfigHandler constructs WorkflowConfigHandler.
func NewWorkflowConfigHandler(configs *service.WorkflowConfigService) *WorkflowConfigHandler {
	return &WorkflowConfigHandler{configs: configs}
}

// List godoc
// @Summary List workflow configs
// @Tags Workflow
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /workflow-configs [get]
func (h *WorkflowConfigHandler) List(c *gin.Context) {
	configs, err := h.configs.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, configs, nil)
}

// Upsert godoc
// @Summary Upsert workflow config
// @Description Create or replace the approval chain for a request type
// @Tags Workflow
// @Accept json
// @Produce json
// @Param payload body dto.UpsertWorkflowConfigRequest true "Workflow config"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /workflow-configs [put]
func (h *WorkflowConfigHandler) Upsert(c *gin.Context) {
	var req dto.UpsertWorkflowConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cfg, err := h.configs.Upsert(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}
