package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Jabarteley/academic-staff-service-request/internal/dto"
	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	"github.com/Jabarteley/academic-staff-service-request/internal/service"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
	"github.com/Jabarteley/academic-staff-service-request/pkg/response"
)

// RequestHandler exposes service-request endpoints: CRUD-ish reads plus the
// workflow transitions.
type RequestHandler struct {
	workflow *service.WorkflowService
	requests *service.RequestService
}

// NewRequestHandler constructs RequestHandler.
func NewRequestHandler(workflow *service.WorkflowService, requests *service.RequestService) *RequestHandler {
	return &RequestHandler{workflow: workflow, requests: requests}
}

// Create godoc
// @Summary Create request
// @Description Create a service request; routed immediately unless draft=true
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequestRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.workflow.CreateRequest(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary List requests
// @Description List requests visible to the caller
// @Tags Requests
// @Produce json
// @Param status query string false "Filter by status"
// @Param type query string false "Filter by request type"
// @Param assigned query bool false "Only requests awaiting the caller's decision"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.RequestFilter
	if status := c.Query("status"); status != "" {
		s := models.RequestStatus(status)
		filter.Status = &s
	}
	if requestType := c.Query("type"); requestType != "" {
		t := models.RequestType(requestType)
		filter.RequestType = &t
	}
	if c.Query("assigned") == "true" {
		filter.ApproverID = claims.UserID
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	requests, total, err := h.requests.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Get request detail
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	request, err := h.requests.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Timeline godoc
// @Summary Get request timeline
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/timeline [get]
func (h *RequestHandler) Timeline(c *gin.Context) {
	entries, err := h.requests.Timeline(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Submit godoc
// @Summary Submit draft
// @Description Route a saved draft into its approval chain
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /requests/{id}/submit [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	request, err := h.workflow.SubmitDraft(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Action godoc
// @Summary Act on request
// @Description Approve, reject or request modification as the current approver
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ActionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/action [post]
func (h *RequestHandler) Action(c *gin.Context) {
	var req dto.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.workflow.ApplyAction(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Resubmit godoc
// @Summary Resubmit request
// @Description Amend a bounced request and restart its approval chain
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ResubmitRequest true "Amended content"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/resubmit [post]
func (h *RequestHandler) Resubmit(c *gin.Context) {
	var req dto.ResubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.workflow.Resubmit(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Cancel godoc
// @Summary Cancel request
// @Description Withdraw a non-terminal request as its requestor
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CommentRequest false "Optional comment"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/cancel [post]
func (h *RequestHandler) Cancel(c *gin.Context) {
	var req dto.CommentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	request, err := h.workflow.Cancel(c.Request.Context(), c.Param("id"), req.Comment, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Complete godoc
// @Summary Complete request
// @Description Mark an approved request as fulfilled
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CommentRequest false "Optional comment"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/complete [post]
func (h *RequestHandler) Complete(c *gin.Context) {
	var req dto.CommentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	request, err := h.workflow.Complete(c.Request.Context(), c.Param("id"), req.Comment, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
