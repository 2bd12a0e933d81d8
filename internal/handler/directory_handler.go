package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Jabarteley/academic-staff-service-request/internal/dto"
	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	"github.com/Jabarteley/academic-staff-service-request/internal/service"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
	"github.com/Jabarteley/academic-staff-service-request/pkg/response"
)

// DirectoryHandler exposes staff directory and org-tree endpoints.
type DirectoryHandler struct {
	directory *service.DirectoryService
}

// NewDirectoryHandler constructs DirectoryHandler.
func NewDirectoryHandler(directory *service.DirectoryService) *DirectoryHandler {
	return &DirectoryHandler{directory: directory}
}

// CreateUser godoc
// @Summary Create user
// @Tags Directory
// @Accept json
// @Produce json
// @Param payload body dto.CreateUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users [post]
func (h *DirectoryHandler) CreateUser(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	user, err := h.directory.CreateUser(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// UpdateUser godoc
// @Summary Update user
// @Tags Directory
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body dto.UpdateUserRequest true "User payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [put]
func (h *DirectoryHandler) UpdateUser(c *gin.Context) {
	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	user, err := h.directory.UpdateUser(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// GetUser godoc
// @Summary Get user
// @Tags Directory
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *DirectoryHandler) GetUser(c *gin.Context) {
	user, err := h.directory.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// ListUsers godoc
// @Summary List users
// @Tags Directory
// @Produce json
// @Param role query string false "Filter by role"
// @Param departmentId query string false "Filter by department"
// @Param active query bool false "Filter by active state"
// @Param search query string false "Search by name, email or staff number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /users [get]
func (h *DirectoryHandler) ListUsers(c *gin.Context) {
	var filter models.UserFilter
	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}
	filter.DepartmentID = c.Query("departmentId")
	if active := c.Query("active"); active != "" {
		if active == "true" {
			v := true
			filter.Active = &v
		} else if active == "false" {
			v := false
			filter.Active = &v
		}
	}
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	users, total, err := h.directory.ListUsers(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// CreateFaculty godoc
// @Summary Create faculty
// @Tags Directory
// @Accept json
// @Produce json
// @Param payload body dto.CreateFacultyRequest true "Faculty payload"
// @Success 201 {object} response.Envelope
// @Router /faculties [post]
func (h *DirectoryHandler) CreateFaculty(c *gin.Context) {
	var req dto.CreateFacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	faculty, err := h.directory.CreateFaculty(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, faculty)
}

// ListFaculties godoc
// @Summary List faculties
// @Tags Directory
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /faculties [get]
func (h *DirectoryHandler) ListFaculties(c *gin.Context) {
	faculties, err := h.directory.ListFaculties(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculties, nil)
}

// AssignDean godoc
// @Summary Assign dean
// @Description Point a faculty at its dean; the assignee must hold the DEAN role
// @Tags Directory
// @Accept json
// @Produce json
// @Param id path string true "Faculty ID"
// @Param payload body dto.AssignDeanRequest true "Dean assignment"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /faculties/{id}/dean [put]
func (h *DirectoryHandler) AssignDean(c *gin.Context) {
	var req dto.AssignDeanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.directory.AssignDean(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateDepartment godoc
// @Summary Create department
// @Tags Directory
// @Accept json
// @Produce json
// @Param payload body dto.CreateDepartmentRequest true "Department payload"
// @Success 201 {object} response.Envelope
// @Router /departments [post]
func (h *DirectoryHandler) CreateDepartment(c *gin.Context) {
	var req dto.CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	department, err := h.directory.CreateDepartment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, department)
}

// ListDepartments godoc
// @Summary List departments
// @Tags Directory
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *DirectoryHandler) ListDepartments(c *gin.Context) {
	departments, err := h.directory.ListDepartments(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}

// AssignHOD godoc
// @Summary Assign head of department
// @Description Point a department at its head; the assignee must hold the ADMIN_OFFICER role
// @Tags Directory
// @Accept json
// @Produce json
// @Param id path string true "Department ID"
// @Param payload body dto.AssignHODRequest true "Head assignment"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /departments/{id}/hod [put]
func (h *DirectoryHandler) AssignHOD(c *gin.Context) {
	var req dto.AssignHODRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.directory.AssignHOD(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
