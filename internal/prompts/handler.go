package prompts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"classroom-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the prompt template service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches template routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/prompt-templates", h.createTemplate)
	rg.GET("/prompt-templates/:name/active", h.getActive)
	rg.PATCH("/prompt-templates/:name/:version/status", h.setStatus)
}

type createTemplateRequest struct {
	Name           string         `json:"name" binding:"required"`
	Version        int            `json:"version" binding:"required"`
	Body           string         `json:"body" binding:"required"`
	DefaultOptions map[string]any `json:"defaultOptions"`
	Active         bool           `json:"active"`
	ABTesting      bool           `json:"abTesting"`
}

func (h *Handler) createTemplate(c *gin.Context) {
	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "name, version, and body are required", nil)
		return
	}

	tmpl := PromptTemplate{
		Name:           req.Name,
		Version:        req.Version,
		Body:           req.Body,
		DefaultOptions: req.DefaultOptions,
		Active:         req.Active,
		ABTesting:      req.ABTesting,
	}
	if err := h.Svc.Create(c.Request.Context(), tmpl); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyExists):
			respond.Error(c, http.StatusConflict, "already_exists", "template version already exists", nil)
		default:
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		}
		return
	}
	respond.Created(c, gin.H{"name": tmpl.Name, "version": tmpl.Version})
}

func (h *Handler) getActive(c *gin.Context) {
	name := c.Param("name")
	tmpl, err := h.Svc.GetActive(c.Request.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "no active template version", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch template", nil)
		}
		return
	}
	respond.OK(c, tmpl)
}

type setStatusRequest struct {
	Active    *bool `json:"active"`
	ABTesting *bool `json:"abTesting"`
}

func (h *Handler) setStatus(c *gin.Context) {
	name := c.Param("name")
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version <= 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "version must be a positive integer", nil)
		return
	}

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid status payload", nil)
		return
	}
	if req.Active == nil && req.ABTesting == nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "at least one of active or abTesting is required", nil)
		return
	}

	update := StatusUpdate{Active: req.Active, ABTesting: req.ABTesting}
	if err := h.Svc.SetStatus(c.Request.Context(), name, version, update); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "template version not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to update template status", nil)
		}
		return
	}
	respond.OK(c, gin.H{"name": name, "version": version})
}
