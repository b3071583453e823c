package leads

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"adecis_backend/platform/httpkit"
	"adecis_backend/platform/validator"
)

// Handler handles HTTP requests for leads.
type Handler struct {
	svc *Service
	val *validator.Validator
}

// NewHandler creates a new leads handler.
func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the lead routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/send-reply", h.SendReply)
	rg.POST("/:id/feedback", h.Feedback)
}

// mustUserID extracts the authenticated user or terminates the request.
// Routes are registered behind AuthRequired, so a miss means a wiring bug.
func mustUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := httpkit.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return uuid.UUID{}, false
	}
	return userID, true
}

func leadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return uuid.UUID{}, false
	}
	return id, true
}

// List handles GET /api/v1/leads
func (h *Handler) List(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	filter := ListFilter{
		Source: c.Query("source"),
		Label:  c.Query("label"),
		Page:   page,
	}

	result, err := h.svc.List(c.Request.Context(), userID, filter)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

// Get handles GET /api/v1/leads/:id
func (h *Handler) Get(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	id, ok := leadID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Get(c.Request.Context(), userID, id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, lead)
}

// SendReply handles POST /api/v1/leads/:id/send-reply
func (h *Handler) SendReply(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	id, ok := leadID(c)
	if !ok {
		return
	}

	result, err := h.svc.SendReply(c.Request.Context(), userID, id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

type feedbackRequest struct {
	Feedback string `json:"feedback" validate:"required,oneof=positive negative"`
}

// Feedback handles POST /api/v1/leads/:id/feedback
func (h *Handler) Feedback(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	id, ok := leadID(c)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "Invalid feedback", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "Invalid feedback", nil)
		return
	}

	if err := h.svc.RecordFeedback(c.Request.Context(), userID, id, req.Feedback); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"ok": true})
}
