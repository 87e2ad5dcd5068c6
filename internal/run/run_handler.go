package run

import (
	"net/http"

	"rollcall/internal/shared/apperror"
	"rollcall/internal/shared/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func writeServiceError(c *gin.Context, err error) {
	httpErr := apperror.ToHTTP(err)
	response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, httpErr.Details)
}

func (h *Handler) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpErr := apperror.ToHTTP(apperror.MapValidationError(err))
		response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, httpErr.Details)
		return
	}

	result, err := h.service.Reconcile(c.Request.Context(), req)
	if err != nil {
		httpErr := apperror.ToHTTP(err)
		// Failed runs still return the structured result so callers see the
		// invariant that was violated alongside the error envelope.
		response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, result)
		return
	}

	response.Success(c, http.StatusCreated, result, nil)
}

func (h *Handler) GetReport(c *gin.Context) {
	payload, err := h.service.GetReport(c.Request.Context(), c.Param("date"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

func (h *Handler) GetManifest(c *gin.Context) {
	payload, err := h.service.GetManifest(c.Request.Context(), c.Param("date"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}
