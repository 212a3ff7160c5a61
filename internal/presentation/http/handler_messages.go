package http

import (
	"net/http"
	"strconv"

	"whatsam/internal/application/dto"
	"whatsam/pkg/validator"

	"github.com/gin-gonic/gin"
)

// SendMessage handles POST /api/:sessionId/send
func (h *Handler) SendMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", nil)
		return
	}
	if err := validator.Validate(req); err != nil {
		respondWithError(c, http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed", validator.ValidationErrors(err))
		return
	}

	result, err := h.messageUC.Send(c.Request.Context(), c.Param("sessionId"), &req)
	if err != nil {
		handleDomainError(c, err, h.logger)
		return
	}

	respondWithSuccess(c, http.StatusOK, result)
}

// SendBulk handles POST /api/:sessionId/send-bulk
func (h *Handler) SendBulk(c *gin.Context) {
	var req dto.BulkSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", nil)
		return
	}
	if err := validator.Validate(req); err != nil {
		respondWithError(c, http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed", validator.ValidationErrors(err))
		return
	}
	if len(req.Messages) > h.cfg.WhatsApp.BulkMaxMessages {
		respondWithError(c, http.StatusBadRequest, "VALIDATION_FAILED",
			"bulk request exceeds the message cap", map[string]string{
				"max": strconv.Itoa(h.cfg.WhatsApp.BulkMaxMessages),
			})
		return
	}

	resp := h.messageUC.SendBulk(c.Request.Context(), c.Param("sessionId"), &req)
	respondWithSuccess(c, http.StatusOK, resp)
}
