package http

import (
	"net/http"

	"whatsam/internal/application/dto"
	"whatsam/internal/domain/entity"
	"whatsam/internal/infrastructure/whatsapp"
	"whatsam/pkg/validator"

	"github.com/gin-gonic/gin"
)

// StartSession handles POST /api/session/start - idempotent
// resume-or-create.
func (h *Handler) StartSession(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", nil)
		return
	}
	if err := validator.Validate(req); err != nil {
		respondWithError(c, http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed", validator.ValidationErrors(err))
		return
	}

	snap, err := h.sessionUC.Start(c.Request.Context(), req.SessionID, req.UserID, req.SessionName)
	if err != nil {
		handleDomainError(c, err, h.logger)
		return
	}

	respondWithSuccess(c, http.StatusOK, h.sessionResponse(snap))
}

// CreateSession handles POST /api/session/create - strict create, 409 on
// conflict.
func (h *Handler) CreateSession(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", nil)
		return
	}
	if err := validator.Validate(req); err != nil {
		respondWithError(c, http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed", validator.ValidationErrors(err))
		return
	}

	snap, err := h.sessionUC.CreateStrict(c.Request.Context(), req.SessionID, req.UserID, req.SessionName)
	if err != nil {
		handleDomainError(c, err, h.logger)
		return
	}

	respondWithSuccess(c, http.StatusCreated, h.sessionResponse(snap))
}

// GetSessionStatus handles GET /api/session/:id/status
func (h *Handler) GetSessionStatus(c *gin.Context) {
	snap, err := h.sessionUC.Status(c.Param("sessionId"))
	if err != nil {
		handleDomainError(c, err, h.logger)
		return
	}
	respondWithSuccess(c, http.StatusOK, h.sessionResponse(snap))
}

// GetSessionQR handles GET /api/session/:id/qr. While pairing it returns
// the challenge; 202 while initializing; a plain confirmation once
// connected.
func (h *Handler) GetSessionQR(c *gin.Context) {
	id := c.Param("sessionId")

	snap, err := h.sessionUC.Status(id)
	if err != nil {
		handleDomainError(c, err, h.logger)
		return
	}

	switch snap.Status {
	case entity.StatusConnected:
		respondWithSuccess(c, http.StatusOK, gin.H{"message": "session already connected"})
		return
	case entity.StatusInitializing:
		respondWithSuccess(c, http.StatusAccepted, gin.H{"message": "session initializing, QR not ready yet"})
		return
	}

	qr, err := h.sessionUC.QR(id)
	if err != nil {
		handleDomainError(c, err, h.logger)
		return
	}

	resp := dto.QRResponse{
		SessionID: id,
		QRCode:    qr.Code,
		Attempt:   qr.Attempt,
		ExpiresAt: qr.ExpiresAt,
	}
	if img, err := whatsapp.EncodeQRToBase64(qr.Code); err == nil {
		resp.QRImage = img
	}

	respondWithSuccess(c, http.StatusOK, resp)
}

// RestartSession handles POST /api/session/:id/restart
func (h *Handler) RestartSession(c *gin.Context) {
	if err := h.sessionUC.Restart(c.Request.Context(), c.Param("sessionId")); err != nil {
		handleDomainError(c, err, h.logger)
		return
	}
	respondWithSuccess(c, http.StatusOK, gin.H{"message": "session restarting"})
}

// DisconnectSession handles POST /api/session/:id/disconnect
func (h *Handler) DisconnectSession(c *gin.Context) {
	if err := h.sessionUC.Disconnect(c.Request.Context(), c.Param("sessionId")); err != nil {
		handleDomainError(c, err, h.logger)
		return
	}
	respondWithSuccess(c, http.StatusOK, gin.H{"message": "session disconnected"})
}

// LogoutSession handles POST /api/session/:id/logout
func (h *Handler) LogoutSession(c *gin.Context) {
	if err := h.sessionUC.Logout(c.Request.Context(), c.Param("sessionId")); err != nil {
		handleDomainError(c, err, h.logger)
		return
	}
	respondWithSuccess(c, http.StatusOK, gin.H{"message": "session logged out"})
}

// DeleteSession handles DELETE /api/session/:id
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.sessionUC.Delete(c.Request.Context(), c.Param("sessionId")); err != nil {
		handleDomainError(c, err, h.logger)
		return
	}
	respondWithSuccess(c, http.StatusOK, gin.H{"message": "session deleted"})
}

// ListSessions handles GET /api/sessions
func (h *Handler) ListSessions(c *gin.Context) {
	snaps := h.sessionUC.List()
	out := make([]dto.SessionResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, h.sessionResponse(snap))
	}
	respondWithSuccess(c, http.StatusOK, gin.H{
		"sessions":   out,
		"statistics": h.sessionUC.Statistics(),
	})
}

// sessionResponse attaches the rendered QR image while pairing.
func (h *Handler) sessionResponse(snap entity.Snapshot) dto.SessionResponse {
	resp := dto.NewSessionResponse(snap)
	if snap.QR != nil {
		if img, err := whatsapp.EncodeQRToBase64(snap.QR.Code); err == nil {
			resp.QRImage = img
		}
	}
	return resp
}
