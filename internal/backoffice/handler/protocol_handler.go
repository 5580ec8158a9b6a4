package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evetabi/curvemarket/internal/repository"
)

// ProtocolHandler serves /admin/protocol endpoints. The protocol state is a
// single row: the resolution authority and the treasury account.
type ProtocolHandler struct {
	protocolRepo *repository.ProtocolRepository
}

// NewProtocolHandler creates a ProtocolHandler.
func NewProtocolHandler(protocolRepo *repository.ProtocolRepository) *ProtocolHandler {
	return &ProtocolHandler{protocolRepo: protocolRepo}
}

// Get godoc
// GET /admin/protocol
func (h *ProtocolHandler) Get(c *gin.Context) {
	state, err := h.protocolRepo.Get(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, state)
}

// SetAuthority godoc
// POST /admin/protocol/authority
// Body: {"user_id": "<uuid>"}
// Changes who may resolve markets. Admin role only (enforced in the router).
func (h *ProtocolHandler) SetAuthority(c *gin.Context) {
	id, ok := bindUserID(c)
	if !ok {
		return
	}
	if err := h.protocolRepo.SetAuthority(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"authority": id})
}

// SetTreasury godoc
// POST /admin/protocol/treasury
// Body: {"user_id": "<uuid>"}
func (h *ProtocolHandler) SetTreasury(c *gin.Context) {
	id, ok := bindUserID(c)
	if !ok {
		return
	}
	if err := h.protocolRepo.SetTreasury(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"treasury": id})
}

func bindUserID(c *gin.Context) (uuid.UUID, bool) {
	var body struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return uuid.Nil, false
	}
	id, err := uuid.Parse(body.UserID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "user_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
