package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────────────
// Response envelope
// ──────────────────────────────────────────────────────────────────────────────

// envelope is the wire shape every endpoint responds with. Data carries the
// domain payload (market summaries, trade receipts, positions, wallet rows);
// Code is a stable machine string like ERR_SLIPPAGE or ERR_WHALE_CAP that
// clients switch on without parsing the message.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Meta    *listMeta   `json:"meta,omitempty"`
}

// listMeta paginates list endpoints. HasMore saves clients a second request
// to discover the end of a market or transaction listing.
type listMeta struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

// respondSuccess writes {"success": true, "data": data} with the given status.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, envelope{Error: msg, Code: code})
}

// respondList writes a page of items with pagination meta.
func respondList(c *gin.Context, items interface{}, total, page, limit int) {
	c.JSON(http.StatusOK, envelope{
		Success: true,
		Data:    items,
		Meta: &listMeta{
			Total:   total,
			Page:    page,
			Limit:   limit,
			HasMore: page*limit < total,
		},
	})
}
