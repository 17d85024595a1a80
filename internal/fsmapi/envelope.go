// Package fsmapi exposes the FSM engine and replay service over HTTP using
// gin, implementing the perform/can/dry-run/eligible/history/replay/validate/
// statistics/timeline/time-analysis surface of §6.6 (definitions are
// registered in-process at startup; there is no register endpoint).
// Grounded on the teacher's cmd/main.go router
// wiring and internal/handlers response-envelope conventions.
package fsmapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the uniform response shape of §6.6:
// {success, data, message, error?, details?}.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

func ok(c *gin.Context, status int, data any, message string) {
	c.JSON(status, Envelope{Success: true, Data: data, Message: message})
}

func fail(c *gin.Context, status int, message string, err error) {
	env := Envelope{Success: false, Message: message}
	if err != nil {
		env.Error = err.Error()
	}
	c.JSON(status, env)
}

// requestDTO is the common shape of §6.6's request DTOs: three required
// non-empty strings identifying the host entity and its FSM column.
type requestDTO struct {
	ModelClass string `json:"modelClass" binding:"required"`
	ModelID    string `json:"modelId" binding:"required"`
	ColumnName string `json:"columnName" binding:"required"`
}

func bindRequest(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}
