package server

import (
	"net/http"
	"strings"
	"time"

	auditdomain "github.com/billfold/billfold/internal/audit/domain"
	authdomain "github.com/billfold/billfold/internal/auth/domain"
	"github.com/gin-gonic/gin"
)

type setUserStatusRequest struct {
	Status authdomain.UserStatus `json:"status"`
}

func (s *Server) GetUserByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, err := s.authSvc.GetUser(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) SetUserStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authSvc.SetStatus(c.Request.Context(), id, req.Status); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "user.status_updated", "user", id.String(), map[string]any{"status": string(req.Status)})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	req := auditdomain.ListRequest{
		Action:     strings.TrimSpace(c.Query("action")),
		TargetType: strings.TrimSpace(c.Query("target_type")),
		TargetID:   strings.TrimSpace(c.Query("target_id")),
		Limit:      queryLimit(c),
	}

	if raw := strings.TrimSpace(c.Query("start_at")); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("start_at", "invalid_time", "invalid time"))
			return
		}
		req.StartAt = &at
	}
	if raw := strings.TrimSpace(c.Query("end_at")); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("end_at", "invalid_time", "invalid time"))
			return
		}
		req.EndAt = &at
	}

	logs, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}
