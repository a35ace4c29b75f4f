package server

import (
	"net/http"
	"strings"

	catalogdomain "github.com/billfold/billfold/internal/catalog/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListServices(c *gin.Context) {
	principal, _ := principalFrom(c)

	req := catalogdomain.ListServicesRequest{
		Category: strings.TrimSpace(c.Query("category")),
		Limit:    queryLimit(c),
	}
	// Customers only browse what is currently sellable.
	if !principal.Role.Staff() {
		req.ActiveOnly = true
	}

	services, err := s.catalogSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": services})
}

func (s *Server) GetServiceByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	svc, err := s.catalogSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": svc})
}

func (s *Server) CreateService(c *gin.Context) {
	var req catalogdomain.CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	svc, err := s.catalogSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "service.created", "service", svc.ID.String(), map[string]any{"name": svc.Name})
	c.JSON(http.StatusCreated, gin.H{"data": svc})
}

func (s *Server) UpdateService(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req catalogdomain.UpdateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	svc, err := s.catalogSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "service.updated", "service", svc.ID.String(), nil)
	c.JSON(http.StatusOK, gin.H{"data": svc})
}

func (s *Server) DeleteService(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.catalogSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "service.deleted", "service", id.String(), nil)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
