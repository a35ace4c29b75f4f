package server

import (
	"net/http"
	"strings"

	"github.com/billfold/billfold/internal/authorization"
	ticketdomain "github.com/billfold/billfold/internal/ticket/domain"
	"github.com/gin-gonic/gin"
)

type updateTicketStatusRequest struct {
	Status ticketdomain.Status `json:"status"`
}

func (s *Server) ListTickets(c *gin.Context) {
	principal, _ := principalFrom(c)

	req := ticketdomain.ListTicketsRequest{
		Status: ticketdomain.Status(strings.TrimSpace(c.Query("status"))),
		Limit:  queryLimit(c),
	}
	if !principal.Role.Staff() {
		req.CustomerID = principal.UserID
	}

	tickets, err := s.ticketSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tickets})
}

func (s *Server) GetTicketByID(c *gin.Context) {
	principal, _ := principalFrom(c)

	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ticket, err := s.ticketSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !principal.Role.Staff() && ticket.CustomerID != principal.UserID {
		AbortWithError(c, authorization.ErrForbidden)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ticket})
}

func (s *Server) CreateTicket(c *gin.Context) {
	principal, _ := principalFrom(c)

	var req ticketdomain.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ticket, err := s.ticketSvc.Create(c.Request.Context(), principal.UserID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": ticket})
}

func (s *Server) ReplyTicket(c *gin.Context) {
	principal, _ := principalFrom(c)

	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req ticketdomain.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	staff := principal.Role.Staff()
	if !staff {
		ticket, err := s.ticketSvc.Get(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if ticket.CustomerID != principal.UserID {
			AbortWithError(c, authorization.ErrForbidden)
			return
		}
		// Status pinning is a staff tool.
		req.Status = ""
	}

	ticket, err := s.ticketSvc.Reply(c.Request.Context(), id, principal.UserID, staff, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": ticket})
}

func (s *Server) UpdateTicketStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateTicketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ticket, err := s.ticketSvc.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "ticket.status_updated", "ticket", ticket.ID.String(), map[string]any{"status": string(ticket.Status)})
	c.JSON(http.StatusOK, gin.H{"data": ticket})
}
