package server

import (
	"net/http"
	"strings"

	"github.com/billfold/billfold/internal/authorization"
	orderdomain "github.com/billfold/billfold/internal/order/domain"
	"github.com/gin-gonic/gin"
)

type updateOrderStatusRequest struct {
	Status orderdomain.Status `json:"status"`
}

func (s *Server) Checkout(c *gin.Context) {
	principal, _ := principalFrom(c)

	var req orderdomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.orderSvc.Checkout(c.Request.Context(), principal.UserID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) ListOrders(c *gin.Context) {
	principal, _ := principalFrom(c)

	req := orderdomain.ListOrdersRequest{
		Status: orderdomain.Status(strings.TrimSpace(c.Query("status"))),
		Limit:  queryLimit(c),
	}
	// Customers see their own orders; staff see everything.
	if !principal.Role.Staff() {
		req.CustomerID = principal.UserID
	}

	orders, err := s.orderSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": orders})
}

func (s *Server) GetOrderByID(c *gin.Context) {
	principal, _ := principalFrom(c)

	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !principal.Role.Staff() && order.CustomerID != principal.UserID {
		AbortWithError(c, authorization.ErrForbidden)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) CancelOrder(c *gin.Context) {
	principal, _ := principalFrom(c)

	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.Cancel(c.Request.Context(), principal.UserID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) UpdateOrderStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.orderSvc.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "order.status_updated", "order", order.ID.String(), map[string]any{"status": string(order.Status)})
	c.JSON(http.StatusOK, gin.H{"data": order})
}
