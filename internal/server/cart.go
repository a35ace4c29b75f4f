package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type addCartItemRequest struct {
	ServiceID snowflake.ID `json:"service_id"`
	Quantity  int64        `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int64 `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

func (s *Server) GetCart(c *gin.Context) {
	principal, _ := principalFrom(c)

	cart, err := s.cartSvc.Get(c.Request.Context(), principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cart})
}

func (s *Server) AddCartItem(c *gin.Context) {
	principal, _ := principalFrom(c)

	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, err := s.cartSvc.AddItem(c.Request.Context(), principal.UserID, req.ServiceID, req.Quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) UpdateCartItem(c *gin.Context) {
	principal, _ := principalFrom(c)

	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.cartSvc.UpdateItem(c.Request.Context(), principal.UserID, id, req.Quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) RemoveCartItem(c *gin.Context) {
	principal, _ := principalFrom(c)

	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.cartSvc.RemoveItem(c.Request.Context(), principal.UserID, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ApplyCoupon(c *gin.Context) {
	principal, _ := principalFrom(c)

	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cart, err := s.cartSvc.ApplyCoupon(c.Request.Context(), principal.UserID, req.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cart})
}

func (s *Server) RemoveCoupon(c *gin.Context) {
	principal, _ := principalFrom(c)

	if err := s.cartSvc.RemoveCoupon(c.Request.Context(), principal.UserID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
