package server

import (
	"net/http"

	coupondomain "github.com/billfold/billfold/internal/coupon/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListCoupons(c *gin.Context) {
	coupons, err := s.couponSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": coupons})
}

func (s *Server) GetCouponByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	coupon, err := s.couponSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": coupon})
}

func (s *Server) CreateCoupon(c *gin.Context) {
	var req coupondomain.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	coupon, err := s.couponSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "coupon.created", "coupon", coupon.ID.String(), map[string]any{"code": coupon.Code})
	c.JSON(http.StatusCreated, gin.H{"data": coupon})
}

func (s *Server) UpdateCoupon(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req coupondomain.UpdateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	coupon, err := s.couponSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "coupon.updated", "coupon", coupon.ID.String(), nil)
	c.JSON(http.StatusOK, gin.H{"data": coupon})
}

func (s *Server) DeleteCoupon(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.couponSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "coupon.deleted", "coupon", id.String(), nil)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
