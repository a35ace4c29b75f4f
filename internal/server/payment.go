package server

import (
	"net/http"
	"strings"

	"github.com/billfold/billfold/internal/authorization"
	paymentdomain "github.com/billfold/billfold/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListPayments(c *gin.Context) {
	principal, _ := principalFrom(c)

	req := paymentdomain.ListPaymentsRequest{
		Limit: queryLimit(c),
	}
	if raw := strings.TrimSpace(c.Query("invoice_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("invoice_id", "invalid_id", "invalid id"))
			return
		}
		req.InvoiceID = id
	}
	if !principal.Role.Staff() {
		req.UserID = principal.UserID
	}

	payments, err := s.paymentSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	principal, _ := principalFrom(c)

	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payment, err := s.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !principal.Role.Staff() && payment.UserID != principal.UserID {
		AbortWithError(c, authorization.ErrForbidden)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) RefundPayment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payment, err := s.paymentSvc.Refund(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "payment.refunded", "payment", payment.ID.String(), map[string]any{"amount": payment.Amount})
	c.JSON(http.StatusOK, gin.H{"data": payment})
}
