package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/billfold/billfold/internal/authorization"
	invoicedomain "github.com/billfold/billfold/internal/invoice/domain"
	paymentdomain "github.com/billfold/billfold/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

type updateInvoiceStatusRequest struct {
	Status invoicedomain.Status `json:"status"`
}

type payInvoiceRequest struct {
	Amount int64                `json:"amount"`
	Method paymentdomain.Method `json:"method"`
}

func (s *Server) ListInvoices(c *gin.Context) {
	principal, _ := principalFrom(c)

	req := invoicedomain.ListInvoicesRequest{
		Status: invoicedomain.Status(strings.TrimSpace(c.Query("status"))),
		Limit:  queryLimit(c),
	}
	if !principal.Role.Staff() {
		req.CustomerID = principal.UserID
	}

	invoices, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	invoice, err := s.ownedInvoice(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	invoice, err := s.ownedInvoice(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reader, err := s.invoiceSvc.RenderPDF(c.Request.Context(), invoice.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", invoice.InvoiceNumber))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "invoice.created", "invoice", invoice.ID.String(), map[string]any{"number": invoice.InvoiceNumber})
	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req invoicedomain.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "invoice.updated", "invoice", invoice.ID.String(), nil)
	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) UpdateInvoiceStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateInvoiceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "invoice.status_updated", "invoice", invoice.ID.String(), map[string]any{"status": string(invoice.Status)})
	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.invoiceSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, "invoice.deleted", "invoice", id.String(), nil)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) PayInvoice(c *gin.Context) {
	principal, _ := principalFrom(c)

	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req payInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.paymentSvc.ProcessPayment(c.Request.Context(), principal.UserID, id, req.Amount, req.Method)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result.Pending {
		c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"status": "pending_verification"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result.Payment})
}

// ownedInvoice loads the invoice on the path and enforces that
// customers only reach their own documents.
func (s *Server) ownedInvoice(c *gin.Context) (*invoicedomain.Invoice, error) {
	principal, _ := principalFrom(c)

	id, err := pathID(c, "id")
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if !principal.Role.Staff() && invoice.CustomerID != principal.UserID {
		return nil, authorization.ErrForbidden
	}
	return invoice, nil
}
