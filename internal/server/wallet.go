package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type depositRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
}

func (s *Server) GetWallet(c *gin.Context) {
	principal, _ := principalFrom(c)

	wallet, err := s.walletSvc.Balance(c.Request.Context(), principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": wallet})
}

func (s *Server) DepositWallet(c *gin.Context) {
	principal, _ := principalFrom(c)

	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	wallet, err := s.walletSvc.Deposit(c.Request.Context(), principal.UserID, req.Amount, req.Description, req.Reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": wallet})
}

func (s *Server) ListWalletTransactions(c *gin.Context) {
	principal, _ := principalFrom(c)

	transactions, err := s.walletSvc.Transactions(c.Request.Context(), principal.UserID, queryLimit(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": transactions})
}
