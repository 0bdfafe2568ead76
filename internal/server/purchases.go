package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hireboard/internal/providers/pdf"
	purchasedomain "github.com/smallbiznis/hireboard/internal/purchase/domain"
)

func (s *Server) ListPurchases(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query struct {
		PageToken string `form:"page_token"`
		PageSize  string `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	pageSize, err := parsePageSize(query.PageSize)
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}

	resp, err := s.purchaseSvc.List(c.Request.Context(), purchasedomain.ListPurchasesRequest{
		UserID:    userID,
		PageToken: query.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPurchase(c *gin.Context) {
	purchase, ok := s.ownPurchase(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": purchase})
}

func (s *Server) DownloadReceipt(c *gin.Context) {
	purchase, ok := s.ownPurchase(c)
	if !ok {
		return
	}

	data, err := pdf.ReceiptFromPurchase(s.cfg.AppName, *purchase)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	doc, err := s.receipts.GenerateReceipt(c.Request.Context(), data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if doc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	body, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%s.pdf"`, purchase.ID.String()))
	c.Data(http.StatusOK, "application/pdf", body)
}

func (s *Server) ownPurchase(c *gin.Context) (*purchasedomain.Purchase, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return nil, false
	}
	purchaseID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return nil, false
	}

	purchase, err := s.purchaseSvc.Get(c.Request.Context(), userID, purchaseID)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return purchase, true
}
