package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	purchasedomain "github.com/smallbiznis/hireboard/internal/purchase/domain"
)

func (s *Server) CreateCheckout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req purchasedomain.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserID = userID
	req.PackID = strings.TrimSpace(req.PackID)
	req.AddOnID = strings.TrimSpace(req.AddOnID)

	resp, err := s.purchaseSvc.CreateCheckout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) CreateUpsellCheckout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req purchasedomain.CreateUpsellCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserID = userID

	resp, err := s.purchaseSvc.CreateUpsellCheckout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}
