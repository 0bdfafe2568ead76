package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/smallbiznis/hireboard/internal/credit/domain"
)

func (s *Server) GetCreditBalance(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	lines, err := s.creditSvc.Balance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lines})
}

func (s *Server) ListCreditUnits(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query struct {
		CreditType string `form:"credit_type"`
		State      string `form:"state"`
		PageToken  string `form:"page_token"`
		PageSize   string `form:"page_size"`
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

	resp, err := s.creditSvc.ListUnits(c.Request.Context(), creditdomain.ListUnitsRequest{
		UserID:     userID,
		CreditType: strings.TrimSpace(query.CreditType),
		State:      strings.TrimSpace(query.State),
		PageToken:  query.PageToken,
		PageSize:   pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
