package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListAddOnGrants(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	grants, err := s.addonSvc.ListGrants(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": grants})
}
