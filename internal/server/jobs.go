package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	gatedomain "github.com/smallbiznis/hireboard/internal/gate/domain"
	jobdomain "github.com/smallbiznis/hireboard/internal/job/domain"
)

func (s *Server) ListJobs(c *gin.Context) {
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

	resp, err := s.jobSvc.List(c.Request.Context(), jobdomain.ListJobsRequest{
		OwnerID:   userID,
		PageToken: query.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetJob(c *gin.Context) {
	userID, jobID, ok := jobRouteIDs(c)
	if !ok {
		return
	}

	resp, err := s.jobSvc.Get(c.Request.Context(), userID, jobID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PublishJob(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req gatedomain.PublishJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserID = userID

	resp, err := s.gateSvc.PublishJob(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) RepostJob(c *gin.Context) {
	userID, jobID, ok := jobRouteIDs(c)
	if !ok {
		return
	}

	resp, err := s.gateSvc.RepostJob(c.Request.Context(), gatedomain.RepostJobRequest{
		UserID: userID,
		JobID:  jobID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) FeatureJob(c *gin.Context) {
	userID, jobID, ok := jobRouteIDs(c)
	if !ok {
		return
	}

	resp, err := s.gateSvc.FeatureJob(c.Request.Context(), gatedomain.FeatureJobRequest{
		UserID: userID,
		JobID:  jobID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApplyAddOn(c *gin.Context) {
	userID, jobID, ok := jobRouteIDs(c)
	if !ok {
		return
	}

	var req gatedomain.ApplyAddOnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.GrantID <= 0 {
		AbortWithError(c, newValidationError("grant_id", "required", "grant_id is required"))
		return
	}
	req.UserID = userID
	req.JobID = jobID

	resp, err := s.gateSvc.ApplyAddOn(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func jobRouteIDs(c *gin.Context) (snowflake.ID, snowflake.ID, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return 0, 0, false
	}
	jobID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, 0, false
	}
	return userID, jobID, true
}
