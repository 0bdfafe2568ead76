package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/hireboard/internal/audit/domain"
	reportdomain "github.com/smallbiznis/hireboard/internal/report/domain"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
	"go.uber.org/zap"
)

func (s *Server) GetReportSummary(c *gin.Context) {
	var query struct {
		From string `form:"from"`
		To   string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	// A bare date in "to" covers that whole day; the window end is exclusive.
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	resp, err := s.reportSvc.Summary(c.Request.Context(), reportdomain.SummaryRequest{From: from, To: to})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUserLedger(c *gin.Context) {
	userID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.reportSvc.UserLedger(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReconcilePurchase(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		AbortWithError(c, newValidationError("session_id", "required", "session_id is required"))
		return
	}

	operatorID, _ := currentUserID(c)
	result, err := s.fulfillmentSvc.Reconcile(c.Request.Context(), sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("purchase reconciled by operator",
		zap.String("session_id", sessionID),
		zap.String("operator_id", operatorID.String()),
		zap.String("outcome", string(result.Outcome)),
	)
	s.recordAudit(c, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    operatorID.String(),
		Action:     "purchase.reconcile",
		TargetType: "checkout_session",
		TargetID:   sessionID,
		Metadata: map[string]any{
			"outcome":     string(result.Outcome),
			"purchase_id": result.PurchaseID.String(),
		},
	})

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	if s.auditSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var query struct {
		pagination.Pagination
		Action     string `form:"action"`
		TargetType string `form:"target_type"`
		TargetID   string `form:"target_id"`
		StartAt    string `form:"start_at"`
		EndAt      string `form:"end_at"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startAt, err := parseOptionalTime(query.StartAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid start_at"))
		return
	}
	endAt, err := parseOptionalTime(query.EndAt, true)
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid end_at"))
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: query.Pagination,
		Action:     strings.TrimSpace(query.Action),
		TargetType: strings.TrimSpace(query.TargetType),
		TargetID:   strings.TrimSpace(query.TargetID),
		StartAt:    startAt,
		EndAt:      endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// recordAudit never fails the request; the action already happened.
func (s *Server) recordAudit(c *gin.Context, entry auditdomain.Entry) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(c.Request.Context(), entry); err != nil {
		s.log.Warn("audit record failed",
			zap.String("action", entry.Action),
			zap.String("target_id", entry.TargetID),
			zap.Error(err),
		)
	}
}
