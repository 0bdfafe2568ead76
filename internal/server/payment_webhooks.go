package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/hireboard/internal/payment/domain"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// HandlePaymentWebhook acknowledges every event the ledger has accepted,
// including replays, so the gateway stops retrying. Signature and payload
// failures are rejected so the gateway surfaces them.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, ErrPayloadTooLarge)
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	switch err := s.paymentSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header); {
	case err == nil:
	case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		s.log.Debug("payment webhook replayed", zap.String("provider", provider))
	default:
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
