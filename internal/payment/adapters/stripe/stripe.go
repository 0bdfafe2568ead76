package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/hireboard/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

const ProviderName = "stripe"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	secret, ok := readString(cfg.Config, "webhook_secret")
	if !ok {
		return nil, domain.ErrInvalidConfig
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, domain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	_, err := a.construct(payload, headers)
	return err
}

func (a *Adapter) construct(payload []byte, headers http.Header) (stripego.Event, error) {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return stripego.Event{}, domain.ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, a.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripego.Event{}, domain.ErrInvalidSignature
	}
	return event, nil
}

// Parse maps checkout.session.* events to a CheckoutEvent. A completed
// session whose payment is still processing is ignored; the
// async_payment_succeeded event follows.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.CheckoutEvent, error) {
	var event stripego.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || event.Data == nil {
		return nil, domain.ErrInvalidEvent
	}

	var eventType string
	switch event.Type {
	case stripego.EventTypeCheckoutSessionCompleted, stripego.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		eventType = domain.EventTypeCheckoutCompleted
	case stripego.EventTypeCheckoutSessionAsyncPaymentFailed, stripego.EventTypeCheckoutSessionExpired:
		eventType = domain.EventTypeCheckoutFailed
	default:
		return nil, domain.ErrEventIgnored
	}

	var session stripego.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}
	if eventType == domain.EventTypeCheckoutCompleted && !sessionPaid(&session) {
		return nil, domain.ErrEventIgnored
	}

	return &domain.CheckoutEvent{
		Provider:        ProviderName,
		ProviderEventID: event.ID,
		Type:            eventType,
		SessionID:       session.ID,
		Kind:            strings.TrimSpace(session.Metadata[domain.MetadataKind]),
		Metadata:        session.Metadata,
		AmountTotal:     session.AmountTotal,
		Currency:        strings.ToLower(string(session.Currency)),
		OccurredAt:      timestamp(event.Created),
		RawPayload:      payload,
	}, nil
}

func sessionPaid(session *stripego.CheckoutSession) bool {
	switch session.PaymentStatus {
	case stripego.CheckoutSessionPaymentStatusPaid, stripego.CheckoutSessionPaymentStatusNoPaymentRequired:
		return true
	}
	return false
}

func timestamp(created int64) time.Time {
	if created == 0 {
		return time.Now().UTC()
	}
	return time.Unix(created, 0).UTC()
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	switch cast := value.(type) {
	case string:
		return cast, true
	default:
		return "", false
	}
}
