package stripe

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/hireboard/internal/config"
	"github.com/smallbiznis/hireboard/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v81"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
)

// Gateway opens hosted checkout sessions through the Stripe API.
type Gateway struct {
	client *checkoutsession.Client
}

func NewGateway(cfg config.Config) *Gateway {
	key := strings.TrimSpace(cfg.Stripe.SecretKey)
	if key == "" {
		return &Gateway{}
	}
	return &Gateway{client: &checkoutsession.Client{
		B:   stripego.GetBackend(stripego.APIBackend),
		Key: key,
	}}
}

func (g *Gateway) Provider() string {
	return ProviderName
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (*domain.CheckoutSession, error) {
	if g == nil || g.client == nil {
		return nil, domain.ErrGatewayNotConfigured
	}

	params := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL: stripego.String(req.SuccessURL),
		CancelURL:  stripego.String(req.CancelURL),
		Metadata:   req.Metadata,
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripego.String(req.ClientReferenceID)
	}
	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, lineItemParams(item, req.Currency))
	}
	params.Context = ctx

	session, err := g.client.New(params)
	if err != nil {
		return nil, err
	}
	return toSession(session), nil
}

func (g *Gateway) GetCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	if g == nil || g.client == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx

	session, err := g.client.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripego.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return toSession(session), nil
}

func lineItemParams(item domain.LineItem, currency string) *stripego.CheckoutSessionLineItemParams {
	quantity := item.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	if item.PriceID != "" {
		return &stripego.CheckoutSessionLineItemParams{
			Price:    stripego.String(item.PriceID),
			Quantity: stripego.Int64(quantity),
		}
	}
	return &stripego.CheckoutSessionLineItemParams{
		PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
			Currency: stripego.String(currency),
			ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripego.String(item.Name),
			},
			UnitAmount: stripego.Int64(item.UnitAmount),
		},
		Quantity: stripego.Int64(quantity),
	}
}

func toSession(session *stripego.CheckoutSession) *domain.CheckoutSession {
	return &domain.CheckoutSession{
		ID:          session.ID,
		URL:         session.URL,
		Paid:        sessionPaid(session),
		AmountTotal: session.AmountTotal,
		Currency:    strings.ToLower(string(session.Currency)),
		Metadata:    session.Metadata,
	}
}
