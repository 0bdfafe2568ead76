// Package analytics sends product events to PostHog.
package analytics

import (
	"context"
	"strings"

	"github.com/posthog/posthog-go"
	"github.com/smallbiznis/hireboard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	EventPurchaseCompleted = "purchase_completed"
	EventFeatureActivated  = "job_feature_activated"
	EventAddOnApplied      = "addon_applied"
)

type Event struct {
	DistinctID string
	Name       string
	Properties map[string]any
}

type Tracker interface {
	Track(ctx context.Context, event Event) error
}

type posthogTracker struct {
	client posthog.Client
}

func NewTracker(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Tracker, error) {
	key := strings.TrimSpace(cfg.Analytics.PostHogKey)
	if key == "" {
		log.Named("analytics").Info("posthog disabled")
		return Noop{}, nil
	}

	client, err := posthog.NewWithConfig(key, posthog.Config{Endpoint: cfg.Analytics.PostHogEndpoint})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return &posthogTracker{client: client}, nil
}

func (t *posthogTracker) Track(_ context.Context, event Event) error {
	capture := posthog.Capture{
		DistinctId: event.DistinctID,
		Event:      event.Name,
		Properties: event.Properties,
	}
	if err := capture.Validate(); err != nil {
		return err
	}
	return t.client.Enqueue(capture)
}

type Noop struct{}

func (Noop) Track(context.Context, Event) error { return nil }
