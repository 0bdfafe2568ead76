// Package queue hands follow-up work for jobs to background workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/hireboard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TypePromotionalPost = "job:promotional_post"
	TypeJobMatching     = "job:matching"
)

// PromotionalPost asks the social worker to publish a post about a job.
type PromotionalPost struct {
	JobID         string `json:"job_id"`
	UserID        string `json:"user_id"`
	Reason        string `json:"reason"`
	CorrelationID string `json:"correlation_id"`
}

// JobMatching asks the matching worker to rank candidates for a featured job.
type JobMatching struct {
	JobID         string `json:"job_id"`
	UserID        string `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

type Publisher interface {
	EnqueuePromotionalPost(ctx context.Context, task PromotionalPost) error
	EnqueueJobMatching(ctx context.Context, task JobMatching) error
}

type AsynqPublisher struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	log      *zap.Logger
}

// NewPublisher returns an asynq-backed publisher, or a logging no-op when
// the queue is disabled or Redis is not configured.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	logger := log.Named("queue")
	if !cfg.Queue.Enabled || strings.TrimSpace(cfg.Redis.Addr) == "" {
		logger.Info("work queue disabled")
		return Noop{log: logger}
	}

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return NewAsynqPublisher(client, cfg.Queue, logger)
}

func NewAsynqPublisher(client *asynq.Client, cfg config.QueueConfig, log *zap.Logger) *AsynqPublisher {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "default"
	}
	maxRetry := cfg.MaxRetry
	if maxRetry < 0 {
		maxRetry = 0
	}
	return &AsynqPublisher{client: client, queue: name, maxRetry: maxRetry, log: log}
}

func (p *AsynqPublisher) EnqueuePromotionalPost(ctx context.Context, task PromotionalPost) error {
	if task.CorrelationID == "" {
		task.CorrelationID = ulid.Make().String()
	}
	return p.enqueue(ctx, TypePromotionalPost, task.CorrelationID, task)
}

func (p *AsynqPublisher) EnqueueJobMatching(ctx context.Context, task JobMatching) error {
	if task.CorrelationID == "" {
		task.CorrelationID = ulid.Make().String()
	}
	return p.enqueue(ctx, TypeJobMatching, task.CorrelationID, task)
}

func (p *AsynqPublisher) enqueue(ctx context.Context, taskType, taskID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	info, err := p.client.EnqueueContext(ctx, asynq.NewTask(taskType, body),
		asynq.Queue(p.queue),
		asynq.MaxRetry(p.maxRetry),
		asynq.TaskID(taskID),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	p.log.Debug("task enqueued",
		zap.String("type", taskType),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}

type Noop struct {
	log *zap.Logger
}

func (n Noop) EnqueuePromotionalPost(ctx context.Context, task PromotionalPost) error {
	n.logSkipped(TypePromotionalPost, task.JobID)
	return nil
}

func (n Noop) EnqueueJobMatching(ctx context.Context, task JobMatching) error {
	n.logSkipped(TypeJobMatching, task.JobID)
	return nil
}

func (n Noop) logSkipped(taskType, jobID string) {
	if n.log == nil {
		return
	}
	n.log.Debug("queue disabled, task dropped", zap.String("type", taskType), zap.String("job_id", jobID))
}
