package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/wb-go/wbf/retry"
)

// Producer - то, что умеет wbf-продюсер
type Producer interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// Стратегия ретрая отправки в очередь
var retryStrategy = retry.Strategy{
	Attempts: 5,
	Delay:    time.Second,
	Backoff:  1.5,
}

type DecisionPublisher struct {
	producer Producer
}

func NewDecisionPublisher(p Producer) *DecisionPublisher {
	return &DecisionPublisher{producer: p}
}

// Publish sends the decision keyed by job id so all cycles of one job land in one partition
func (p *DecisionPublisher) Publish(ctx context.Context, d *model.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision for job %d: %w", d.JobID, err)
	}

	key := []byte(strconv.FormatUint(d.JobID, 10))
	if err := p.producer.SendWithRetry(ctx, retryStrategy, key, payload); err != nil {
		return fmt.Errorf("publish decision for job %d: %w", d.JobID, err)
	}
	return nil
}

// NoopPublisher - ЗАГЛУШКА, когда брокер не настроен
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, d *model.Decision) error {
	return nil
}
