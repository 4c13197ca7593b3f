// Package jobs carries campaign-run submissions over AMQP.
//
// Semantics are deliberately at-most-once per delivery: the consumer acks
// each message before running it, so a worker crash mid-run never causes the
// broker to redeliver the campaign (targets already reached would be messaged
// again). A crashed run stays "running" until the janitor or an operator
// intervenes. Malformed payloads are acked and dropped.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"adcast/pkg/logx"
)

// RunJob is the queue payload: one campaign to execute.
type RunJob struct {
	CampaignID string `json:"campaign_id"`
}

type Queue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	name string
	log  logx.Logger
}

// Dial connects to the broker and declares the durable run queue.
func Dial(url, name string, log logx.Logger) (*Queue, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	// One unacked run at a time per worker; a campaign run is long-lived.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	return &Queue{conn: conn, ch: ch, name: name, log: log}, nil
}

// Publish submits one campaign run.
func (q *Queue) Publish(campaignID string) error {
	body, err := json.Marshal(RunJob{CampaignID: campaignID})
	if err != nil {
		return err
	}
	return q.ch.Publish("", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume blocks, invoking handler for each run job until ctx is cancelled or
// the delivery channel closes. Handler errors are logged, never requeued.
func (q *Queue) Consume(ctx context.Context, handler func(ctx context.Context, campaignID string) error) error {
	deliveries, err := q.ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}
	q.log.Info("consuming run jobs", logx.String("queue", q.name))
	return q.consumeLoop(ctx, deliveries, handler)
}

func (q *Queue) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery, handler func(ctx context.Context, campaignID string) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("amqp delivery channel closed")
			}
			var job RunJob
			if err := json.Unmarshal(d.Body, &job); err != nil || job.CampaignID == "" {
				q.log.Warn("dropping malformed run job", logx.Err(err))
				_ = d.Ack(false)
				continue
			}
			// Ack before the run. A campaign run is long-lived; an unacked
			// delivery held across it would be requeued after a worker crash
			// and the campaign executed a second time.
			_ = d.Ack(false)
			if err := handler(ctx, job.CampaignID); err != nil {
				q.log.Error("run job failed", logx.String("campaign", job.CampaignID), logx.Err(err))
			}
		}
	}
}

func (q *Queue) Close() {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		_ = q.conn.Close()
	}
}
