package mail

import (
	"context"
	"encoding/json"

	"trainflow/internal/logger"
	"trainflow/internal/metrics"
	"trainflow/internal/queue"
)

const maxAttempts = 3

// Consumer drains the mail queue and hands messages to a Transport.
type Consumer struct {
	q         queue.Queue
	transport Transport
	team      string
	log       *logger.Logger
}

func NewConsumer(q queue.Queue, transport Transport, team string, log *logger.Logger) *Consumer {
	return &Consumer{q: q, transport: transport, team: team, log: log.With("service", "MailConsumer")}
}

// Run processes messages until ctx is done. Failed deliveries are requeued
// until maxAttempts is reached and then dropped.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.q.Consume(ctx)
	if err != nil {
		return err
	}
	c.log.Info("mail consumer started")
	for msg := range msgs {
		if msg.Type != MessageType {
			continue
		}
		c.Handle(ctx, msg)
	}
	c.log.Info("mail consumer stopped")
	return nil
}

// Handle delivers a single queued message.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) {
	var m Message
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		c.log.Warn("dropping undecodable mail message", "error", err)
		return
	}
	rendered, err := Render(m, c.team)
	if err != nil {
		metrics.MailMessages.WithLabelValues(string(m.Kind), "failed").Inc()
		c.log.Warn("dropping unrenderable mail message", "kind", m.Kind, "error", err)
		return
	}
	if err := c.transport.Deliver(ctx, rendered); err != nil {
		metrics.MailMessages.WithLabelValues(string(m.Kind), "failed").Inc()
		if msg.Attempt+1 >= maxAttempts || ctx.Err() != nil {
			c.log.Error("mail delivery failed", "kind", m.Kind, "attempt", msg.Attempt+1, "error", err)
			return
		}
		msg.Attempt++
		if perr := c.q.Publish(ctx, msg); perr != nil {
			c.log.Error("mail requeue failed", "kind", m.Kind, "error", perr)
		}
		return
	}
	metrics.MailMessages.WithLabelValues(string(m.Kind), "sent").Inc()
}
