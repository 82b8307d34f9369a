package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/libren/support-chat/internal/config"
	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/pkg/log"
)

// AMQPPublisher publishes lifecycle events to a topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(cfg config.EventsConfig) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
	}, nil
}

func (p *AMQPPublisher) ChatCreated(ctx context.Context, chat *domain.Chat) {
	p.publish(ctx, KeyChatCreated, chat)
}

func (p *AMQPPublisher) ChatAssigned(ctx context.Context, chat *domain.Chat) {
	p.publish(ctx, KeyChatAssigned, chat)
}

func (p *AMQPPublisher) ChatClosed(ctx context.Context, chat *domain.Chat) {
	p.publish(ctx, KeyChatClosed, chat)
}

func (p *AMQPPublisher) publish(ctx context.Context, key string, chat *domain.Chat) {
	env := newEnvelope(key, chat)
	body, err := json.Marshal(env)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("event", key).Msg("event marshal failed")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(pubCtx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    env.EventID,
		Timestamp:    env.OccurredAt,
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("event", key).Str(log.FieldChatID, chat.ID).Msg("event publish failed")
	}
}

func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
