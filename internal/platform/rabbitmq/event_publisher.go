package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"glucoheart/internal/event"
)

// EventPublisher fans realtime events out to every gateway instance through a
// fanout exchange.
type EventPublisher struct {
	conn     *amqp.Connection
	exchange string
}

func NewEventPublisher(conn *amqp.Connection, exchange string) *EventPublisher {
	return &EventPublisher{
		conn:     conn,
		exchange: exchange,
	}
}

func DeclareEventExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s failed: %w", exchange, err)
	}
	return nil
}

func (p *EventPublisher) Publish(ctx context.Context, evt event.Event) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareEventExchange(ch, p.exchange); err != nil {
		return err
	}

	payload, err := event.Marshal(evt)
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(
		ctx,
		p.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Type:        evt.Name,
			Body:        payload,
		},
	); err != nil {
		return fmt.Errorf("publish event failed: %w", err)
	}
	return nil
}
