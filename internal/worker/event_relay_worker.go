package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"glucoheart/internal/event"
	rabbitmqClient "glucoheart/internal/platform/rabbitmq"
)

// Broadcaster delivers an event to the sockets connected to this instance.
type Broadcaster interface {
	Broadcast(evt event.Event)
}

// EventRelayWorker consumes the shared event exchange through a private,
// auto-deleted queue so every instance sees every event once.
type EventRelayWorker struct {
	conn        *amqp.Connection
	exchange    string
	broadcaster Broadcaster

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEventRelayWorker(conn *amqp.Connection, exchange string, broadcaster Broadcaster) *EventRelayWorker {
	return &EventRelayWorker{
		conn:        conn,
		exchange:    exchange,
		broadcaster: broadcaster,
	}
}

func (w *EventRelayWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmqClient.DeclareEventExchange(ch, w.exchange); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	queue, err := ch.QueueDeclare(
		"",
		false,
		true,
		true,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare relay queue failed: %w", err)
	}

	if err := ch.QueueBind(queue.Name, "", w.exchange, false, nil); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("bind relay queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		queue.Name,
		"",
		false,
		true,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume relay queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					slog.Warn("event relay deliveries closed", "exchange", w.exchange)
					return
				}
				w.handle(d)
			}
		}
	}()

	return nil
}

func (w *EventRelayWorker) handle(d amqp.Delivery) {
	evt, err := event.Unmarshal(d.Body)
	if err != nil {
		slog.Error("relay decode event failed", "error", err)
		_ = d.Nack(false, false)
		return
	}
	w.broadcaster.Broadcast(evt)
	_ = d.Ack(false)
}

func (w *EventRelayWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
