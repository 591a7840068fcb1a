package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// healthExchange is declared by every broker, so a passive declare on it
// only fails when the channel or the broker is unhealthy.
const healthExchange = "amq.fanout"

type exchangeDeclarer interface {
	ExchangeDeclarePassive(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
}

func New(ctx context.Context, url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq failed: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := Ping(checkCtx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Ping opens a short-lived channel and checks the broker answers on it.
func Ping(ctx context.Context, conn *amqp.Connection) error {
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()
	return checkBroker(ctx, ch)
}

func checkBroker(ctx context.Context, ch exchangeDeclarer) error {
	done := make(chan error, 1)
	go func() {
		done <- ch.ExchangeDeclarePassive(healthExchange, amqp.ExchangeFanout, true, false, false, false, nil)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rabbitmq health check timeout: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("rabbitmq health check failed: %w", err)
		}
		return nil
	}
}
