package rabbitmq

import (
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"time"
)

const connectionName = "notification-system"

// NewConnection dials the broker. The process shares this one connection
// between the wake-up publisher and the wake-up consumer, each on its own channel.
func NewConnection(cfg *config.Config) (*amqp.Connection, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(connectionName)

	conn, err := amqp.DialConfig(cfg.RabbitMQ.DSN, amqp.Config{
		Heartbeat:  10 * time.Second,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: failed to connect: %w", err)
	}
	return conn, nil
}
