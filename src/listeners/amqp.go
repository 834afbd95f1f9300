package listeners

import (
	"context"
	"errors"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"iot-tier-pipeline/src/config"
	"iot-tier-pipeline/src/trigger"
)

// AMQPConsumer reads notifications published by MinIO's AMQP target.
type AMQPConsumer struct {
	channel     *amqp.Channel
	queue       string
	Handler     PayloadHandler
	prefetchCnt int
}

func NewAMQPConsumer(conn *amqp.Connection, cfg config.AMQPConfig, h PayloadHandler) (*AMQPConsumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	consumer := &AMQPConsumer{
		channel:     ch,
		queue:       cfg.Queue,
		Handler:     h,
		prefetchCnt: 1,
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
		}
		if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind queue %s: %w", cfg.Queue, err)
		}
	}

	if err := ch.Qos(consumer.prefetchCnt, 0, false); err != nil {
		return nil, err
	}

	return consumer, nil
}

func (c *AMQPConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	log.Printf("Consuming notifications from queue %s", c.queue)

	for {
		select {
		case <-ctx.Done():
			log.Println("AMQP consumer shutting down")
			return c.channel.Close()
		case msg, ok := <-msgs:
			if !ok {
				log.Println("RabbitMQ channel closed")
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

// handle acks processed notifications, including ones whose stage failed,
// and drops undecodable ones without requeueing.
func (c *AMQPConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	batch, err := c.Handler.HandlePayload(ctx, msg.Body)
	if err != nil {
		log.Printf("failed to handle notification: %v", err)
		requeue := !errors.Is(err, trigger.ErrUnknownEvent)
		if nackErr := msg.Nack(false, requeue); nackErr != nil {
			log.Printf("failed to nack delivery %d: %v", msg.DeliveryTag, nackErr)
		}
		return
	}

	if batch.Failed > 0 {
		log.Printf("request=%s finished with %d failed notifications", batch.RequestID, batch.Failed)
	}

	if err := msg.Ack(false); err != nil {
		log.Printf("failed to ack delivery %d: %v", msg.DeliveryTag, err)
	}
}
