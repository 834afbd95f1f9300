package listeners

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"iot-tier-pipeline/src/config"
)

// MQTTSubscriber receives notifications published by MinIO's MQTT target.
type MQTTSubscriber struct {
	client  mqtt.Client
	topic   string
	Handler PayloadHandler
	ctx     context.Context
}

// BrokerURL adds the tcp:// scheme to a bare host:port.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func NewMQTTSubscriber(cfg config.MQTTConfig, h PayloadHandler) *MQTTSubscriber {
	brokerURL := BrokerURL(cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(cfg.ClientID)

	if strings.HasPrefix(brokerURL, "ssl://") || strings.HasPrefix(brokerURL, "wss://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("Connection lost: %v", err)
	})

	return &MQTTSubscriber{
		client:  mqtt.NewClient(opts),
		topic:   cfg.Topic,
		Handler: h,
		ctx:     context.Background(),
	}
}

// Start connects and subscribes, then blocks until ctx is cancelled.
func (s *MQTTSubscriber) Start(ctx context.Context) error {
	s.ctx = ctx

	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	token = s.client.Subscribe(s.topic, 1, s.onMessage)
	if token.Wait() && token.Error() != nil {
		s.client.Disconnect(250)
		return fmt.Errorf("failed to subscribe to topic %s: %w", s.topic, token.Error())
	}
	log.Printf("Subscribed to topic: %s", s.topic)

	<-ctx.Done()

	s.client.Disconnect(250)
	log.Println("Disconnected from MQTT broker")
	return nil
}

func (s *MQTTSubscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	batch, err := s.Handler.HandlePayload(s.ctx, msg.Payload())
	if err != nil {
		log.Printf("Dropping message on topic %s: %v", msg.Topic(), err)
		return
	}

	log.Printf("request=%s processed=%d ignored=%d failed=%d",
		batch.RequestID, batch.Processed, batch.Ignored, batch.Failed)
}
