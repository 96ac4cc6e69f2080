package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig configures the MQTT subscriber.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic may contain one "+" wildcard standing for the device MAC, e.g.
	// "homewatch/devices/+/events".
	Topic string
}

// MQTTSubscriber receives device events published straight by the boards.
type MQTTSubscriber struct {
	client  mqtt.Client
	cfg     MQTTConfig
	handler *DeviceEventHandler
	log     *zap.Logger
}

// NewMQTTSubscriber creates the subscriber; Start connects.
func NewMQTTSubscriber(cfg MQTTConfig, handler *DeviceEventHandler, log *zap.Logger) *MQTTSubscriber {
	s := &MQTTSubscriber{cfg: cfg, handler: handler, log: log}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	// resubscribe after every reconnect
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if err := s.subscribe(c); err != nil {
			log.Error("mqtt subscribe failed", zap.String("topic", cfg.Topic), zap.Error(err))
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})
	s.client = mqtt.NewClient(opts)
	return s
}

// Start connects to the broker.
func (s *MQTTSubscriber) Start() error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	s.log.Info("mqtt subscriber connected", zap.String("broker", s.cfg.Broker), zap.String("topic", s.cfg.Topic))
	return nil
}

// Stop disconnects, waiting up to 250ms for in-flight work.
func (s *MQTTSubscriber) Stop() {
	s.client.Disconnect(250)
}

func (s *MQTTSubscriber) subscribe(c mqtt.Client) error {
	token := c.Subscribe(s.cfg.Topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		if err := s.handle(context.Background(), msg.Topic(), msg.Payload()); err != nil {
			s.log.Warn("mqtt message rejected", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	})
	token.Wait()
	return token.Error()
}

// handle records one message.  When the payload names no device, the MAC
// is taken from the topic wildcard.
func (s *MQTTSubscriber) handle(ctx context.Context, topic string, payload []byte) error {
	var ev DeviceEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if len(ev.Dispositivos) == 0 {
		if mac := macFromTopic(s.cfg.Topic, topic); mac != "" {
			ev.Dispositivos = []string{mac}
		}
	}
	return s.handler.record(ctx, ev)
}

func macFromTopic(pattern, topic string) string {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	if len(pp) != len(tp) {
		return ""
	}
	for i, p := range pp {
		if p == "+" {
			return tp[i]
		}
	}
	return ""
}
