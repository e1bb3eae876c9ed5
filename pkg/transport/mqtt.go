package transport

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"liyu1981.xyz/iot-shield-service/pkg/common"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 3 * time.Second
	inboundBuffer  = 256
)

type Config struct {
	Broker       string
	ClientID     string
	Username     string
	Password     string
	TopicSensors string
	TopicControl string
	TopicAlerts  string
}

// Message is one inbound transport delivery, queued for the receive loop.
type Message struct {
	Topic   string
	Payload []byte
}

// Router consumes demultiplexed inbound messages. Handler errors are logged
// by the receive loop; they never reach the transport layer.
type Router interface {
	HandleSensorMessage(payload []byte) error
	HandleControlMessage(payload []byte) error
}

// Client owns the process's single MQTT connection. Paho's callback
// delivery is converted into an explicit channel consumed by a dedicated
// receive loop, so message handling never runs on the transport's own
// keep-alive thread.
type Client struct {
	client  mqtt.Client
	cfg     Config
	inbound chan Message
}

func NewClient(cfg Config) *Client {
	logger := common.GetLoggerWith(common.LoggerNameTransport)

	c := &Client{
		cfg:     cfg,
		inbound: make(chan Message, inboundBuffer),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(client mqtt.Client) {
			logger.Info("Connected to MQTT broker", zap.String("broker", cfg.Broker))
			c.subscribe(client)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost, reconnecting", zap.Error(err))
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = mqtt.NewClient(opts)
	return c
}

func (c *Client) Connect() error {
	token := c.client.Connect()
	if ok := token.WaitTimeout(connectTimeout); !ok {
		return fmt.Errorf("MQTT connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connect failed: %w", err)
	}
	return nil
}

func (c *Client) Disconnect() {
	c.client.Disconnect(500)
}

// subscribe runs on every (re)connect so subscriptions survive broker
// drops.
func (c *Client) subscribe(client mqtt.Client) {
	logger := common.GetLoggerWith(common.LoggerNameTransport)

	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case c.inbound <- Message{Topic: msg.Topic(), Payload: msg.Payload()}:
		default:
			// receive loop is saturated; dropping is preferable to
			// blocking the paho delivery goroutine
			logger.Warn("Inbound queue full, dropping message", zap.String("topic", msg.Topic()))
			common.MetricMessagesDropped.WithLabelValues("queue_full").Inc()
		}
	}

	for _, topic := range []string{c.cfg.TopicSensors, c.cfg.TopicControl} {
		token := client.Subscribe(topic, 1, onMessage)
		if ok := token.WaitTimeout(connectTimeout); !ok || token.Error() != nil {
			logger.Error("Failed to subscribe", zap.String("topic", topic), zap.Error(token.Error()))
			continue
		}
		logger.Info("Subscribed to topic", zap.String("topic", topic))
	}
}

// RunReceiveLoop dispatches queued inbound messages to the router until ctx
// is canceled. It is the single consumer of the inbound channel.
func (c *Client) RunReceiveLoop(ctx context.Context, router Router) {
	logger := common.GetLoggerWith(common.LoggerNameTransport)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Receive loop stopped")
			return
		case msg := <-c.inbound:
			switch msg.Topic {
			case c.cfg.TopicSensors:
				common.MetricMessagesReceived.WithLabelValues("sensors").Inc()
				if err := router.HandleSensorMessage(msg.Payload); err != nil {
					logger.Error("Sensor message processing failed", zap.Error(err))
				}
			case c.cfg.TopicControl:
				common.MetricMessagesReceived.WithLabelValues("control").Inc()
				if err := router.HandleControlMessage(msg.Payload); err != nil {
					logger.Error("Control message processing failed", zap.Error(err))
				}
			default:
				logger.Warn("Message on unexpected topic", zap.String("topic", msg.Topic))
				common.MetricMessagesDropped.WithLabelValues("unknown_topic").Inc()
			}
		}
	}
}

func (c *Client) publish(topic string, payload []byte, kind string) error {
	token := c.client.Publish(topic, 1, false, payload)
	if ok := token.WaitTimeout(publishTimeout); !ok {
		common.MetricPublishFailure.WithLabelValues(kind).Inc()
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		common.MetricPublishFailure.WithLabelValues(kind).Inc()
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}
	return nil
}

// PublishAlert publishes an alert payload on the alert topic.
func (c *Client) PublishAlert(payload []byte) error {
	return c.publish(c.cfg.TopicAlerts, payload, "alert")
}

// PublishCommand publishes a control command on the control topic.
func (c *Client) PublishCommand(payload []byte) error {
	return c.publish(c.cfg.TopicControl, payload, "command")
}
