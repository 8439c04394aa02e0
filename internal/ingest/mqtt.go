// Package ingest feeds raw readings from an MQTT broker into the pipeline.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synheart/vitalsynth/internal/models"
	"github.com/synheart/vitalsynth/internal/pipeline"
)

// MQTTConfig holds broker and topic settings
type MQTTConfig struct {
	Broker        string
	ClientID      string
	Username      string
	Password      string
	Topic         string // e.g. "vitalsynth/+/raw"
	PublishPrefix string // results go to <prefix>/<device>/reading
	QoS           byte
}

const (
	connectTimeout = 10 * time.Second
	ingestTimeout  = 10 * time.Second
)

// Connect dials the broker with auto-reconnect enabled.
func Connect(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "vitalsynth-" + uuid.NewString()[:8]
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)
	// Handlers publish results; ordered delivery would block the router.
	opts.SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return client, nil
}

// MQTTIngestor subscribes to raw readings and republishes synthesized results.
type MQTTIngestor struct {
	client  mqtt.Client
	service *pipeline.Service
	config  MQTTConfig
	logger  *zap.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

// NewMQTTIngestor wires an MQTT client to service.
func NewMQTTIngestor(client mqtt.Client, service *pipeline.Service, cfg MQTTConfig, logger *zap.Logger) *MQTTIngestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Topic == "" {
		cfg.Topic = "vitalsynth/+/raw"
	}
	if cfg.PublishPrefix == "" {
		cfg.PublishPrefix = "vitalsynth"
	}
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}
	return &MQTTIngestor{
		client:  client,
		service: service,
		config:  cfg,
		logger:  logger.With(zap.String("component", "mqtt")),
	}
}

// Start subscribes to the configured topic filter.
func (i *MQTTIngestor) Start() error {
	token := i.client.Subscribe(i.config.Topic, i.config.QoS, i.handleMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", i.config.Topic, token.Error())
	}
	i.logger.Info("subscribed", zap.String("topic", i.config.Topic))
	return nil
}

// Stop unsubscribes and disconnects from the broker.
func (i *MQTTIngestor) Stop() {
	if token := i.client.Unsubscribe(i.config.Topic); token.WaitTimeout(time.Second) && token.Error() != nil {
		i.logger.Warn("unsubscribe failed", zap.Error(token.Error()))
	}
	i.client.Disconnect(250)
}

// Processed returns the number of readings ingested.
func (i *MQTTIngestor) Processed() int64 {
	return i.processed.Load()
}

// Failed returns the number of messages dropped.
func (i *MQTTIngestor) Failed() int64 {
	return i.failed.Load()
}

func (i *MQTTIngestor) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	result, err := i.Process(ctx, msg.Topic(), msg.Payload())
	if err != nil {
		i.failed.Add(1)
		i.logger.Warn("message rejected", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	i.processed.Add(1)

	if err := i.publish(result); err != nil {
		i.logger.Warn("publish failed",
			zap.String("device_id", result.Reading.DeviceID),
			zap.Error(err))
	}
}

// Process decodes one raw reading payload and runs it through the pipeline.
// The device id defaults to the topic's second segment.
func (i *MQTTIngestor) Process(ctx context.Context, topic string, payload []byte) (*models.IngestResult, error) {
	var raw models.RawReading
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if strings.TrimSpace(raw.DeviceID) == "" {
		raw.DeviceID = DeviceFromTopic(topic)
	}
	return i.service.Ingest(ctx, raw)
}

func (i *MQTTIngestor) publish(result *models.IngestResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	topic := ResultTopic(i.config.PublishPrefix, result.Reading.DeviceID)
	token := i.client.Publish(topic, i.config.QoS, false, payload)
	go func() {
		if token.WaitTimeout(ingestTimeout) && token.Error() != nil {
			i.logger.Warn("publish failed", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}()
	return nil
}

// DeviceFromTopic extracts {device} from "<root>/{device}/...".
func DeviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// ResultTopic is where the synthesized reading of deviceID is published.
func ResultTopic(prefix, deviceID string) string {
	return prefix + "/" + deviceID + "/reading"
}
