package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	pkgmqtt "water-meter-platform/pkg/mqtt"
)

// MQTTIngressConfig describes the ingress topic and broker parameters.
type MQTTIngressConfig struct {
	ClientConfig *pkgmqtt.Config
	IngressTopic string
	QoS          byte
}

// MQTTIngress subscribes to the meter ingress topic and hands each raw
// payload to the pipeline. The payload body is the same `KEY:value;...`
// status string the HTTP ingress receives.
type MQTTIngress struct {
	cfg      *MQTTIngressConfig
	client   *pkgmqtt.Client
	pipeline *Pipeline
	log      *zap.Logger

	mu      sync.Mutex
	started bool
}

func NewMQTTIngress(cfg *MQTTIngressConfig, pipeline *Pipeline) (*MQTTIngress, error) {
	if cfg == nil || cfg.ClientConfig == nil {
		return nil, errors.New("mqtt ingress config is not configured")
	}
	if cfg.IngressTopic == "" {
		return nil, errors.New("mqtt ingress topic is required")
	}
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}

	return &MQTTIngress{
		cfg:      cfg,
		client:   pkgmqtt.NewClient(cfg.ClientConfig),
		pipeline: pipeline,
		log:      zap.L().Named("mqtt-ingress"),
	}, nil
}

// Start establishes the MQTT connection and subscribes to the ingress topic.
func (i *MQTTIngress) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.started {
		return nil
	}

	if err := i.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	if err := i.client.Subscribe(i.cfg.IngressTopic, i.cfg.QoS, i.handleMessage); err != nil {
		i.client.Disconnect()
		return fmt.Errorf("subscribe failed for topic %s: %w", i.cfg.IngressTopic, err)
	}

	i.log.Info("listening for meter reports",
		zap.String("topic", i.cfg.IngressTopic),
	)
	i.started = true
	return nil
}

// Stop unsubscribes and disconnects from the broker.
func (i *MQTTIngress) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.started {
		return
	}

	if err := i.client.Unsubscribe(i.cfg.IngressTopic); err != nil {
		i.log.Warn("failed to unsubscribe from ingress topic", zap.Error(err))
	}
	i.client.Disconnect()
	i.started = false
}

func (i *MQTTIngress) handleMessage(topic string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := i.pipeline.Ingest(ctx, string(payload))
	if err != nil {
		i.log.Error("ingestion failed",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}

	if result.State == StateRejected {
		i.log.Warn("report rejected",
			zap.String("topic", topic),
			zap.String("reason", string(result.Reason)),
		)
	}
}
