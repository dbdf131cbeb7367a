// Package mqtt implements the MQTT transport for the companion.
//
// The transport subscribes to a configurable topic filter (for example
// "companion/in/#") and publishes each reply to <reply_prefix>/<source>.
// When a message carries no source, the last segment of the topic it
// arrived on is used.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/nadzzz/companion/internal/config"
	"github.com/nadzzz/companion/internal/message"
	"github.com/nadzzz/companion/internal/transport"
)

const (
	qos            = 1
	connectTimeout = 10 * time.Second
)

// Transport implements transport.Transport over MQTT.
type Transport struct {
	cfg    config.MQTTConfig
	client paho.Client
	wg     sync.WaitGroup
}

// New creates a new MQTT transport.
func New(cfg config.MQTTConfig) *Transport {
	if cfg.ClientID == "" {
		cfg.ClientID = "companion"
	}
	if cfg.Topic == "" {
		cfg.Topic = "companion/in/#"
	}
	if cfg.ReplyPrefix == "" {
		cfg.ReplyPrefix = "companion/out"
	}
	return &Transport{cfg: cfg}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "mqtt" }

// Listen connects to the broker, subscribes, and serves until ctx is done.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	onMessage := func(c paho.Client, m paho.Message) {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			topic, body, err := t.process(ctx, handler, m.Topic(), m.Payload())
			if err != nil {
				slog.Warn("mqtt message dropped", "topic", m.Topic(), "error", err)
				return
			}
			tok := c.Publish(topic, qos, false, body)
			if tok.WaitTimeout(connectTimeout) && tok.Error() != nil {
				slog.Error("mqtt publish failed", "topic", topic, "error", tok.Error())
			}
		}()
	}

	opts := paho.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(t.cfg.ClientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c paho.Client) {
			// Resubscribe on every (re)connect.
			tok := c.Subscribe(t.cfg.Topic, qos, onMessage)
			if tok.WaitTimeout(connectTimeout) && tok.Error() != nil {
				slog.Error("mqtt subscribe failed", "topic", t.cfg.Topic, "error", tok.Error())
				return
			}
			slog.Info("mqtt subscribed", "topic", t.cfg.Topic)
		})

	t.client = paho.NewClient(opts)
	tok := t.client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect: timed out after %s", connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	slog.Info("mqtt transport listening", "broker", t.cfg.Broker, "topic", t.cfg.Topic)
	<-ctx.Done()
	return nil
}

// process decodes one inbound payload, runs it through handler and returns
// the reply topic and body.
func (t *Transport) process(ctx context.Context, handler transport.Handler, topic string, payload []byte) (string, []byte, error) {
	var msg message.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", nil, fmt.Errorf("decoding message: %w", err)
	}
	if msg.Source == "" {
		msg.Source = topic[strings.LastIndex(topic, "/")+1:]
	}

	reply, err := handler(ctx, &msg)
	if err != nil {
		return "", nil, fmt.Errorf("handling message: %w", err)
	}
	body, err := json.Marshal(reply)
	if err != nil {
		return "", nil, fmt.Errorf("encoding reply: %w", err)
	}
	return strings.TrimRight(t.cfg.ReplyPrefix, "/") + "/" + msg.Source, body, nil
}

// Close waits for in-flight messages and disconnects from the broker.
func (t *Transport) Close() error {
	t.wg.Wait()
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(250)
	}
	return nil
}
